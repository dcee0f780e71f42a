// Package wsroom ships the WebSocket transport used by skiff and the room
// authority it talks to. A room assigns each accepted operation a global
// sequence number and rebroadcasts it, in order, to every member including
// the sender. Joiners receive the full input history, so a client can
// reconstruct confirmed state from an empty engine or converge a stale one.
package wsroom

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/skiffdb/skiff"
)

const (
	defaultAddr  = ":8080"
	writeTimeout = 5 * time.Second
)

// ServerConfig holds room server configuration.
type ServerConfig struct {
	// Addr to listen on (default ":8080").
	Addr string

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger
}

// Server is the room authority: an HTTP server upgrading /rooms/<id>
// requests to WebSocket connections. Rooms are created on first join and
// retain their input history for later joiners.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	mu    sync.Mutex
	rooms map[string]*room

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// room is one sync scope: a seq counter, the ordered input history, and the
// live member set. mu is held across member writes so rebroadcasts leave in
// seq order.
type room struct {
	id string

	mu      sync.Mutex
	seq     uint64
	inputs  []skiff.Input
	members map[*websocket.Conn]bool
}

// NewServer creates a room server. A nil config uses defaults.
func NewServer(cfg *ServerConfig) *Server {
	if cfg == nil {
		cfg = &ServerConfig{}
	}
	addr := cfg.Addr
	if addr == "" {
		addr = defaultAddr
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[wsroom] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:   addr,
		rooms:  make(map[string]*room),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Start begins listening and serving room connections.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("wsroom: listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/rooms/", s.handleRoom)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("room server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("serve error: %v", err)
		}
	}()

	return nil
}

// Stop disconnects every member and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for _, rm := range s.rooms {
		rm.mu.Lock()
		for conn := range rm.members {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			delete(rm.members, conn)
		}
		rm.mu.Unlock()
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("wsroom: shutdown: %w", err)
		}
	}

	s.wg.Wait()
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// RoomCount returns the number of rooms ever created on this server.
func (s *Server) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// ClientCount returns the number of live members across all rooms.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, rm := range s.rooms {
		rm.mu.Lock()
		total += len(rm.members)
		rm.mu.Unlock()
	}
	return total
}

// handleRoom upgrades the request and joins the connection to its room.
func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimPrefix(r.URL.Path, "/rooms/")
	if roomID == "" || strings.Contains(roomID, "/") {
		http.Error(w, "room id required", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("websocket upgrade failed: %v", err)
		return
	}

	rm, created := s.getOrCreateRoom(roomID)
	if err := rm.join(conn, created); err != nil {
		s.logger.Printf("welcome for room %q failed: %v", roomID, err)
		_ = conn.Close(websocket.StatusInternalError, "welcome failed")
		s.leaveRoom(rm, conn)
		return
	}
	s.logger.Printf("client joined room %q (created=%t)", roomID, created)

	s.wg.Add(1)
	go s.readLoop(rm, conn)
}

func (s *Server) getOrCreateRoom(id string) (*room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.rooms[id]
	if !ok {
		rm = &room{id: id, members: make(map[*websocket.Conn]bool)}
		s.rooms[id] = rm
	}
	return rm, !ok
}

// readLoop consumes frames from one member until the connection drops.
// Operation envelopes are sequenced and rebroadcast; anything else is
// ignored for forward compatibility.
func (s *Server) readLoop(rm *room, conn *websocket.Conn) {
	defer s.wg.Done()
	defer s.leaveRoom(rm, conn)

	for {
		_, data, err := conn.Read(s.ctx)
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Printf("room %q: dropping malformed frame: %v", rm.id, err)
			continue
		}
		if msg.Type != MessageOp || msg.Operation == nil {
			continue
		}

		rm.accept(skiff.Envelope{Type: skiff.EnvelopeOp, Operation: msg.Operation}, s.logger)
	}
}

func (s *Server) leaveRoom(rm *room, conn *websocket.Conn) {
	rm.mu.Lock()
	_, member := rm.members[conn]
	if member {
		delete(rm.members, conn)
	}
	rm.mu.Unlock()

	if member {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("client left room %q", rm.id)
	}
}

// join adds conn to the member set and sends the welcome frames: create if
// this member opened the room, then join with the full input history. Runs
// under mu so no broadcast interleaves before the history lands.
func (rm *room) join(conn *websocket.Conn, created bool) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.members[conn] = true

	if created {
		if err := writeMessage(conn, Message{Type: MessageCreate}); err != nil {
			return err
		}
	}

	inputs := make([]skiff.Input, len(rm.inputs))
	copy(inputs, rm.inputs)
	return writeMessage(conn, Message{Type: MessageJoin, Inputs: inputs})
}

// accept assigns the next seq to an operation envelope, records it in the
// history, and rebroadcasts it to every member including the sender.
func (rm *room) accept(env skiff.Envelope, logger *log.Logger) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.seq++
	input := skiff.Input{Seq: rm.seq, Data: env}
	rm.inputs = append(rm.inputs, input)

	data, err := json.Marshal(Message{Type: MessageInput, Input: &input})
	if err != nil {
		logger.Printf("room %q: marshal input seq=%d: %v", rm.id, input.Seq, err)
		return
	}

	for conn := range rm.members {
		if err := writeRaw(conn, data); err != nil {
			// The member's read loop notices the dead socket and removes it.
			logger.Printf("room %q: send input seq=%d: %v", rm.id, input.Seq, err)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"rooms":   s.RoomCount(),
		"clients": s.ClientCount(),
	})
}

func writeMessage(conn *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return writeRaw(conn, data)
}

func writeRaw(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
