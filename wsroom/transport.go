package wsroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/skiffdb/skiff"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultBackoffMin  = time.Second
	defaultBackoffMax  = 30 * time.Second
)

// Transport-level errors.
var (
	// ErrConnClosed is returned by Send after Close.
	ErrConnClosed = errors.New("wsroom: connection closed")

	// ErrNotConnected is returned by Send while a reconnect is in progress.
	ErrNotConnected = errors.New("wsroom: not connected")
)

// Transport dials rooms over WebSocket. It implements skiff.Transport.
// The zero value is usable; fields tune dialing and reconnect behavior.
type Transport struct {
	// DialTimeout bounds each connection attempt. Defaults to 10s.
	DialTimeout time.Duration

	// BackoffMin and BackoffMax bound the delay between reconnect
	// attempts. The delay starts at BackoffMin and doubles up to
	// BackoffMax. Defaults: 1s and 30s.
	BackoffMin time.Duration
	BackoffMax time.Duration

	// Logger receives transport diagnostics (default: stderr logger).
	Logger *log.Logger
}

// New returns a Transport with default timeouts.
func New() *Transport {
	return &Transport{}
}

// Connect dials the room and starts the read loop. The server's join frame
// arrives asynchronously through the handlers once Connect has returned.
func (t *Transport) Connect(ctx context.Context, params skiff.ConnectParams) (skiff.Conn, error) {
	wsURL, err := RoomURL(params.URL, params.Room)
	if err != nil {
		return nil, err
	}

	logger := t.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[wsroom] ", log.LstdFlags)
	}

	c := &conn{
		url:         wsURL,
		handlers:    params.Handlers,
		logger:      logger,
		dialTimeout: orDefault(t.DialTimeout, defaultDialTimeout),
		backoffMin:  orDefault(t.BackoffMin, defaultBackoffMin),
		backoffMax:  orDefault(t.BackoffMax, defaultBackoffMax),
		done:        make(chan struct{}),
	}

	ws, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.ws = ws

	go c.readLoop()
	return c, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// conn is a live room connection. A single goroutine owns the socket reads
// and dispatches every handler, so handler invocations never overlap.
type conn struct {
	url      string
	handlers skiff.Handlers
	logger   *log.Logger

	dialTimeout time.Duration
	backoffMin  time.Duration
	backoffMax  time.Duration

	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool

	// joined is owned by the read loop: the first join frame becomes
	// OnJoin, later ones are reconnect history.
	joined bool

	done chan struct{}
}

func (c *conn) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsroom: dial %s: %w", c.url, err)
	}
	return ws, nil
}

// Send ships one envelope to the authority.
func (c *conn) Send(ctx context.Context, env skiff.Envelope) error {
	c.mu.Lock()
	ws, closed := c.ws, c.closed
	c.mu.Unlock()

	if closed {
		return ErrConnClosed
	}
	if ws == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("wsroom: encode envelope: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("wsroom: send: %w", err)
	}
	return nil
}

// Close stops reconnecting and closes the socket. A delivery already in
// flight may still invoke a handler after Close returns.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	close(c.done)
	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}
	return nil
}

// readLoop owns the socket: it dispatches every inbound frame and drives
// reconnection. All handlers fire from this goroutine.
func (c *conn) readLoop() {
	reconnected := false
	for {
		c.mu.Lock()
		ws := c.ws
		c.mu.Unlock()
		if ws == nil {
			return
		}

		err := c.consume(ws, reconnected)
		if c.isDone() {
			return
		}

		c.logger.Printf("connection lost: %v", err)
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()

		if h := c.handlers.OnDisconnect; h != nil {
			h()
		}
		if !c.redial() {
			return
		}
		reconnected = true
	}
}

// consume reads frames until the socket fails. The first join frame of the
// connection surfaces as OnJoin; a join after a reconnect re-delivers the
// room history, which is fed through OnInput (the receiver drops whatever
// it has already seen) followed by OnReconnect.
func (c *conn) consume(ws *websocket.Conn, reconnected bool) error {
	for {
		_, data, err := ws.Read(context.Background())
		if err != nil {
			return err
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Printf("dropping malformed frame: %v", err)
			continue
		}

		switch msg.Type {
		case MessageCreate:
			if reconnected {
				// The authority lost the room and recreated it on rejoin.
				c.logger.Printf("room recreated by authority")
				continue
			}
			if h := c.handlers.OnCreate; h != nil {
				h()
			}

		case MessageJoin:
			if !c.joined {
				c.joined = true
				if h := c.handlers.OnJoin; h != nil {
					h(msg.Snapshot, msg.Inputs)
				}
				continue
			}
			if h := c.handlers.OnInput; h != nil {
				for _, in := range msg.Inputs {
					h(in)
				}
			}
			if reconnected {
				if h := c.handlers.OnReconnect; h != nil {
					h()
				}
			}

		case MessageInput:
			if msg.Input == nil {
				continue
			}
			if h := c.handlers.OnInput; h != nil {
				h(*msg.Input)
			}

		default:
			// Unknown frame types are ignored for forward compatibility.
		}
	}
}

// redial reconnects with exponential backoff until it succeeds or the
// connection is closed. Returns false when closed.
func (c *conn) redial() bool {
	delay := c.backoffMin
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		ws, err := c.dial(context.Background())
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				_ = ws.Close(websocket.StatusNormalClosure, "")
				return false
			}
			c.ws = ws
			c.mu.Unlock()
			c.logger.Printf("reconnected to %s", c.url)
			return true
		}

		c.logger.Printf("reconnect failed: %v", err)
		delay *= 2
		if delay > c.backoffMax {
			delay = c.backoffMax
		}
	}
}

func (c *conn) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
