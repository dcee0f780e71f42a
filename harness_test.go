package skiff

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
)

// fakeTransport hands out fakeConns and captures the registered handlers so
// tests can play the authority.
type fakeTransport struct {
	mu       sync.Mutex
	conns    []*fakeConn
	failDial bool
}

func (t *fakeTransport) Connect(ctx context.Context, params ConnectParams) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failDial {
		return nil, errors.New("dial refused")
	}
	c := &fakeConn{room: params.Room, handlers: params.Handlers}
	t.conns = append(t.conns, c)
	return c, nil
}

// conn returns the most recent connection.
func (t *fakeTransport) conn(tt *testing.T) *fakeConn {
	tt.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.conns) == 0 {
		tt.Fatal("no connection was dialed")
	}
	return t.conns[len(t.conns)-1]
}

// fakeConn records sends and lets the test drive handler deliveries.
type fakeConn struct {
	room     string
	handlers Handlers

	mu     sync.Mutex
	sent   []Envelope
	closed bool
}

func (c *fakeConn) Send(ctx context.Context, env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("connection closed")
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// sentIDs returns the operation ids shipped so far, in send order.
func (c *fakeConn) sentIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.sent))
	for _, env := range c.sent {
		if env.Operation != nil {
			ids = append(ids, env.Operation.ID)
		}
	}
	return ids
}

// join plays the authority's welcome frame.
func (c *fakeConn) join(snapshot []byte, inputs ...Input) {
	c.handlers.OnJoin(snapshot, inputs)
}

// deliver plays one authority-ordered input carrying op at seq.
func (c *fakeConn) deliver(seq uint64, op Operation) {
	c.handlers.OnInput(confirmedInput(seq, op))
}

// confirmedInput wraps op in the wire shape the authority broadcasts.
// The operation travels as the client sent it; the assigned seq rides on
// the input.
func confirmedInput(seq uint64, op Operation) Input {
	clone := op.Clone()
	return Input{Seq: seq, Data: Envelope{Type: EnvelopeOp, Operation: &clone}}
}

// remoteInsert builds an insert as another client would have sent it.
func remoteInsert(id, table string, data map[string]any) Operation {
	return Operation{
		ID:       id,
		ClientID: "other-client",
		LocalSeq: 1,
		Table:    table,
		Type:     OpInsert,
		Data:     data,
	}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// newTestDB opens a database on a MemBlobStore. With online set, the config
// carries a fakeTransport; the test drives join and input deliveries by
// hand through the returned transport.
func newTestDB(t *testing.T, online bool) (*DB, *fakeTransport, *MemBlobStore) {
	t.Helper()

	transport := &fakeTransport{}
	blobs := NewMemBlobStore()

	cfg := Config{
		Name:   "testdb",
		Dir:    t.TempDir(),
		Blobs:  blobs,
		Logger: quietLogger(),
	}
	if online {
		cfg.URL = "fake://authority"
		cfg.Room = "room"
		cfg.Transport = transport
	}

	db, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, transport, blobs
}

// reopenTestDB opens the same database again on the surviving stores.
func reopenTestDB(t *testing.T, dir string, blobs *MemBlobStore, transport *fakeTransport) *DB {
	t.Helper()

	cfg := Config{
		Name:   "testdb",
		Dir:    dir,
		Blobs:  blobs,
		Logger: quietLogger(),
	}
	if transport != nil {
		cfg.URL = "fake://authority"
		cfg.Room = "room"
		cfg.Transport = transport
	}

	db, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createNotes(t *testing.T, db *DB) {
	t.Helper()
	err := db.CreateTable(`CREATE TABLE IF NOT EXISTS notes (id TEXT PRIMARY KEY, body TEXT)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
}

// noteBody reads the body column for id, reporting whether the row exists.
func noteBody(t *testing.T, db *DB, id string) (string, bool) {
	t.Helper()

	res, err := db.Query(`SELECT body FROM notes WHERE id = ?`, id)
	if err != nil {
		t.Fatalf("query note %s: %v", id, err)
	}
	if len(res.Rows) == 0 {
		return "", false
	}
	body, _ := res.Rows[0]["body"].(string)
	return body, true
}
