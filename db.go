package skiff

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/skiffdb/skiff/internal/store"
)

// DB is an offline-first embedded SQL database that replicates mutations
// through an authority-ordered room. Mutations apply locally first and
// queue as pending operations; once the authority assigns them a global
// order, the reconciler converges local state onto it.
//
// All public methods are safe for concurrent use. State transitions run to
// completion under one lock, so transport deliveries and local mutations
// never interleave mid-transition.
type DB struct {
	config     Config
	engine     Engine
	blobs      BlobStore
	oplog      *opLog
	checkpoint *checkpointManager
	recon      *reconciler
	logger     *log.Logger
	debug      *DebugLogger
	clientID   string

	mu     sync.Mutex
	conn   Conn
	online bool
	closed bool
}

// Open loads or creates the database named by cfg. If a serialized engine
// exists in the blob store it is restored; otherwise a fresh engine is
// created. The pending queue and local sequence counter are rebuilt from
// the restored state.
//
// When cfg.URL is set, Open also attempts to connect. A failed dial leaves
// the database usable offline; mutations queue until a later Connect
// succeeds.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	debug, err := NewDebugLogger(cfg.Debug, cfg.DebugLogPath)
	if err != nil {
		return nil, fmt.Errorf("skiff: %w", err)
	}

	engine, err := loadEngine(cfg)
	if err != nil {
		debug.Close()
		return nil, fmt.Errorf("skiff: load engine: %w", err)
	}

	clientID, err := loadClientID(cfg.Blobs, cfg.Name)
	if err != nil {
		engine.Close()
		debug.Close()
		return nil, fmt.Errorf("skiff: load client id: %w", err)
	}

	oplog := newOpLog(engine)
	if err := oplog.load(); err != nil {
		engine.Close()
		debug.Close()
		return nil, fmt.Errorf("skiff: %w", err)
	}

	checkpoint := newCheckpointManager(engine, debug)

	db := &DB{
		config:     cfg,
		engine:     engine,
		blobs:      cfg.Blobs,
		oplog:      oplog,
		checkpoint: checkpoint,
		recon:      newReconciler(engine, oplog, checkpoint, cfg.Logger, debug),
		logger:     cfg.Logger,
		debug:      debug,
		clientID:   clientID,
	}

	debug.Log("OPEN name=%s client=%s pending=%d local_seq=%d",
		cfg.Name, clientID, oplog.pendingCount(), oplog.localSeq)

	if cfg.URL != "" {
		if err := db.Connect(ctx); err != nil {
			db.logger.Printf("WARNING: connect failed, staying offline: %v", err)
		}
	}

	return db, nil
}

// loadEngine restores the engine from the blob store when a previous
// session persisted one, or opens a fresh engine.
func loadEngine(cfg Config) (Engine, error) {
	image, err := cfg.Blobs.Get(cfg.Name + "/" + blobKeyDB)
	switch {
	case errors.Is(err, ErrBlobNotFound):
		image = nil
	case err != nil:
		return nil, err
	}

	if cfg.Engine != nil {
		if image != nil {
			if err := cfg.Engine.Deserialize(image); err != nil {
				return nil, err
			}
		}
		return cfg.Engine, nil
	}

	if image != nil {
		return RestoreSQLite(cfg.Path, image)
	}

	// No durable copy yet. If a working file survives from the flat legacy
	// layout, adopt it before opening fresh.
	if cfg.Path == store.DatabasePath(cfg.Dir, cfg.Name) {
		if res, err := store.MigrateLegacyLayout("", cfg.Dir, cfg.Name); err != nil {
			cfg.Logger.Printf("WARNING: legacy layout migration: %v", err)
		} else if res.Migrated {
			cfg.Logger.Printf("migrated legacy database %s -> %s", res.SourcePath, res.DestPath)
		}
	}
	return OpenSQLite(cfg.Path)
}

// loadClientID returns the persisted client identifier, allocating a ULID
// on first use.
func loadClientID(blobs BlobStore, name string) (string, error) {
	key := name + "/" + blobKeyClientID

	raw, err := blobs.Get(key)
	if err == nil && len(raw) > 0 {
		return string(raw), nil
	}
	if err != nil && !errors.Is(err, ErrBlobNotFound) {
		return "", err
	}

	id := ulid.Make().String()
	if err := blobs.Put(key, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}

// Connect dials the configured transport and joins the room. Hydration
// replays the room's confirmed history, then flushes the pending queue.
// Connect is a no-op when already connected.
func (db *DB) Connect(ctx context.Context) error {
	if db == nil || db.engine == nil {
		return ErrNotInitialized
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}
	if db.conn != nil {
		return nil
	}
	if db.config.Transport == nil {
		return ErrNoTransport
	}

	// The lock is held across the dial on purpose: handler deliveries
	// block until the connection is stored, so a join arriving mid-dial
	// cannot observe a half-connected DB.
	conn, err := db.config.Transport.Connect(ctx, ConnectParams{
		URL:  db.config.URL,
		Room: db.config.Room,
		Handlers: Handlers{
			OnCreate:     db.handleCreate,
			OnJoin:       db.handleJoin,
			OnInput:      db.handleInput,
			OnDisconnect: db.handleDisconnect,
			OnReconnect:  db.handleReconnect,
		},
	})
	if err != nil {
		return fmt.Errorf("skiff: connect: %w", err)
	}

	db.conn = conn
	db.debug.LogTransport("connect", db.config.URL+" room="+db.config.Room)
	return nil
}

// CreateTable runs DDL against the engine. Schema statements are not
// logged as operations; every client is expected to apply the same DDL.
func (db *DB) CreateTable(schema string) error {
	if db == nil || db.engine == nil {
		return ErrNotInitialized
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}
	if _, err := db.engine.Exec(schema); err != nil {
		return fmt.Errorf("skiff: create table: %w", err)
	}
	// Schema lives outside the operation log, so the checkpoint image must
	// recapture it or the next rollback would erase it.
	db.recon.establish()
	db.persistLocked(db.freshImage())
	return nil
}

// Insert captures an INSERT OR REPLACE of data into table.
func (db *DB) Insert(table string, data map[string]any) (*Operation, error) {
	return db.mutate(OpInsert, table, data, nil)
}

// Update captures an UPDATE of the set columns on rows matching the where
// equality predicate.
func (db *DB) Update(table string, set, where map[string]any) (*Operation, error) {
	return db.mutate(OpUpdate, table, set, where)
}

// Delete captures a DELETE of rows matching the where equality predicate.
func (db *DB) Delete(table string, where map[string]any) (*Operation, error) {
	return db.mutate(OpDelete, table, nil, where)
}

func (db *DB) mutate(t OpType, table string, data, where map[string]any) (*Operation, error) {
	if db == nil || db.engine == nil {
		return nil, ErrNotInitialized
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, ErrClosed
	}

	op := Operation{
		ClientID: db.clientID,
		Table:    table,
		Type:     t,
		Data:     data,
		Where:    where,
	}
	op = op.Clone()

	// Validate and build before consuming a local sequence number.
	stmt, args, err := buildSQL(&op)
	if err != nil {
		return nil, fmt.Errorf("skiff: %w", err)
	}

	localSeq, err := db.oplog.nextLocalSeq()
	if err != nil {
		return nil, fmt.Errorf("skiff: %w", err)
	}
	op.LocalSeq = localSeq
	op.ID = OperationID(db.clientID, localSeq, time.Now())

	db.debug.LogOp("mutate", &op)
	db.debug.LogSQL(stmt, len(args))

	// Apply optimistically. Engine errors surface to the caller and the
	// operation is neither logged nor broadcast.
	if _, err := db.engine.Exec(stmt, args...); err != nil {
		return nil, &ApplyError{Op: op.ID, Err: err}
	}

	if err := db.oplog.appendPending(op); err != nil {
		return nil, fmt.Errorf("skiff: %w", err)
	}

	db.persistLocked(nil)
	db.sendLocked(op)

	out := op.Clone()
	return &out, nil
}

// Query runs a read-only statement against the local engine.
func (db *DB) Query(query string, args ...any) (*Result, error) {
	if db == nil || db.engine == nil {
		return nil, ErrNotInitialized
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, ErrClosed
	}
	return db.engine.Query(query, args...)
}

// Exec runs a raw statement against the local engine without logging an
// operation. Intended for maintenance statements; replicated writes should
// go through Insert, Update, and Delete.
func (db *DB) Exec(query string, args ...any) error {
	if db == nil || db.engine == nil {
		return ErrNotInitialized
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}
	if _, err := db.engine.Exec(query, args...); err != nil {
		return fmt.Errorf("skiff: exec: %w", err)
	}
	// Raw statements bypass the operation log; recapture the checkpoint so
	// a rollback cannot rewind them.
	db.recon.establish()
	db.persistLocked(db.freshImage())
	return nil
}

// ClientID returns the stable identifier persisted for this database.
func (db *DB) ClientID() string {
	if db == nil {
		return ""
	}
	return db.clientID
}

// Online reports whether the transport connection is live.
func (db *DB) Online() bool {
	if db == nil {
		return false
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.online
}

// PendingCount reports the number of unconfirmed operations.
func (db *DB) PendingCount() int {
	if db == nil {
		return 0
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.oplog.pendingCount()
}

// Stats reports the current sync state.
func (db *DB) Stats() Stats {
	if db == nil {
		return Stats{}
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	return Stats{
		ClientID:       db.clientID,
		ConfirmedSeq:   db.recon.confirmedSeq,
		SavepointSeq:   db.checkpoint.savepointSeq(),
		LocalSeq:       db.oplog.localSeq,
		PendingCount:   db.oplog.pendingCount(),
		ConfirmedCount: db.oplog.confirmedCount(),
		GapEvents:      db.recon.gapEvents,
		Online:         db.online,
	}
}

// Close persists the final state, disconnects, and releases the engine.
func (db *DB) Close() error {
	if db == nil || db.engine == nil {
		return ErrNotInitialized
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	db.persistLocked(nil)

	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			db.debug.LogError("close connection", err)
		}
		db.conn = nil
	}
	db.online = false
	db.checkpoint.drop()

	err := db.engine.Close()
	db.debug.Log("CLOSE name=%s", db.config.Name)
	db.debug.Close()
	if err != nil {
		return fmt.Errorf("skiff: close engine: %w", err)
	}
	return nil
}

// ---- transport handlers ----
// Handlers run on the transport's delivery goroutine and take the DB lock,
// so they serialize against public calls. User callbacks fire after the
// lock is released.

func (db *DB) handleCreate() {
	db.debug.LogTransport("create", "room created by this client")
	if cb := db.config.Callbacks.OnRoomCreate; cb != nil {
		cb()
	}
}

func (db *DB) handleJoin(snapshot []byte, inputs []Input) {
	db.mu.Lock()

	if db.closed {
		db.mu.Unlock()
		return
	}

	ordered := make([]Input, len(inputs))
	copy(ordered, inputs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	db.debug.LogTransport("join", fmt.Sprintf("%d historical inputs, %d snapshot bytes", len(ordered), len(snapshot)))

	ops := make([]Operation, 0, len(ordered))
	for _, in := range ordered {
		op, ok := inputToOperation(in)
		if !ok {
			db.debug.Log("JOIN skip unrecognized envelope type %q at seq=%d", in.Data.Type, in.Seq)
			continue
		}
		ops = append(ops, op)
	}

	// Hydration defers checkpoint and persistence work to the end: one
	// anchor at the final confirmedSeq, one blob write.
	applied := db.recon.hydrate(ops)
	db.persistLocked(db.freshImage())

	db.flushPendingLocked()
	db.online = true

	cb := db.config.Callbacks.OnConnect
	db.mu.Unlock()

	if cb != nil {
		cb(snapshot, applied)
	}
}

func (db *DB) handleInput(input Input) {
	op, ok := inputToOperation(input)
	if !ok {
		db.debug.Log("INPUT skip unrecognized envelope type %q at seq=%d", input.Data.Type, input.Seq)
		return
	}

	db.mu.Lock()

	if db.closed {
		db.mu.Unlock()
		return
	}

	res := db.recon.handle(op)
	if res.advanced {
		db.persistLocked(db.freshImage())
	}

	var cb func(Operation)
	if !res.ignored && !res.local {
		cb = db.config.Callbacks.OnInput
	}
	db.mu.Unlock()

	if cb != nil {
		cb(op)
	}
}

func (db *DB) handleDisconnect() {
	db.mu.Lock()
	db.online = false
	db.debug.LogTransport("disconnect", "connection lost, pending queue retained")
	cb := db.config.Callbacks.OnDisconnect
	db.mu.Unlock()

	if cb != nil {
		cb()
	}
}

func (db *DB) handleReconnect() {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return
	}
	db.online = true
	db.debug.LogTransport("reconnect", fmt.Sprintf("flushing %d pending", db.oplog.pendingCount()))
	db.flushPendingLocked()
	db.mu.Unlock()
}

// ---- persistence and send ----

// persistLocked writes the serialized engine to the blob store. Callers
// that just re-established the checkpoint pass its image to skip a second
// serialization; others pass nil. Persistence failures are logged, not
// surfaced: the in-engine state remains authoritative for this session.
func (db *DB) persistLocked(image []byte) {
	if image == nil {
		var err error
		image, err = db.engine.Serialize()
		if err != nil {
			db.logger.Printf("WARNING: serialize for persistence: %v", err)
			return
		}
	}
	if err := db.blobs.Put(db.config.Name+"/"+blobKeyDB, image); err != nil {
		db.logger.Printf("WARNING: persist blob: %v", err)
	}
}

// freshImage returns the checkpoint image when it matches the current
// confirmed state, saving a serialization round.
func (db *DB) freshImage() []byte {
	if db.checkpoint.savepointSeq() == db.recon.confirmedSeq {
		return db.checkpoint.image
	}
	return nil
}

// sendLocked ships one pending operation. Send failures keep the op
// queued; it re-flushes on the next reconnect.
func (db *DB) sendLocked(op Operation) {
	if db.conn == nil || !db.online {
		return
	}
	env := Envelope{Type: EnvelopeOp, Operation: &op}
	if err := db.conn.Send(context.Background(), env); err != nil {
		db.logger.Printf("WARNING: send %s: %v", op.ID, err)
		db.debug.LogError("send", err)
	}
}

// flushPendingLocked sends the whole pending queue in localSeq order.
func (db *DB) flushPendingLocked() {
	if db.conn == nil {
		return
	}
	for _, op := range db.oplog.iteratePending() {
		op := op
		env := Envelope{Type: EnvelopeOp, Operation: &op}
		if err := db.conn.Send(context.Background(), env); err != nil {
			db.logger.Printf("WARNING: flush %s: %v", op.ID, err)
			return
		}
		db.debug.LogOp("flush", &op)
	}
}
