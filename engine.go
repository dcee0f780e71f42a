package skiff

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/skiffdb/skiff/internal/store/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Engine is the embedded SQL engine the sync core runs against. It executes
// statements, answers queries, and round-trips its full state through bytes
// so checkpoints and persistence can capture it at any point.
type Engine interface {
	// Exec runs a mutating statement and reports rows affected.
	Exec(query string, args ...any) (int64, error)
	// Query runs a read-only statement and materializes the rows.
	Query(query string, args ...any) (*Result, error)
	// Serialize returns a consistent byte image of the current state.
	Serialize() ([]byte, error)
	// Deserialize replaces the current state with a previously serialized
	// image. The engine remains usable afterwards.
	Deserialize(data []byte) error
	// Close releases the engine. Further calls return ErrClosed.
	Close() error
}

// SQLiteEngine implements Engine over a file-backed SQLite database using
// the pure-Go modernc driver. A single pooled connection keeps every write
// and the serialized image on one view of the database.
type SQLiteEngine struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
	path   string
}

// OpenSQLite opens or creates the engine working file at path and runs the
// internal schema migrations.
func OpenSQLite(path string) (*SQLiteEngine, error) {
	db, err := openDatabase(path)
	if err != nil {
		return nil, err
	}

	e := &SQLiteEngine{db: db, path: path}
	if err := e.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: migrate schema: %w", err)
	}

	return e, nil
}

// RestoreSQLite writes a serialized image to path and opens the engine on
// it. Used at load time when the blob store holds a previous session.
func RestoreSQLite(path string, data []byte) (*SQLiteEngine, error) {
	if err := replaceDatabaseFile(path, data); err != nil {
		return nil, err
	}
	return OpenSQLite(path)
}

func openDatabase(path string) (*sql.DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("engine: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("engine: open database: %w", err)
	}

	// One connection: applies, checkpoint snapshots, and serialization all
	// observe the same view.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: set busy timeout: %w", err)
	}

	return db, nil
}

func (e *SQLiteEngine) migrate() error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(e.db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Exec runs a mutating statement and reports rows affected.
func (e *SQLiteEngine) Exec(query string, args ...any) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, ErrClosed
	}

	res, err := e.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("engine: exec: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("engine: rows affected: %w", err)
	}
	return affected, nil
}

// Query runs a read-only statement and materializes the rows into maps.
func (e *SQLiteEngine) Query(query string, args ...any) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}

	rows, err := e.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("engine: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("engine: query columns: %w", err)
	}

	result := &Result{Columns: cols, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("engine: scan row: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engine: iterate rows: %w", err)
	}

	result.RowsAffected = int64(len(result.Rows))
	return result, nil
}

// Serialize returns a compacted, consistent byte image of the database via
// VACUUM INTO a scratch file.
func (e *SQLiteEngine) Serialize() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}

	tmp, err := os.CreateTemp(filepath.Dir(e.path), ".serialize-*.db")
	if err != nil {
		return nil, fmt.Errorf("engine: serialize scratch file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(tmpPath); err != nil {
		return nil, fmt.Errorf("engine: serialize scratch file: %w", err)
	}
	defer os.Remove(tmpPath)

	if _, err := e.db.Exec("VACUUM INTO ?", tmpPath); err != nil {
		return nil, fmt.Errorf("engine: serialize: %w", err)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("engine: read serialized image: %w", err)
	}
	return data, nil
}

// Deserialize replaces the database with a previously serialized image and
// reopens it in place.
func (e *SQLiteEngine) Deserialize(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	if err := e.db.Close(); err != nil {
		return fmt.Errorf("engine: close before restore: %w", err)
	}

	if err := replaceDatabaseFile(e.path, data); err != nil {
		return err
	}

	db, err := openDatabase(e.path)
	if err != nil {
		return err
	}
	e.db = db
	return nil
}

// Close releases the engine.
func (e *SQLiteEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.db.Close()
}

// replaceDatabaseFile swaps the on-disk database with a serialized image,
// clearing stale WAL artifacts from the previous incarnation.
func replaceDatabaseFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("engine: create directory: %w", err)
	}

	for _, stale := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("engine: clear %s: %w", stale, err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("engine: write restored image: %w", err)
	}
	return nil
}
