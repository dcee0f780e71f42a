package skiff

import (
	"log"
	"os"

	"github.com/skiffdb/skiff/internal/store"
)

// Config configures a skiff database.
type Config struct {
	// Name identifies the database. It namespaces blob store keys and the
	// default working file, and doubles as the default room ID.
	// If empty, resolved via SKIFF_DB env, then "default".
	Name string

	// Dir is the root directory for skiff state (working files, default
	// blob store). If empty, resolved via SKIFF_DIR env, then ~/.skiff.
	Dir string

	// Path is the engine working file. The durable copy lives in the blob
	// store; this file is scratch space the engine runs against.
	// If empty, derived from Dir and Name.
	Path string

	// URL is the authority endpoint. If empty, the database operates in
	// offline-only mode and mutations queue until a later session connects.
	URL string

	// Room is the sync scope joined on connect.
	// Defaults to Name if not set.
	Room string

	// Transport carries envelopes to and from the authority.
	// Required when URL is set. See the wsroom package for the WebSocket
	// implementation.
	Transport Transport

	// Blobs is the durable key→bytes store for the serialized engine and
	// client ID. Defaults to a FileBlobStore under Dir.
	Blobs BlobStore

	// Engine overrides the embedded SQL engine. Defaults to SQLite at Path.
	// Tests inject in-memory or failing engines here.
	Engine Engine

	// Callbacks are user hooks fired after state transitions complete.
	Callbacks Callbacks

	// Logger receives warnings the user should see (gap-ahead arrivals,
	// swallowed apply failures). Defaults to stderr with a [skiff] prefix.
	Logger *log.Logger

	// Debug enables verbose tracing of apply, reconcile, checkpoint, and
	// transport transitions.
	Debug bool

	// DebugLogPath is the path to write debug logs.
	// Defaults to stderr if empty.
	DebugLogPath string
}

// DefaultConfig returns a Config with sensible defaults.
// Name defaults to "default" and Path is derived from Dir and Name.
func DefaultConfig() Config {
	root := store.DefaultRoot()
	return Config{
		Name: "default",
		Dir:  root,
		Path: store.DatabasePath(root, "default"),
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	SKIFF_DB         → Name
//	SKIFF_DIR        → Dir
//	SKIFF_URL        → URL
//	SKIFF_ROOM       → Room
//	SKIFF_DEBUG      → Debug (any non-empty value enables)
//	SKIFF_DEBUG_LOG  → DebugLogPath
func ConfigFromEnv() Config {
	return Config{
		Name:         os.Getenv("SKIFF_DB"),
		Dir:          os.Getenv("SKIFF_DIR"),
		URL:          os.Getenv("SKIFF_URL"),
		Room:         os.Getenv("SKIFF_ROOM"),
		Debug:        os.Getenv("SKIFF_DEBUG") != "",
		DebugLogPath: os.Getenv("SKIFF_DEBUG_LOG"),
	}
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.Name == "" {
		return &ValidationError{Field: "Name", Message: "required: database name"}
	}
	if err := store.ValidateName(c.Name); err != nil {
		return &ValidationError{Field: "Name", Message: err.Error()}
	}

	if c.Path == "" && c.Engine == nil {
		return &ValidationError{Field: "Path", Message: "required: engine working file"}
	}

	if c.URL != "" && c.Transport == nil {
		return &ValidationError{Field: "Transport", Message: "required when URL is set"}
	}

	if c.Room != "" && c.URL == "" {
		return &ValidationError{Field: "URL", Message: "required when Room is set"}
	}

	return nil
}

// IsOffline returns true if the database operates in offline-only mode.
// Offline mode is determined by URL being empty.
func (c *Config) IsOffline() bool {
	return c.URL == ""
}

// WithDefaults fills in default values for unset fields.
// Name resolution: explicit Name field > SKIFF_DB env > "default".
// Path and the blob store are derived from Dir and the resolved Name.
func (c Config) WithDefaults() Config {
	if c.Name == "" {
		resolved, err := store.ResolveName("")
		if err == nil {
			c.Name = resolved
		} else {
			c.Name = "default"
		}
	}

	if c.Dir == "" {
		c.Dir = store.DefaultRoot()
	}

	if c.Path == "" && c.Engine == nil {
		c.Path = store.DatabasePath(c.Dir, c.Name)
	}

	if c.Room == "" && c.URL != "" {
		c.Room = c.Name
	}

	if c.Blobs == nil {
		c.Blobs = NewFileBlobStore(store.BlobRoot(c.Dir))
	}

	if c.Logger == nil {
		c.Logger = log.New(os.Stderr, "[skiff] ", log.LstdFlags)
	}

	return c
}
