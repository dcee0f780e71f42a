package store

import (
	"os"
	"path/filepath"
)

// DefaultRoot returns the root directory for skiff state.
// Honors SKIFF_DIR, then ~/.skiff, falls back to ./.skiff if the home
// directory is unavailable.
func DefaultRoot() string {
	if dir := os.Getenv("SKIFF_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		// Fallback to current working directory
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".skiff")
	}
	return filepath.Join(home, ".skiff")
}

// DatabasePath returns the working SQLite file for a database name.
// Example: DatabasePath("/root/.skiff", "notes") -> /root/.skiff/work/notes.db
func DatabasePath(root, name string) string {
	return filepath.Join(root, "work", name+".db")
}

// BlobRoot returns the directory backing the default file blob store.
// Blob keys are namespaced by database name, so one root serves every
// database under it.
func BlobRoot(root string) string {
	return filepath.Join(root, "blobs")
}
