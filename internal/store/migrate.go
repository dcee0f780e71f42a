package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LegacyDatabasePath returns the flat pre-work-dir location for a database.
// Early releases kept working files directly under the root: <root>/<name>.db.
func LegacyDatabasePath(root, name string) string {
	return filepath.Join(root, name+".db")
}

// MigrationResult contains the result of a layout migration.
type MigrationResult struct {
	// Migrated is true if migration occurred, false if no migration needed.
	Migrated bool
	// SourcePath is the path of the file that was migrated (empty if not migrated).
	SourcePath string
	// DestPath is the new working file path (empty if not migrated).
	DestPath string
}

// MigrateLegacyLayout moves a database from the flat legacy layout into the
// work directory.
//
// Parameters:
//   - legacyPath: explicit source override (empty to check LegacyDatabasePath)
//   - root: skiff state root (typically ~/.skiff)
//   - name: database name
//
// Migration logic:
//  1. If the working file already exists, skip migration
//  2. Check legacyPath if provided, otherwise check LegacyDatabasePath
//  3. If a legacy file is found, copy it to <root>/work/<name>.db
//
// The legacy file is left in place; the caller decides when to remove it.
func MigrateLegacyLayout(legacyPath, root, name string) (MigrationResult, error) {
	destPath := DatabasePath(root, name)
	if _, err := os.Stat(destPath); err == nil {
		// Working file exists, no migration needed
		return MigrationResult{Migrated: false}, nil
	}

	sourcePath := legacyPath
	if sourcePath == "" {
		sourcePath = LegacyDatabasePath(root, name)
	}

	if _, err := os.Stat(sourcePath); os.IsNotExist(err) {
		// No legacy file to migrate
		return MigrationResult{Migrated: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return MigrationResult{Migrated: false}, fmt.Errorf("create work directory: %w", err)
	}

	if err := copyFile(sourcePath, destPath); err != nil {
		return MigrationResult{Migrated: false}, fmt.Errorf("copy database: %w", err)
	}

	return MigrationResult{
		Migrated:   true,
		SourcePath: sourcePath,
		DestPath:   destPath,
	}, nil
}

// copyFile copies a file from src to dst with durability guarantees.
// On failure, attempts to clean up any partial destination file.
func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	dest, err := os.Create(dst)
	if err != nil {
		return err
	}

	// Track whether we succeeded to decide cleanup
	success := false
	defer func() {
		dest.Close()
		if !success {
			_ = os.Remove(dst) // Best-effort cleanup on failure
		}
	}()

	if _, err = io.Copy(dest, source); err != nil {
		return err
	}

	// Ensure data is flushed to disk for SQLite durability
	if err := dest.Sync(); err != nil {
		return err
	}

	success = true
	return nil
}
