package skiff

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// BlobStore is the durable key→bytes capability backing persistence.
// Keys are namespaced by database name ("<name>/db_blob"), so one store
// serves multiple databases. Implementations must be safe for concurrent
// use.
type BlobStore interface {
	// Get returns the bytes stored under key, or ErrBlobNotFound.
	Get(key string) ([]byte, error)
	// Put stores value under key, replacing any previous value.
	Put(key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// FileBlobStore stores each blob as a file under a root directory.
// Key path separators become directories, so namespaced keys land in
// per-database subdirectories.
type FileBlobStore struct {
	root string
}

// NewFileBlobStore creates a file-backed blob store rooted at dir.
// The directory is created lazily on first Put.
func NewFileBlobStore(dir string) *FileBlobStore {
	return &FileBlobStore{root: dir}
}

// Get returns the bytes stored under key.
func (s *FileBlobStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob: get %s: %w", key, err)
	}
	return data, nil
}

// Put stores value under key. The write is atomic: a temp file in the same
// directory is renamed over the target.
func (s *FileBlobStore) Put(key string, value []byte) error {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("blob: put %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return fmt.Errorf("blob: put %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("blob: put %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blob: put %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blob: put %s: %w", key, err)
	}
	return nil
}

// Delete removes the file for key.
func (s *FileBlobStore) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: delete %s: %w", key, err)
	}
	return nil
}

func (s *FileBlobStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// MemBlobStore is an in-memory blob store for tests and ephemeral use.
type MemBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemBlobStore creates an empty in-memory blob store.
func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{blobs: make(map[string][]byte)}
}

// Get returns the bytes stored under key.
func (s *MemBlobStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put stores a copy of value under key.
func (s *MemBlobStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := make([]byte, len(value))
	copy(data, value)
	s.blobs[key] = data
	return nil
}

// Delete removes key.
func (s *MemBlobStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, key)
	return nil
}

// Len reports the number of stored blobs.
func (s *MemBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
