package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned by Backend.Get when no value is stored under the
// requested key.
var ErrNotFound = errors.New("prefs: key not found")

// Backend is a durable key-value store holding preference documents.
// Implementations must be safe for use from the Store's writer goroutine
// concurrently with Get.
type Backend interface {
	// Get returns the value stored under key, or an error wrapping
	// ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Close releases resources held by the backend.
	Close() error
}

// MemoryBackend keeps documents in process memory. It is the backend used
// when no durable storage is configured, and in tests.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string][]byte)}
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, fmt.Errorf("prefs: memory get %q: %w", key, ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

// Put implements Backend.
func (m *MemoryBackend) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

// Close implements Backend. It is a no-op.
func (m *MemoryBackend) Close() error { return nil }

// FileBackend stores each key as a JSON file in a directory. Writes go to a
// temporary file that is renamed over the target, so a crash mid-write never
// leaves a truncated document behind.
type FileBackend struct {
	dir string
}

// NewFileBackend returns a FileBackend rooted at dir, creating the directory
// if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("prefs: create dir %q: %w", dir, err)
	}
	return &FileBackend{dir: dir}, nil
}

// Path returns the file that holds key.
func (f *FileBackend) Path(key string) string {
	name := strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(key)
	return filepath.Join(f.dir, name+".json")
}

// Get implements Backend.
func (f *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("prefs: file get %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("prefs: file get %q: %w", key, err)
	}
	return data, nil
}

// Put implements Backend.
func (f *FileBackend) Put(_ context.Context, key string, value []byte) error {
	target := f.Path(key)
	tmp, err := os.CreateTemp(f.dir, ".prefs-*")
	if err != nil {
		return fmt.Errorf("prefs: file put %q: %w", key, err)
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("prefs: file put %q: write: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("prefs: file put %q: close: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("prefs: file put %q: rename: %w", key, err)
	}
	return nil
}

// Close implements Backend. It is a no-op.
func (f *FileBackend) Close() error { return nil }
