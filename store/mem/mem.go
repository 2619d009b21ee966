// Package mem implements an in-memory storage backend.
package mem

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/bobg/sitesync"
	"github.com/bobg/sitesync/store"
)

var _ store.Backend = &Backend{}

// Backend is a memory-based implementation of store.Backend.
// Its contents survive Close and a subsequent Init,
// so it behaves like a durable store for the lifetime of the process.
type Backend struct {
	mu    sync.Mutex
	files map[string][]byte
}

// New produces a new Backend.
func New() *Backend {
	return &Backend{files: make(map[string][]byte)}
}

// Init implements store.Backend.
func (b *Backend) Init(context.Context) error {
	return nil
}

// Write implements store.Backend.
func (b *Backend) Write(_ context.Context, path string, content []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.files[path] = bytes.Clone(content)
	return nil
}

// Read implements store.Backend.
func (b *Backend) Read(_ context.Context, path string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	content, ok := b.files[path]
	if !ok {
		return nil, sitesync.ErrNotFound
	}
	return bytes.Clone(content), nil
}

// Delete implements store.Backend.
func (b *Backend) Delete(_ context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.files[path]; !ok {
		return sitesync.ErrNotFound
	}
	delete(b.files, path)
	return nil
}

// List implements store.Backend.
// Paths are produced in lexicographic order.
func (b *Backend) List(_ context.Context, prefix string, f func(string) error) error {
	b.mu.Lock()
	paths := make([]string, 0, len(b.files))
	for path := range b.files {
		if store.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	b.mu.Unlock()

	sort.Strings(paths)
	for _, path := range paths {
		if err := f(path); err != nil {
			return err
		}
	}
	return nil
}

// Clear implements store.Backend.
func (b *Backend) Clear(_ context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for path := range b.files {
		if store.HasPrefix(path, prefix) {
			delete(b.files, path)
		}
	}
	return nil
}

// Close implements store.Backend.
func (b *Backend) Close() error {
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (store.Backend, error) {
		return New(), nil
	})
}
