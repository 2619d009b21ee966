// Package lru implements a storage backend that acts as a least-recently-used read cache for a nested backend.
package lru

import (
	"bytes"
	"context"

	lru "github.com/hashicorp/golang-lru"

	"github.com/bobg/sitesync/store"
)

var _ store.Backend = &Backend{}

// Backend implements a memory-based least-recently-used cache for a storage backend.
// Writes pass through to the nested backend
// and replace the cached content.
// Deletes and clears evict.
type Backend struct {
	c *lru.Cache // path->[]byte
	b store.Backend
}

// New produces a new Backend wrapping b and caching up to size files.
func New(b store.Backend, size int) (*Backend, error) {
	c, err := lru.New(size)
	return &Backend{b: b, c: c}, err
}

// Init implements store.Backend.
func (b *Backend) Init(ctx context.Context) error {
	b.c.Purge()
	return b.b.Init(ctx)
}

// Write implements store.Backend.
func (b *Backend) Write(ctx context.Context, path string, content []byte) error {
	if err := b.b.Write(ctx, path, content); err != nil {
		b.c.Remove(path)
		return err
	}
	b.c.Add(path, bytes.Clone(content))
	return nil
}

// Read implements store.Backend.
func (b *Backend) Read(ctx context.Context, path string) ([]byte, error) {
	if got, ok := b.c.Get(path); ok {
		return bytes.Clone(got.([]byte)), nil
	}
	content, err := b.b.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	b.c.Add(path, bytes.Clone(content))
	return content, nil
}

// Delete implements store.Backend.
func (b *Backend) Delete(ctx context.Context, path string) error {
	b.c.Remove(path)
	return b.b.Delete(ctx, path)
}

// List implements store.Backend.
func (b *Backend) List(ctx context.Context, prefix string, f func(string) error) error {
	return b.b.List(ctx, prefix, f)
}

// Clear implements store.Backend.
func (b *Backend) Clear(ctx context.Context, prefix string) error {
	for _, k := range b.c.Keys() {
		if path, ok := k.(string); ok && store.HasPrefix(path, prefix) {
			b.c.Remove(path)
		}
	}
	return b.b.Clear(ctx, prefix)
}

// Close implements store.Backend.
func (b *Backend) Close() error {
	b.c.Purge()
	return b.b.Close()
}

// Cached tells whether path is currently in the cache.
func (b *Backend) Cached(path string) bool {
	return b.c.Contains(path)
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (store.Backend, error) {
		size, err := store.IntParam(conf, "size")
		if err != nil {
			return nil, err
		}
		nested, err := store.CreateNested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, size)
	})
}
