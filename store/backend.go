// Package store defines the durable storage beneath a workspace,
// and a registry of named backend implementations.
package store

import "context"

// Backend is durable file storage for a workspace mount.
// Paths are slash-separated and begin with "/".
// They are relative to the mount, not to the host.
type Backend interface {
	// Init makes the backend ready for I/O.
	// It is called once per mount and must be safe to call again after Close.
	Init(context.Context) error

	// Write stores content at path,
	// replacing whatever was there.
	// Intermediate directories, if the backend has such a notion,
	// are created as needed.
	// A successful Write is durable when it returns.
	Write(ctx context.Context, path string, content []byte) error

	// Read gets the content at path.
	// It returns sitesync.ErrNotFound if there is none.
	Read(ctx context.Context, path string) ([]byte, error)

	// Delete removes the file at path.
	// It returns sitesync.ErrNotFound if there is none.
	Delete(ctx context.Context, path string) error

	// List calls f for every file whose path begins with prefix,
	// in whatever order is natural for the backend.
	// If f returns an error,
	// List exits with that error.
	List(ctx context.Context, prefix string, f func(path string) error) error

	// Clear removes every file whose path begins with prefix.
	Clear(ctx context.Context, prefix string) error

	// Close releases resources acquired by Init.
	Close() error
}
