// Package file implements a storage backend as a file hierarchy.
package file

import (
	"context"
	stderrs "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/bobg/sitesync"
	"github.com/bobg/sitesync/store"
)

var _ store.Backend = &Backend{}

// Backend is a file-based implementation of store.Backend.
// Workspace paths map to files beneath a root directory.
type Backend struct {
	root    string
	flocker flock.Locker
}

// New produces a new Backend storing files beneath root.
func New(root string) *Backend {
	return &Backend{root: root}
}

const tmpPrefix = ".sitesync-tmp-"

func (b *Backend) lockPath() string {
	return filepath.Clean(b.root) + ".lock"
}

func (b *Backend) filePath(path string) string {
	return filepath.Join(b.root, filepath.FromSlash(strings.TrimPrefix(path, "/")))
}

// Init implements store.Backend.
// It creates the root directory if necessary,
// holding a lock file beside it so that processes sharing the directory
// do not race to initialize it.
func (b *Backend) Init(context.Context) error {
	parent := filepath.Dir(filepath.Clean(b.root))
	if err := os.MkdirAll(parent, 0755); err != nil {
		return errors.Wrapf(err, "ensuring %s exists", parent)
	}

	if err := b.flocker.Lock(b.lockPath()); err != nil {
		return errors.Wrapf(err, "locking %s", b.lockPath())
	}
	defer b.flocker.Unlock(b.lockPath())

	if err := os.MkdirAll(b.root, 0755); err != nil {
		return errors.Wrapf(err, "ensuring %s exists", b.root)
	}
	info, err := os.Stat(b.root)
	if err != nil {
		return errors.Wrapf(err, "statting %s", b.root)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", b.root)
	}
	return nil
}

// Write implements store.Backend.
// The content goes to a temporary file first
// and is renamed into place,
// so readers never see a partial write.
func (b *Backend) Write(_ context.Context, path string, content []byte) error {
	var (
		fpath = b.filePath(path)
		dir   = filepath.Dir(fpath)
	)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	f, err := os.CreateTemp(dir, tmpPrefix)
	if err != nil {
		return errors.Wrapf(err, "creating temp file in %s", dir)
	}
	tmpname := f.Name()
	defer os.Remove(tmpname) // no-op after a successful rename

	err = func() error {
		defer f.Close()

		if _, err := f.Write(content); err != nil {
			return errors.Wrapf(err, "writing data to %s", tmpname)
		}
		return errors.Wrapf(f.Sync(), "syncing %s", tmpname)
	}()
	if err != nil {
		return err
	}

	return errors.Wrapf(os.Rename(tmpname, fpath), "renaming %s to %s", tmpname, fpath)
}

// Read implements store.Backend.
func (b *Backend) Read(_ context.Context, path string) ([]byte, error) {
	fpath := b.filePath(path)
	content, err := os.ReadFile(fpath)
	if stderrs.Is(err, fs.ErrNotExist) {
		return nil, sitesync.ErrNotFound
	}
	return content, errors.Wrapf(err, "reading %s", fpath)
}

// Delete implements store.Backend.
func (b *Backend) Delete(_ context.Context, path string) error {
	fpath := b.filePath(path)
	info, err := os.Stat(fpath)
	if stderrs.Is(err, fs.ErrNotExist) {
		return sitesync.ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "statting %s", fpath)
	}
	if info.IsDir() {
		return sitesync.ErrNotFound
	}
	return errors.Wrapf(os.Remove(fpath), "removing %s", fpath)
}

// List implements store.Backend.
// Paths are produced in the lexical order of filepath.WalkDir.
func (b *Backend) List(_ context.Context, prefix string, f func(string) error) error {
	return filepath.WalkDir(b.root, func(fpath string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, "walking %s", fpath)
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		rel, err := filepath.Rel(b.root, fpath)
		if err != nil {
			return errors.Wrapf(err, "relativizing %s", fpath)
		}
		path := "/" + filepath.ToSlash(rel)
		if !store.HasPrefix(path, prefix) {
			return nil
		}
		return f(path)
	})
}

// Clear implements store.Backend.
func (b *Backend) Clear(ctx context.Context, prefix string) error {
	if prefix == "" || prefix == "/" {
		entries, err := os.ReadDir(b.root)
		if err != nil {
			return errors.Wrapf(err, "reading dir %s", b.root)
		}
		for _, entry := range entries {
			p := filepath.Join(b.root, entry.Name())
			if err := os.RemoveAll(p); err != nil {
				return errors.Wrapf(err, "removing %s", p)
			}
		}
		return nil
	}

	if strings.HasSuffix(prefix, "/") {
		p := b.filePath(prefix)
		return errors.Wrapf(os.RemoveAll(p), "removing %s", p)
	}

	var paths []string
	err := b.List(ctx, prefix, func(path string) error {
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := os.Remove(b.filePath(path)); err != nil {
			return errors.Wrapf(err, "removing %s", path)
		}
	}
	return nil
}

// Close implements store.Backend.
func (b *Backend) Close() error {
	return nil
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (store.Backend, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
