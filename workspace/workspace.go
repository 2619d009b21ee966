// Package workspace implements a mounted, observable file store
// holding the local state of a site.
package workspace

import (
	"bytes"
	"context"
	stderrs "errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/sitesync"
	"github.com/bobg/sitesync/store"
)

// State is the mount state of a Workspace.
type State int

const (
	Unmounted State = iota
	Mounting
	Mounted
)

func (s State) String() string {
	switch s {
	case Unmounted:
		return "unmounted"
	case Mounting:
		return "mounting"
	case Mounted:
		return "mounted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Workspace is a tree of files rooted at a path within a storage backend.
//
// The backend is mounted at a mount path,
// which is the workspace root or one of its ancestors.
// Workspaces that share a mount path must share a backend;
// their initialization is coordinated through a Registry.
//
// Every successful WriteFile and DeleteFile
// is reported to the observers registered with OnFileChange,
// exactly once,
// after the backend has made the change durable.
// Clear is the exception:
// it reports nothing.
type Workspace struct {
	backend   store.Backend
	root      string
	mountPath string
	rel       string // root relative to mountPath, "/" or "/x/y"
	reg       *Registry

	mu    sync.Mutex // protects state and serializes mutations
	state State

	// closeOnSettle is set when Unmount runs while an initialization is in flight.
	// The backend is closed when that initialization succeeds.
	closeOnSettle bool

	notifyMu sync.Mutex // orders notifications the same as mutations
	subs     Subscribers
}

// New produces a new, unmounted Workspace.
// The mountPath may be empty,
// meaning the same as root.
// Otherwise it must equal root or be an ancestor of it,
// or New fails with sitesync.ErrInvalidMountConfiguration.
// If reg is nil, DefaultRegistry is used.
func New(backend store.Backend, root, mountPath string, reg *Registry) (*Workspace, error) {
	root = cleanPath(root)
	if mountPath == "" {
		mountPath = root
	}
	mountPath = cleanPath(mountPath)

	var rel string
	switch {
	case mountPath == root:
		rel = "/"
	case mountPath == "/":
		rel = root
	case strings.HasPrefix(root, mountPath+"/"):
		rel = root[len(mountPath):]
	default:
		return nil, errors.Wrapf(sitesync.ErrInvalidMountConfiguration, "mount path %s is not %s or an ancestor of it", mountPath, root)
	}

	if reg == nil {
		reg = DefaultRegistry
	}

	return &Workspace{
		backend:   backend,
		root:      root,
		mountPath: mountPath,
		rel:       rel,
		reg:       reg,
	}, nil
}

// Root is the workspace root path.
func (w *Workspace) Root() string { return w.root }

// MountKey is the key under which w's initialization is registered:
// its mount path.
func (w *Workspace) MountKey() string { return w.mountPath }

// State is w's current mount state.
func (w *Workspace) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Mount makes w ready for I/O.
// Mounting a mounted workspace does nothing.
// Concurrent calls for the same mount key share one backend initialization.
// If that fails,
// the error wraps sitesync.ErrMountUnavailable
// and w returns to the unmounted state.
// If w is unmounted before the initialization settles,
// Mount fails with sitesync.ErrNotMounted
// and w stays unmounted.
func (w *Workspace) Mount(ctx context.Context) error {
	w.mu.Lock()
	if w.state == Mounted {
		w.mu.Unlock()
		return nil
	}
	w.state = Mounting
	w.closeOnSettle = false
	w.mu.Unlock()

	err := w.reg.Do(ctx, w.mountPath, w.backend.Init)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		if w.state == Mounting {
			w.state = Unmounted
		}
		w.closeOnSettle = false
		return fmt.Errorf("%w: mounting %s: %w", sitesync.ErrMountUnavailable, w.mountPath, err)
	}

	switch w.state {
	case Mounted:
		return nil
	case Mounting:
		w.state = Mounted
		return nil
	}

	if w.closeOnSettle {
		w.closeOnSettle = false
		if err := w.backend.Close(); err != nil {
			return errors.Wrapf(err, "closing %s after unmount", w.mountPath)
		}
	}
	return errors.Wrapf(sitesync.ErrNotMounted, "unmounted while mounting %s", w.mountPath)
}

// Unmount drops all observers and releases the backend.
// Unmounting an unmounted workspace does nothing.
// If a mount is in progress,
// the backend is released once its initialization settles.
func (w *Workspace) Unmount() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case Unmounted:
		return nil
	case Mounting:
		w.state = Unmounted
		w.closeOnSettle = true
		w.subs.Reset()
		return nil
	}
	w.state = Unmounted
	w.subs.Reset()
	return errors.Wrapf(w.backend.Close(), "unmounting %s", w.mountPath)
}

// OnFileChange registers f to be called after every WriteFile and DeleteFile.
// Observers are called synchronously
// and must not call WriteFile, DeleteFile, or ImportArchive on w.
// The returned function deregisters f.
func (w *Workspace) OnFileChange(f func(Event)) (unsubscribe func()) {
	return w.subs.Subscribe(f)
}

// WriteFile stores content at p,
// replacing any existing file there.
// On success the observers receive an Updated event.
func (w *Workspace) WriteFile(ctx context.Context, p string, content []byte) error {
	p, err := normalize(p)
	if err != nil {
		return err
	}
	content = bytes.Clone(content)
	if content == nil {
		content = []byte{}
	}

	w.mu.Lock()
	if w.state != Mounted {
		w.mu.Unlock()
		return sitesync.ErrNotMounted
	}
	if err := w.backend.Write(ctx, w.backendPath(p), content); err != nil {
		w.mu.Unlock()
		return ioErr("writing", p, err)
	}
	w.notifyMu.Lock()
	w.mu.Unlock()

	defer w.notifyMu.Unlock()
	w.subs.Notify(Event{Kind: Updated, Path: p, Content: content})
	return nil
}

// DeleteFile removes the file at p.
// It fails with sitesync.ErrNotFound if there is none.
// On success the observers receive a Removed event.
func (w *Workspace) DeleteFile(ctx context.Context, p string) error {
	p, err := normalize(p)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.state != Mounted {
		w.mu.Unlock()
		return sitesync.ErrNotMounted
	}
	if err := w.backend.Delete(ctx, w.backendPath(p)); err != nil {
		w.mu.Unlock()
		if stderrs.Is(err, sitesync.ErrNotFound) {
			return errors.Wrapf(sitesync.ErrNotFound, "deleting %s", p)
		}
		return ioErr("deleting", p, err)
	}
	w.notifyMu.Lock()
	w.mu.Unlock()

	defer w.notifyMu.Unlock()
	w.subs.Notify(Event{Kind: Removed, Path: p})
	return nil
}

// ReadFile gets the content of the file at p.
// It fails with sitesync.ErrNotFound if there is none.
func (w *Workspace) ReadFile(ctx context.Context, p string) ([]byte, error) {
	p, err := normalize(p)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != Mounted {
		return nil, sitesync.ErrNotMounted
	}
	content, err := w.backend.Read(ctx, w.backendPath(p))
	if stderrs.Is(err, sitesync.ErrNotFound) {
		return nil, errors.Wrapf(sitesync.ErrNotFound, "reading %s", p)
	}
	if err != nil {
		return nil, ioErr("reading", p, err)
	}
	return content, nil
}

// ListFiles lists every file in the workspace, recursively.
// Each path begins with a single "/".
// The order is whatever the backend produces;
// callers that need a stable order must sort.
func (w *Workspace) ListFiles(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != Mounted {
		return nil, sitesync.ErrNotMounted
	}

	var paths []string
	err := w.backend.List(ctx, w.backendPrefix(), func(bp string) error {
		paths = append(paths, w.workspacePath(bp))
		return nil
	})
	if err != nil {
		return nil, ioErr("listing", w.root, err)
	}
	return paths, nil
}

// Clear removes every file in the workspace.
// It does not notify observers;
// callers are expected to take a fresh snapshot afterward.
func (w *Workspace) Clear(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != Mounted {
		return sitesync.ErrNotMounted
	}
	if err := w.backend.Clear(ctx, w.backendPrefix()); err != nil {
		return ioErr("clearing", w.root, err)
	}
	return nil
}

func (w *Workspace) backendPath(p string) string {
	if w.rel == "/" {
		return p
	}
	return w.rel + p
}

func (w *Workspace) backendPrefix() string {
	if w.rel == "/" {
		return "/"
	}
	return w.rel + "/"
}

func (w *Workspace) workspacePath(bp string) string {
	if w.rel == "/" {
		return bp
	}
	return strings.TrimPrefix(bp, w.rel)
}

func ioErr(op, p string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", sitesync.ErrIO, op, p, err)
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}

// normalize turns p into a clean absolute path naming a file.
func normalize(p string) (string, error) {
	p = cleanPath(strings.ReplaceAll(p, "\\", "/"))
	if p == "/" {
		return "", errors.New("empty file path")
	}
	return p, nil
}
