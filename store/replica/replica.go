// Package replica implements a storage backend that mirrors files to several nested backends.
package replica

import (
	"context"
	stderrs "errors"
	"reflect"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/sitesync"
	"github.com/bobg/sitesync/store"
)

var _ store.Backend = (*Backend)(nil)

// Backend delegates to two sets of nested backends.
// One set is synchronous:
// a change must succeed in all of these before the call making it returns,
// and an error from any of them fails the call.
// The other set is asynchronous:
// changes are queued for these but not waited for.
// If any asynchronous change fails,
// the whole Backend is put into an error state and further operations fail
// until the next Init.
type Backend struct {
	sync  []store.Backend
	async []store.Backend
	n     int
	ctx   context.Context // parent of the async goroutines' contexts

	lifeMu sync.Mutex // serializes Init and Close

	mu     sync.Mutex // protects the fields below
	queues []chan<- op
	cancel context.CancelFunc
	done   chan struct{} // closed when the current generation's watcher exits
	err    error         // the error from an async goroutine, if any
}

type opKind int

const (
	opWrite opKind = iota
	opDelete
	opClear
)

type op struct {
	kind    opKind
	path    string
	content []byte
}

var (
	errNotInitialized = errors.New("replica backend not initialized")
	errClosed         = errors.New("replica backend closed")
)

// New produces a new Backend.
// The set of synchronous backends must be non-empty.
// The set of asynchronous backends may be empty.
// The Backend is unusable until Init is called.
//
// Init launches a goroutine for each asynchronous backend,
// and Close stops them.
// Canceling ctx also stops them,
// placing the Backend in an error state.
//
// Each asynchronous backend has a queue of length n,
// which must be 1 or greater.
// If one falls too far behind,
// changes block until they can be queued.
func New(ctx context.Context, syncs, asyncs []store.Backend, n int) (*Backend, error) {
	if len(syncs) == 0 {
		return nil, errors.New("no synchronous backends")
	}
	if n < 1 {
		n = 1
	}
	return &Backend{
		sync:  syncs,
		async: asyncs,
		n:     n,
		ctx:   ctx,
		err:   errNotInitialized,
	}, nil
}

// start launches a new generation of async goroutines.
// The caller holds b.mu, and no generation is running.
func (b *Backend) start() {
	b.err = nil
	if len(b.async) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(b.ctx)
	done := make(chan struct{})
	b.cancel, b.done = cancel, done
	b.queues = nil

	selectCases := make([]reflect.SelectCase, 1+len(b.async))

	for i, a := range b.async {
		var (
			ops  = make(chan op, b.n)
			errs = make(chan error, 1)
		)

		b.queues = append(b.queues, ops)

		selectCases[i].Dir = reflect.SelectRecv
		selectCases[i].Chan = reflect.ValueOf(errs)

		go runAsync(ctx, a, ops, errs)
	}

	selectCases[len(b.async)].Dir = reflect.SelectRecv
	selectCases[len(b.async)].Chan = reflect.ValueOf(ctx.Done())

	go func() {
		defer close(done)

		chosen, errval, ok := reflect.Select(selectCases)
		cancel()

		b.mu.Lock()
		defer b.mu.Unlock()

		if b.done != done {
			// Stopped by Close or Init.
			return
		}
		switch {
		case chosen == len(b.async):
			b.err = ctx.Err()
		case ok:
			b.err = errval.Interface().(error)
		default:
			b.err = errors.New("async backend exited")
		}
	}()
}

// stop ends the current generation of async goroutines, if any,
// and waits for its watcher to exit.
// Afterwards the Backend fails every operation with err.
func (b *Backend) stop(err error) {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done, b.queues = nil, nil, nil
	b.err = err
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Runs as a goroutine until ctx is canceled or an error occurs (which it writes to errs).
func runAsync(ctx context.Context, b store.Backend, ops <-chan op, errs chan<- error) {
	defer close(errs)

	for {
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return

		case o := <-ops:
			var err error
			switch o.kind {
			case opWrite:
				err = b.Write(ctx, o.path, o.content)
			case opDelete:
				err = b.Delete(ctx, o.path)
				if stderrs.Is(err, sitesync.ErrNotFound) {
					err = nil
				}
			case opClear:
				err = b.Clear(ctx, o.path)
			}
			if err != nil {
				errs <- errors.Wrapf(err, "in async backend")
				return
			}
		}
	}
}

func (b *Backend) checkErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// each runs f on every synchronous backend concurrently.
func (b *Backend) each(ctx context.Context, f func(context.Context, store.Backend) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, nested := range b.sync {
		nested := nested
		g.Go(func() error { return f(ctx, nested) })
	}
	return g.Wait()
}

func (b *Backend) enqueue(ctx context.Context, o op) error {
	b.mu.Lock()
	queues, done := b.queues, b.done
	b.mu.Unlock()

	for _, q := range queues {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return errors.Wrap(b.checkErr(), "in async-backend goroutine")
		case q <- o:
		}
	}
	return nil
}

// Init implements store.Backend.
// Every nested backend,
// synchronous and asynchronous,
// is initialized before Init returns.
// The async goroutines are then started,
// unless they are already running without error.
// A Backend in the error state,
// or one that has been closed,
// is usable again after a successful Init.
func (b *Backend) Init(ctx context.Context) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, nested := range b.sync {
		nested := nested
		g.Go(func() error { return nested.Init(gctx) })
	}
	for _, a := range b.async {
		a := a
		g.Go(func() error { return a.Init(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	b.mu.Lock()
	running := b.err == nil
	b.mu.Unlock()
	if running {
		return nil
	}

	b.stop(errNotInitialized)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.start()
	return nil
}

// Write implements store.Backend.
func (b *Backend) Write(ctx context.Context, path string, content []byte) error {
	if err := b.checkErr(); err != nil {
		return errors.Wrap(err, "in async-backend goroutine")
	}
	if err := b.enqueue(ctx, op{kind: opWrite, path: path, content: content}); err != nil {
		return err
	}
	return b.each(ctx, func(ctx context.Context, nested store.Backend) error {
		return nested.Write(ctx, path, content)
	})
}

// Read implements store.Backend.
// It asks every synchronous backend,
// returning the first content found
// and canceling the other requests.
// If none has the file,
// one of their errors is returned.
func (b *Backend) Read(ctx context.Context, path string) ([]byte, error) {
	if err := b.checkErr(); err != nil {
		return nil, errors.Wrap(err, "in async-backend goroutine")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		content []byte
		err     error
	}

	ch := make(chan result, len(b.sync))
	for _, nested := range b.sync {
		nested := nested
		go func() {
			content, err := nested.Read(ctx, path)
			ch <- result{content: content, err: err}
		}()
	}

	var firstErr error
	for range b.sync {
		r := <-ch
		if r.err == nil {
			return r.content, nil
		}
		if firstErr == nil || stderrs.Is(r.err, sitesync.ErrNotFound) {
			firstErr = r.err
		}
	}
	return nil, firstErr
}

// Delete implements store.Backend.
// It fails with sitesync.ErrNotFound only if no synchronous backend has the file.
func (b *Backend) Delete(ctx context.Context, path string) error {
	if err := b.checkErr(); err != nil {
		return errors.Wrap(err, "in async-backend goroutine")
	}
	if err := b.enqueue(ctx, op{kind: opDelete, path: path}); err != nil {
		return err
	}

	var (
		mu    sync.Mutex
		found bool
	)
	err := b.each(ctx, func(ctx context.Context, nested store.Backend) error {
		err := nested.Delete(ctx, path)
		if stderrs.Is(err, sitesync.ErrNotFound) {
			return nil
		}
		if err == nil {
			mu.Lock()
			found = true
			mu.Unlock()
		}
		return err
	})
	if err != nil {
		return err
	}
	if !found {
		return sitesync.ErrNotFound
	}
	return nil
}

// List implements store.Backend.
// It produces the union of the paths in the synchronous backends,
// in sorted order.
func (b *Backend) List(ctx context.Context, prefix string, f func(string) error) error {
	if err := b.checkErr(); err != nil {
		return errors.Wrap(err, "in async-backend goroutine")
	}

	var (
		mu    sync.Mutex
		paths = make(map[string]struct{})
	)
	err := b.each(ctx, func(ctx context.Context, nested store.Backend) error {
		return nested.List(ctx, prefix, func(p string) error {
			mu.Lock()
			paths[p] = struct{}{}
			mu.Unlock()
			return nil
		})
	})
	if err != nil {
		return err
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)
	for _, p := range sorted {
		if err := f(p); err != nil {
			return err
		}
	}
	return nil
}

// Clear implements store.Backend.
func (b *Backend) Clear(ctx context.Context, prefix string) error {
	if err := b.checkErr(); err != nil {
		return errors.Wrap(err, "in async-backend goroutine")
	}
	if err := b.enqueue(ctx, op{kind: opClear, path: prefix}); err != nil {
		return err
	}
	return b.each(ctx, func(ctx context.Context, nested store.Backend) error {
		return nested.Clear(ctx, prefix)
	})
}

// Close implements store.Backend.
// It stops the asynchronous goroutines,
// so the Backend cannot be used again until the next Init,
// and closes every nested backend.
// Changes still queued for asynchronous backends are dropped.
func (b *Backend) Close() error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	b.stop(errClosed)

	var firstErr error
	for _, nested := range b.sync {
		if err := nested.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, a := range b.async {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func createList(ctx context.Context, conf map[string]interface{}, key string) ([]store.Backend, error) {
	items, ok := conf[key].([]interface{})
	if !ok {
		return nil, nil
	}
	var result []store.Backend
	for _, item := range items {
		nested, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("%q item is not an object", key)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.Errorf("%q item missing \"type\"", key)
		}
		b, err := store.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrapf(err, "creating nested %s backend", key)
		}
		result = append(result, b)
	}
	return result, nil
}

func init() {
	store.Register("replica", func(ctx context.Context, conf map[string]interface{}) (store.Backend, error) {
		syncs, err := createList(ctx, conf, "sync")
		if err != nil {
			return nil, err
		}
		if len(syncs) == 0 {
			return nil, errors.New(`missing "sync" parameter`)
		}
		asyncs, err := createList(ctx, conf, "async")
		if err != nil {
			return nil, err
		}

		queueLen := 10
		if _, ok := conf["queuelen"]; ok {
			queueLen, err = store.IntParam(conf, "queuelen")
			if err != nil {
				return nil, err
			}
		}

		return New(ctx, syncs, asyncs, queueLen)
	})
}
