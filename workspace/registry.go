package workspace

import (
	"context"
	"sync"
)

// Registry ensures that at most one initialization per mount key is in flight.
// A caller that arrives while an initialization is pending
// waits for it and shares its result
// instead of starting another.
// Once the initialization settles its entry is removed,
// so a failed mount can be retried.
//
// The zero Registry is ready to use.
type Registry struct {
	mu    sync.Mutex
	calls map[string]*call
}

type call struct {
	done    chan struct{}
	err     error
	waiters int
}

// DefaultRegistry is used by workspaces created without an explicit registry.
var DefaultRegistry = new(Registry)

// Do runs init for key unless a run for key is already in progress,
// in which case it waits for that run and returns its error.
// Canceling ctx abandons the wait
// but not an initialization this caller started.
func (r *Registry) Do(ctx context.Context, key string, init func(context.Context) error) error {
	r.mu.Lock()
	if c, ok := r.calls[key]; ok {
		c.waiters++
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return c.err
		}
	}

	if r.calls == nil {
		r.calls = make(map[string]*call)
	}
	c := &call{done: make(chan struct{}), waiters: 1}
	r.calls[key] = c
	r.mu.Unlock()

	c.err = init(ctx)

	r.mu.Lock()
	delete(r.calls, key)
	r.mu.Unlock()

	close(c.done)
	return c.err
}

// Pending reports how many callers are attached to the in-flight initialization for key.
// It is zero when none is in flight.
func (r *Registry) Pending(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.calls[key]; ok {
		return c.waiters
	}
	return 0
}
