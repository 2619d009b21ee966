package workspace

import (
	"fmt"
	"sync"
)

// EventKind tells what happened to a file.
type EventKind int

const (
	// Updated means a file was created or overwritten.
	Updated EventKind = iota + 1

	// Removed means a file was deleted.
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event describes one file-level mutation.
// Content is set only for Updated events.
// It is shared among observers and must not be modified.
type Event struct {
	Kind    EventKind
	Path    string
	Content []byte
}

// Subscribers is a set of observers of Events.
// Each Notify reaches every observer registered at the time of the call,
// once,
// in registration order.
type Subscribers struct {
	mu   sync.Mutex
	next int
	subs []subscriber
}

type subscriber struct {
	id int
	f  func(Event)
}

// Subscribe adds f to the set.
// The returned function removes it;
// calling that more than once is harmless.
func (s *Subscribers) Subscribe(f func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs = append(s.subs, subscriber{id: id, f: f})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Subscribers) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Notify calls every current observer with ev.
// Observers run synchronously on the calling goroutine.
func (s *Subscribers) Notify(ev Event) {
	s.mu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.f(ev)
	}
}

// Len is the number of registered observers.
func (s *Subscribers) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Reset removes all observers.
func (s *Subscribers) Reset() {
	s.mu.Lock()
	s.subs = nil
	s.mu.Unlock()
}
