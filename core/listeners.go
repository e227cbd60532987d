package core

// Listener registry and the synchronous invoke(timeout) request/reply
// pattern built on top of it (spec.md §9 SERVICE HOOKS). Grounded on the
// teacher's cmd/cli ledger.go blocking-call-with-deadline idiom.

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ListenerRegistry tracks every Service registered against a chain and
// fans incoming events out to them.
type ListenerRegistry struct {
	mu       sync.RWMutex
	services []*Service
}

// NewListenerRegistry returns an empty registry.
func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{}
}

// Add registers a service.
func (r *ListenerRegistry) Add(s *Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = append(r.services, s)
}

// Dispatch feeds one accepted event to every registered service, invoking
// emit for any replies they produce.
func (r *ListenerRegistry) Dispatch(ctx context.Context, header RawHeader, event Event, emit func(Event) error) error {
	r.mu.RLock()
	services := make([]*Service, len(r.services))
	copy(services, r.services)
	r.mu.RUnlock()

	for _, s := range services {
		if err := s.Feed(ctx, header, event, emit); err != nil {
			return fmt.Errorf("service %s: %w", s.Name(), err)
		}
	}
	return nil
}

// replyWaiter is a pending invoke() call waiting for a correlated reply.
type replyWaiter struct {
	matches func(Event) bool
	reply   chan Event
}

// InvokeBroker correlates request events written onto a chain with reply
// events that later come back through the same chain's dispatch, giving
// callers a synchronous invoke(timeout) primitive over an otherwise
// asynchronous event log (spec.md §9).
type InvokeBroker struct {
	mu      sync.Mutex
	waiters []*replyWaiter
}

// NewInvokeBroker returns an empty broker.
func NewInvokeBroker() *InvokeBroker {
	return &InvokeBroker{}
}

// NotifyReply is called by the chain's dispatch path for every event; it
// wakes the first waiter whose matches predicate accepts the event.
func (b *InvokeBroker) NotifyReply(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, w := range b.waiters {
		if w.matches(event) {
			w.reply <- event
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return
		}
	}
}

// Invoke blocks until a reply event matching `matches` arrives or timeout
// elapses, returning ErrTimeout in the latter case (spec.md §9).
func (b *InvokeBroker) Invoke(ctx context.Context, matches func(Event) bool, timeout time.Duration) (Event, error) {
	w := &replyWaiter{matches: matches, reply: make(chan Event, 1)}
	b.mu.Lock()
	b.waiters = append(b.waiters, w)
	b.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-w.reply:
		return reply, nil
	case <-timer.C:
		b.removeWaiter(w)
		return Event{}, ErrTimeout
	case <-ctx.Done():
		b.removeWaiter(w)
		return Event{}, ctx.Err()
	}
}

func (b *InvokeBroker) removeWaiter(target *replyWaiter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, w := range b.waiters {
		if w == target {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return
		}
	}
}
