// Package eventbus is an in-process publish/subscribe registry: an event
// name maps to an ordered list of callbacks.
//
// Emit runs callbacks synchronously on the caller's goroutine, in
// registration order, over a snapshot of the list taken when Emit starts.
// Callbacks may call On, Once, Off and Emit on the same router.
package eventbus

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go-notification-realtime/internal/infrastructure/logger"
)

// Handler receives the payload passed to Emit.
type Handler func(payload any)

// Subscription identifies one registration. The zero value matches nothing.
type Subscription struct {
	event string
	id    uint64
}

// Event returns the event name the subscription was made for.
func (s Subscription) Event() string { return s.event }

// Valid reports whether s was returned by On or Once.
func (s Subscription) Valid() bool { return s.id != 0 }

type entry struct {
	id      uint64
	handler Handler
	once    bool
	fired   atomic.Bool
}

// Router fans events out to subscribers.
type Router struct {
	mu     sync.RWMutex
	subs   map[string][]*entry
	nextID uint64

	logger logger.Logger
}

// New creates an empty router. Panics raised by handlers are logged to log.
func New(log logger.Logger) *Router {
	return &Router{
		subs:   make(map[string][]*entry),
		logger: log.WithField("component", "eventbus"),
	}
}

// On registers a persistent subscriber.
func (r *Router) On(event string, h Handler) Subscription {
	return r.add(event, h, false)
}

// Once registers a subscriber that is removed before its first invocation.
func (r *Router) Once(event string, h Handler) Subscription {
	return r.add(event, h, true)
}

func (r *Router) add(event string, h Handler, once bool) Subscription {
	if h == nil {
		panic("eventbus: nil handler for " + event)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	e := &entry{id: r.nextID, handler: h, once: once}
	r.subs[event] = append(r.subs[event], e)

	return Subscription{event: event, id: e.id}
}

// Off removes a registration. Unknown or already removed subscriptions are
// ignored.
func (r *Router) Off(sub Subscription) {
	if !sub.Valid() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(sub.event, sub.id)
}

func (r *Router) removeLocked(event string, id uint64) {
	lst := r.subs[event]
	for i, e := range lst {
		if e.id != id {
			continue
		}
		out := make([]*entry, 0, len(lst)-1)
		out = append(out, lst[:i]...)
		out = append(out, lst[i+1:]...)
		if len(out) == 0 {
			delete(r.subs, event)
		} else {
			r.subs[event] = out
		}
		return
	}
}

// Emit invokes every callback registered for event and returns how many ran.
func (r *Router) Emit(event string, payload any) int {
	r.mu.RLock()
	snapshot := append([]*entry(nil), r.subs[event]...)
	r.mu.RUnlock()

	invoked := 0
	for _, e := range snapshot {
		if e.once {
			// Claim the entry before running it so a reentrant Emit skips it.
			if !e.fired.CompareAndSwap(false, true) {
				continue
			}
			r.mu.Lock()
			r.removeLocked(event, e.id)
			r.mu.Unlock()
		}

		r.invoke(event, e, payload)
		invoked++
	}

	return invoked
}

func (r *Router) invoke(event string, e *entry, payload any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logger.Fields{
				"event":        event,
				"subscription": e.id,
			}).Errorf("subscriber panicked: %v\n%s", rec, debug.Stack())
		}
	}()
	e.handler(payload)
}

// Count returns the number of subscribers for event.
func (r *Router) Count(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[event])
}

// Clear removes every subscription for every event.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string][]*entry)
}

// String is used in debug logs.
func (r *Router) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, lst := range r.subs {
		n += len(lst)
	}
	return fmt.Sprintf("eventbus(%d events, %d subscriptions)", len(r.subs), n)
}
