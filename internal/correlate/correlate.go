// Package correlate matches asynchronous delivery events to the in-flight
// requests that caused them.
//
// A video relayed through the user session comes back to the bot as an
// ordinary inbound message, tagged only with the correlation token in its
// caption. The Registry is the rendezvous point: the workflow registers a
// Waiter under the token before uploading, and the inbound handler resolves
// that token when the echoed message arrives.
package correlate

import (
	"context"
	"sync"
)

// Delivery is where a relayed video ended up: the platform file handle to
// forward to the requester, and the relay artifact to clean up afterwards.
type Delivery struct {
	FileID    string
	ChatID    int64
	MessageID int
}

// Waiter is a single request's result cell. It is pending until resolved
// exactly once with either a Delivery or an error.
type Waiter struct {
	key      string
	done     chan struct{}
	delivery Delivery
	err      error
}

// Key returns the correlation key this waiter was registered under.
func (w *Waiter) Key() string { return w.key }

// Await blocks until the waiter is resolved or ctx expires. The registry
// holds no timeout policy of its own; the caller bounds the wait through ctx
// and should Cancel the key on expiry so a late delivery is not misdelivered.
func (w *Waiter) Await(ctx context.Context) (Delivery, error) {
	select {
	case <-w.done:
		return w.delivery, w.err
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
}

// Registry tracks pending waiters by correlation key. All mutation is atomic
// per key: register is test-and-set, resolve and fail are lookup-and-remove.
type Registry struct {
	mu      sync.Mutex
	waiters map[string]*Waiter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{waiters: make(map[string]*Waiter)}
}

// Register returns the waiter for key, creating a pending one if none exists.
// A second Register for the same key before resolution returns the existing
// waiter, so both callers observe one shared outcome. The workflow avoids
// this entanglement by keying on generated per-request tokens rather than
// anything user-controlled.
func (r *Registry) Register(key string) *Waiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.waiters[key]; ok {
		return w
	}
	w := &Waiter{key: key, done: make(chan struct{})}
	r.waiters[key] = w
	return w
}

// Resolve fulfills the waiter registered under key and removes it.
// It reports whether a waiter was found; false means an event arrived with
// no matching requester, which callers should log and count.
func (r *Registry) Resolve(key string, d Delivery) bool {
	w := r.take(key)
	if w == nil {
		return false
	}
	w.delivery = d
	close(w.done)
	return true
}

// Fail drives the waiter registered under key to the failed state and
// removes it, with the same lookup discipline as Resolve.
func (r *Registry) Fail(key string, err error) bool {
	w := r.take(key)
	if w == nil {
		return false
	}
	w.err = err
	close(w.done)
	return true
}

// Cancel removes key from the registry without resolving, but only if the
// registry still holds that exact waiter. The awaiting side calls this after
// a timeout: the waiter is abandoned, and any delivery arriving later
// becomes an observable no-op instead of fulfilling a request nobody is
// waiting on.
func (r *Registry) Cancel(key string, w *Waiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.waiters[key]; ok && cur == w {
		delete(r.waiters, key)
	}
}

// Len returns the number of pending waiters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}

// take removes and returns the waiter for key, or nil. Removal and
// resolution race-free under one lock: once taken, no other caller can
// resolve the same waiter.
func (r *Registry) take(key string) *Waiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.waiters[key]
	if !ok {
		return nil
	}
	delete(r.waiters, key)
	return w
}
