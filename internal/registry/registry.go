// Package registry maps a closed set of kinds to a single callback each.
//
// It backs the client's event and error registries. Registrations keep
// insertion order and at most one registration exists per kind.
package registry

import (
	"errors"
	"sync"
)

// ErrNotRegistered is returned by Unregister when the kind has no registration.
var ErrNotRegistered = errors.New("kind is not registered")

// Registration binds an action to a kind.
type Registration[K comparable, D any] struct {
	Kind   K
	Action func(D)

	// Args is handed to the action through the data built by Trigger.
	Args any
	// DeleteArgs, when set, releases Args once the registration is gone.
	DeleteArgs func(args any)

	// RunOnGoroutine runs the action on its own goroutine.
	RunOnGoroutine bool
	// DropAfterTrigger removes the registration after its first trigger.
	DropAfterTrigger bool
}

func (r *Registration[K, D]) release() {
	if r.DeleteArgs != nil {
		r.DeleteArgs(r.Args)
	}
}

// Registry is safe for concurrent use.
type Registry[K comparable, D any] struct {
	mu      sync.Mutex
	entries []*Registration[K, D]
	running sync.WaitGroup
}

// New returns an empty registry.
func New[K comparable, D any]() *Registry[K, D] {
	return &Registry[K, D]{}
}

func (r *Registry[K, D]) index(kind K) int {
	for i, e := range r.entries {
		if e.Kind == kind {
			return i
		}
	}
	return -1
}

func (r *Registry[K, D]) remove(i int) *Registration[K, D] {
	e := r.entries[i]
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return e
}

// Register adds reg, replacing and releasing any previous registration of
// the same kind.
func (r *Registry[K, D]) Register(reg Registration[K, D]) {
	r.mu.Lock()
	var old *Registration[K, D]
	if i := r.index(reg.Kind); i >= 0 {
		old = r.remove(i)
	}
	r.entries = append(r.entries, &reg)
	r.mu.Unlock()

	if old != nil {
		old.release()
	}
}

// Unregister removes the registration of kind and releases its args.
func (r *Registry[K, D]) Unregister(kind K) error {
	r.mu.Lock()
	i := r.index(kind)
	if i < 0 {
		r.mu.Unlock()
		return ErrNotRegistered
	}
	e := r.remove(i)
	r.mu.Unlock()

	e.release()
	return nil
}

// Registered reports whether kind has a registration.
func (r *Registry[K, D]) Registered(kind K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index(kind) >= 0
}

// Len returns the number of registrations.
func (r *Registry[K, D]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Trigger runs the action registered for kind. build turns the stored args
// into the data passed to the action and is only called when an action
// exists.
//
// It returns false when no registration with an action exists for kind.
// Actions run outside the registry lock, so they may register or
// unregister freely.
func (r *Registry[K, D]) Trigger(kind K, build func(args any) D) bool {
	r.mu.Lock()
	i := r.index(kind)
	if i < 0 || r.entries[i].Action == nil {
		r.mu.Unlock()
		return false
	}
	e := r.entries[i]
	if e.DropAfterTrigger {
		r.remove(i)
	}
	r.mu.Unlock()

	data := build(e.Args)
	run := func() {
		e.Action(data)
		if e.DropAfterTrigger {
			e.release()
		}
	}

	if e.RunOnGoroutine {
		r.running.Add(1)
		go func() {
			defer r.running.Done()
			run()
		}()
	} else {
		run()
	}

	return true
}

// Wait blocks until every action started on its own goroutine has returned.
func (r *Registry[K, D]) Wait() {
	r.running.Wait()
}

// Clear removes every registration and releases their args.
func (r *Registry[K, D]) Clear() {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	for _, e := range entries {
		e.release()
	}
}
