package poll

import (
	"context"
	"sync"
)

// Registry is the process-wide bookkeeping of active poll tasks keyed by
// identity token. It exists to let callers cancel an in-flight poll, and to
// reject a second poll started under a token that is already running. It is
// owned by an Engine, never a hidden global.
type Registry struct {
	mu     sync.Mutex
	active map[string]context.CancelCauseFunc
}

func NewRegistry() *Registry {
	return &Registry{active: make(map[string]context.CancelCauseFunc)}
}

// add registers a cancel handle under token. It returns false if a task with
// the same token is already active.
func (r *Registry) add(token string, cancel context.CancelCauseFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[token]; ok {
		return false
	}
	r.active[token] = cancel
	return true
}

// remove drops the handle registered under token, if any.
func (r *Registry) remove(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, token)
}

// Cancel rejects the in-flight task registered under token with a
// *CancelledError. It reports whether a task was found.
func (r *Registry) Cancel(token string) bool {
	r.mu.Lock()
	cancel, ok := r.active[token]
	r.mu.Unlock()
	if !ok {
		return false
	}
	cancel(&CancelledError{Token: token})
	return true
}

// Len returns the number of active tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
