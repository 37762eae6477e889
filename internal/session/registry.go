// Package session serializes work per chat. Two updates to the same
// conversation never interleave; distinct chats proceed in parallel.
package session

import (
	"context"
	"sync"
)

// Registry hands out one lock per chat ID. Locks are created lazily and
// kept for the process lifetime; the per-chat footprint is a single mutex.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*sync.Mutex)}
}

func (r *Registry) lockFor(chatID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[chatID] = l
	}
	return l
}

// Do runs fn while holding the chat's lock. The context is checked before
// acquiring so queued callers bail out once their caller has given up.
func (r *Registry) Do(ctx context.Context, chatID string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := r.lockFor(chatID)
	l.Lock()
	defer l.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}
