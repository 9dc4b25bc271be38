package cartstore

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/cartsync/internal/kv"
)

// Registry hands out the single owning Store per user and serialises access
// to it, so HTTP handlers, checkout and reconciliation never hold diverging
// copies of one cart.
type Registry struct {
	kv       kv.Store
	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu    sync.Mutex
	store *Store
}

func NewRegistry(store kv.Store) *Registry {
	return &Registry{kv: store, sessions: make(map[string]*session)}
}

// With runs fn with exclusive access to the user's cart, loading it from
// local storage on first use. A failed load is retried on the next call.
func (r *Registry) With(ctx context.Context, userID string, fn func(*Store) error) error {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	if !ok {
		s = &session{}
		r.sessions[userID] = s
	}
	r.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		store, err := Open(ctx, r.kv, userID)
		if err != nil {
			return err
		}
		s.store = store
	}
	return fn(s.store)
}

// Evict forgets the in-memory cart so the next access reloads it.
func (r *Registry) Evict(userID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	r.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	s.store = nil
	s.mu.Unlock()
}
