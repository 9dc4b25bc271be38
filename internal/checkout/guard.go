package checkout

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// userGuard admits one checkout operation per user at a time. A second
// caller is turned away instead of waiting.
type userGuard struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func newUserGuard() *userGuard {
	return &userGuard{sems: make(map[string]*semaphore.Weighted)}
}

func (g *userGuard) tryAcquire(userID string) (func(), bool) {
	g.mu.Lock()
	sem, ok := g.sems[userID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		g.sems[userID] = sem
	}
	g.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, false
	}
	return func() { sem.Release(1) }, true
}
