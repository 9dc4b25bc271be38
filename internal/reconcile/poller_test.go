package reconcile

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/kv"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"
)

type countingCleaner struct {
	calls atomic.Int32
	j     *Journal
}

func (c *countingCleaner) ResumeCleanup(ctx context.Context, entry domain.PendingCleanup) (domain.PendingCleanup, error) {
	c.calls.Add(1)
	entry.MirrorDone, entry.LocalDone = true, true
	return entry, c.j.Remove(ctx, entry.UserID, entry.OrderID)
}

func TestPoller_DrainsJournal(t *testing.T) {
	journal := NewJournal(kv.NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.NilError(t, journal.Add(ctx, domain.PendingCleanup{OrderID: "o1", UserID: "u1"}))
	assert.NilError(t, journal.Add(ctx, domain.PendingCleanup{OrderID: "o2", UserID: "u2"}))

	cleaner := &countingCleaner{j: journal}
	poller := NewPoller(NewReconciler(journal, cleaner, zap.NewNop()), 10*time.Millisecond, zap.NewNop())

	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	poll.WaitOn(t, func(poll.LogT) poll.Result {
		users, err := journal.Users(ctx)
		if err != nil {
			return poll.Error(err)
		}
		if len(users) > 0 {
			return poll.Continue("%d users still pending", len(users))
		}
		return poll.Success()
	}, poll.WithTimeout(2*time.Second), poll.WithDelay(5*time.Millisecond))

	cancel()
	<-done
	assert.Equal(t, int32(2), cleaner.calls.Load())
}
