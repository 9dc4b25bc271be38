package remote

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerSettings struct {
	Name string
	// MaxFailures consecutive backend failures open the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// BreakerStore fails fast while the backend keeps erroring, so a dead remote
// store costs the checkout one timeout instead of one per step.
type BreakerStore struct {
	next DocumentStore
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreakerStore(next DocumentStore, settings BreakerSettings, logger *zap.Logger) *BreakerStore {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.OpenTimeout == 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	maxFailures := settings.MaxFailures

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// a missing document or a caller-side cancel says nothing about backend health
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("remote store breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &BreakerStore{next: next, cb: cb}
}

func (b *BreakerStore) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.next.Insert(ctx, collection, doc)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (b *BreakerStore) Query(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.next.Query(ctx, collection, filter)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Document), nil
}

func (b *BreakerStore) Delete(ctx context.Context, collection, id string) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Delete(ctx, collection, id)
	})
	return err
}

func (b *BreakerStore) Update(ctx context.Context, collection, id string, fields Document) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Update(ctx, collection, id, fields)
	})
	return err
}

func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}
