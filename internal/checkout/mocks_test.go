package checkout

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/kv"
	"github.com/fjod/go_cart/cartsync/internal/mirror"
	"github.com/fjod/go_cart/cartsync/internal/remote"
)

var errRemoteDown = errors.New("remote unavailable")

// MockOrders wraps the real repository and injects failures.
type MockOrders struct {
	*remote.Orders
	mu sync.Mutex
	// CreateErr fails Create without writing.
	CreateErr error
	// LandThenFail writes the order and still reports an error, once.
	LandThenFail bool
	// Block, when set, holds Create until it is closed or ctx expires.
	Block   chan struct{}
	Started chan struct{}
	// AfterCreate runs once an order has been written.
	AfterCreate func()
	Creates     int
}

func (m *MockOrders) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	m.mu.Lock()
	m.Creates++
	createErr, landThenFail, block, started, after := m.CreateErr, m.LandThenFail, m.Block, m.Started, m.AfterCreate
	m.LandThenFail = false
	m.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if createErr != nil {
		return nil, createErr
	}
	created, err := m.Orders.Create(ctx, order)
	if err != nil {
		return nil, err
	}
	if after != nil {
		after()
	}
	if landThenFail {
		return nil, context.DeadlineExceeded
	}
	return created, nil
}

func (m *MockOrders) creates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Creates
}

type MockNotifications struct {
	*remote.Notifications
	mu       sync.Mutex
	FailNext int
	Creates  int
}

func (m *MockNotifications) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	m.mu.Lock()
	m.Creates++
	fail := m.FailNext > 0
	if fail {
		m.FailNext--
	}
	m.mu.Unlock()
	if fail {
		return nil, errRemoteDown
	}
	return m.Notifications.Create(ctx, n)
}

type MockMirror struct {
	*mirror.Mirror
	mu  sync.Mutex
	Err error
}

func (m *MockMirror) DeleteLines(ctx context.Context, userID string, keys []domain.LineKey) error {
	m.mu.Lock()
	err := m.Err
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.Mirror.DeleteLines(ctx, userID, keys)
}

func (m *MockMirror) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// MockJournal keeps pending cleanups in memory.
type MockJournal struct {
	mu      sync.Mutex
	Entries map[string]domain.PendingCleanup
	AddErr  error
}

func NewMockJournal() *MockJournal {
	return &MockJournal{Entries: make(map[string]domain.PendingCleanup)}
}

func (m *MockJournal) Add(ctx context.Context, entry domain.PendingCleanup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddErr != nil {
		return m.AddErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Entries[entry.OrderID] = entry
	return nil
}

func (m *MockJournal) Update(ctx context.Context, entry domain.PendingCleanup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Entries[entry.OrderID] = entry
	return nil
}

func (m *MockJournal) Remove(ctx context.Context, _, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(m.Entries, orderID)
	return nil
}

func (m *MockJournal) List(ctx context.Context, userID string) ([]domain.PendingCleanup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.PendingCleanup
	for _, e := range m.Entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockJournal) get(orderID string) (domain.PendingCleanup, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Entries[orderID]
	return e, ok
}

func (m *MockJournal) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries)
}

// FailingKV fails writes of one key once armed. Unlike the memory store it
// refuses writes on a cancelled context, as a networked store would.
type FailingKV struct {
	kv.Store
	mu      sync.Mutex
	FailKey string
}

func (f *FailingKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.FailKey != "" && f.FailKey == key
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.Store.Set(ctx, key, value)
}

func (f *FailingKV) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.Store.Delete(ctx, key)
}

func (f *FailingKV) arm(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailKey = key
}
