package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/cartstore"
	"github.com/fjod/go_cart/cartsync/internal/checkout"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/kv"
	"github.com/fjod/go_cart/cartsync/internal/mirror"
	"github.com/fjod/go_cart/cartsync/internal/remote"
	"github.com/fjod/go_cart/cartsync/internal/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const userID = "user-1"

var session = checkout.Session{UserID: userID}

// flakyKV fails writes to one key while armed.
type flakyKV struct {
	kv.Store
	mu      sync.Mutex
	failKey string
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.failKey == key
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Store.Set(ctx, key, value)
}

func (f *flakyKV) arm(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failKey = key
}

// flakyDocs fails deletes in the cart collection while down is set.
type flakyDocs struct {
	*remote.MemoryStore
	mu   sync.Mutex
	down bool
}

func (f *flakyDocs) Delete(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	down := f.down
	f.mu.Unlock()
	if down && collection == remote.CollectionCart {
		return errors.New("remote unavailable")
	}
	return f.MemoryStore.Delete(ctx, collection, id)
}

func (f *flakyDocs) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

type env struct {
	kv         *flakyKV
	docs       *flakyDocs
	carts      *cartstore.Registry
	mirror     *mirror.Mirror
	journal    *Journal
	coord      *checkout.Coordinator
	reconciler *Reconciler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	local, err := kv.NewSQLiteStore(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	store := &flakyKV{Store: local}
	docs := &flakyDocs{MemoryStore: remote.NewMemoryStore()}
	e := &env{
		kv:      store,
		docs:    docs,
		carts:   cartstore.NewRegistry(store),
		mirror:  mirror.New(docs, zap.NewNop()),
		journal: NewJournal(store),
	}
	e.coord = checkout.NewCoordinator(checkout.Deps{
		Carts:         e.carts,
		Staging:       staging.NewBuffer(store),
		Orders:        remote.NewOrders(docs),
		Notifications: remote.NewNotifications(docs),
		Mirror:        e.mirror,
		Journal:       e.journal,
		Logger:        zap.NewNop(),
	}, checkout.Options{CallTimeout: time.Second})
	e.reconciler = NewReconciler(e.journal, e.coord, zap.NewNop())
	return e
}

func (e *env) fillCart(t *testing.T, lines ...domain.CartLine) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.carts.With(ctx, userID, func(s *cartstore.Store) error {
		for _, l := range lines {
			stored, _, err := s.Upsert(ctx, l)
			require.NoError(t, err)
			require.NoError(t, e.mirror.Push(ctx, userID, stored))
		}
		return nil
	}))
}

func (e *env) cart(t *testing.T) []domain.CartLine {
	t.Helper()
	var lines []domain.CartLine
	require.NoError(t, e.carts.With(context.Background(), userID, func(s *cartstore.Store) error {
		lines = s.List()
		return nil
	}))
	return lines
}

func (e *env) checkout(t *testing.T) *checkout.Result {
	t.Helper()
	ctx := context.Background()
	_, err := e.coord.Begin(ctx, session, checkout.BeginOptions{})
	require.NoError(t, err)
	res, err := e.coord.Commit(ctx, session, checkout.CommitRequest{
		Address:       &domain.Address{FullName: "Jane Doe", Phone: "0900", Street: "1 Main St", City: "Da Nang"},
		PaymentMethod: "bankTransfer",
	})
	require.NoError(t, err)
	return res
}

var (
	lamp = domain.CartLine{ProductID: "lamp", Name: "Lamp", UnitPrice: 250000, Quantity: 1, StockLimit: 4}
	rug  = domain.CartLine{ProductID: "rug", Size: "L", Name: "Rug", UnitPrice: 400000, Quantity: 1, StockLimit: 0}
)

func TestJournal_AddUpdateRemove(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	users, err := e.journal.Users(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	entry := domain.PendingCleanup{OrderID: "o1", UserID: "u1", Lines: []domain.LineKey{{ProductID: "p1"}}, CommittedAt: time.Now().UTC()}
	require.NoError(t, e.journal.Add(ctx, entry))
	require.NoError(t, e.journal.Add(ctx, domain.PendingCleanup{OrderID: "o2", UserID: "u1"}))
	require.NoError(t, e.journal.Add(ctx, domain.PendingCleanup{OrderID: "o3", UserID: "u2"}))

	entry.MirrorDone = true
	require.NoError(t, e.journal.Update(ctx, entry))

	list, err := e.journal.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].MirrorDone)
	assert.Equal(t, []domain.LineKey{{ProductID: "p1"}}, list[0].Lines)

	users, err = e.journal.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, users)

	require.NoError(t, e.journal.Remove(ctx, "u1", "o1"))
	require.NoError(t, e.journal.Remove(ctx, "u1", "o2"))
	require.NoError(t, e.journal.Remove(ctx, "u1", "o2"))

	users, err = e.journal.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, users)
}

func TestReconcile_MirrorCleanupConverges(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fillCart(t, lamp, rug)

	e.docs.setDown(true)
	res := e.checkout(t)
	require.Equal(t, domain.CheckoutStateReconcileIncomplete, res.State)

	// still down: the entry stays
	report, err := e.reconciler.Run(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, Report{Pending: 1}, report)

	e.docs.setDown(false)
	report, err = e.reconciler.RunAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Pending: 1, Completed: 1}, report)

	mirrored, err := e.mirror.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
	assert.Equal(t, "rug", mirrored[0].Line.ProductID)

	left, err := e.journal.List(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Equal(t, 1, e.docs.Count(remote.CollectionOrders))
	assert.Equal(t, 1, e.docs.Count(remote.CollectionNotifications))
}

func TestReconcile_LocalCleanupAndCartFilter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fillCart(t, lamp, rug)

	e.kv.arm(cartstore.StorageKey(userID))
	res := e.checkout(t)
	require.Equal(t, domain.CheckoutStateReconcileIncomplete, res.State)
	e.kv.arm("")

	// the purchased lamp is still stored locally but hidden from the cart
	raw := e.cart(t)
	require.Len(t, raw, 2)
	shown, err := e.reconciler.FilterCart(ctx, session, raw)
	require.NoError(t, err)
	require.Len(t, shown, 1)
	assert.Equal(t, "rug", shown[0].ProductID)

	_, err = e.reconciler.RunAll(ctx)
	require.NoError(t, err)

	raw = e.cart(t)
	require.Len(t, raw, 1)
	assert.Equal(t, "rug", raw[0].ProductID)
	shown, err = e.reconciler.FilterCart(ctx, session, raw)
	require.NoError(t, err)
	assert.Equal(t, raw, shown)
}

func TestReconcile_SurvivesRestart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fillCart(t, lamp)

	e.docs.setDown(true)
	res := e.checkout(t)
	require.Equal(t, domain.CheckoutStateReconcileIncomplete, res.State)
	e.docs.setDown(false)

	// a new coordinator over the same storage has no in-memory state
	restarted := checkout.NewCoordinator(checkout.Deps{
		Carts:         cartstore.NewRegistry(e.kv),
		Staging:       staging.NewBuffer(e.kv),
		Orders:        remote.NewOrders(e.docs),
		Notifications: remote.NewNotifications(e.docs),
		Mirror:        e.mirror,
		Journal:       e.journal,
	}, checkout.Options{})
	report, err := NewReconciler(e.journal, restarted, zap.NewNop()).RunAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 1, e.docs.Count(remote.CollectionNotifications))
}

type busyCleaner struct{}

func (busyCleaner) ResumeCleanup(_ context.Context, entry domain.PendingCleanup) (domain.PendingCleanup, error) {
	return entry, checkout.ErrCheckoutInProgress
}

func TestReconcile_SkipsBusyUsers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.journal.Add(ctx, domain.PendingCleanup{OrderID: "o1", UserID: userID}))

	report, err := NewReconciler(e.journal, busyCleaner{}, zap.NewNop()).Run(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, Report{Pending: 1, Skipped: 1}, report)
}
