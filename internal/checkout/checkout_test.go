package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/cartstore"
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

type fixture struct {
	kv      *FailingKV
	carts   *cartstore.Registry
	buffer  *staging.Buffer
	remote  *remote.MemoryStore
	mirror  *mirror.Mirror
	orders  *MockOrders
	notes   *MockNotifications
	mirrorM *MockMirror
	journal *MockJournal
	coord   *Coordinator
}

func newFixture(t *testing.T, opts Options, stock StockChecker) *fixture {
	t.Helper()
	store := &FailingKV{Store: kv.NewMemoryStore()}
	docs := remote.NewMemoryStore()
	m := mirror.New(docs, zap.NewNop())

	f := &fixture{
		kv:      store,
		carts:   cartstore.NewRegistry(store),
		buffer:  staging.NewBuffer(store),
		remote:  docs,
		mirror:  m,
		orders:  &MockOrders{Orders: remote.NewOrders(docs)},
		notes:   &MockNotifications{Notifications: remote.NewNotifications(docs)},
		mirrorM: &MockMirror{Mirror: m},
		journal: NewMockJournal(),
	}
	f.coord = NewCoordinator(Deps{
		Carts:         f.carts,
		Staging:       f.buffer,
		Orders:        f.orders,
		Notifications: f.notes,
		Mirror:        f.mirrorM,
		Journal:       f.journal,
		Stock:         stock,
		Logger:        zap.NewNop(),
	}, opts)
	return f
}

// addToCart puts lines into the local cart and the remote mirror.
func (f *fixture) addToCart(t *testing.T, lines ...domain.CartLine) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.carts.With(ctx, userID, func(s *cartstore.Store) error {
		for _, l := range lines {
			stored, _, err := s.Upsert(ctx, l)
			if err != nil {
				return err
			}
			if err := f.mirror.Push(ctx, userID, stored); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (f *fixture) cartLines(t *testing.T) []domain.CartLine {
	t.Helper()
	var lines []domain.CartLine
	require.NoError(t, f.carts.With(context.Background(), userID, func(s *cartstore.Store) error {
		lines = s.List()
		return nil
	}))
	return lines
}

func shirt(qty, stock int) domain.CartLine {
	return domain.CartLine{ProductID: "shirt", Color: "blue", Size: "M", Name: "Shirt", UnitPrice: 150000, Quantity: qty, StockLimit: stock}
}

func soldOutHat() domain.CartLine {
	return domain.CartLine{ProductID: "hat", Name: "Hat", UnitPrice: 50000, Quantity: 1, StockLimit: 0}
}

func validRequest() CommitRequest {
	return CommitRequest{
		Address: &domain.Address{
			FullName: "Jane Doe", Phone: "0900000000", Street: "12 Le Loi", District: "1", City: "Ho Chi Minh",
		},
		PaymentMethod: "cod",
	}
}

var session = Session{UserID: userID}

func TestCommit_HappyPath(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(2, 5), soldOutHat())

	staged, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)
	require.Len(t, staged.Lines, 1)
	assert.Equal(t, int64(300000), staged.Subtotal)
	assert.Equal(t, int64(30000), staged.ShippingFee)

	res, err := f.coord.Commit(ctx, session, validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateDone, res.State)
	require.NotNil(t, res.Order)
	assert.Equal(t, int64(330000), res.Order.TotalPrice)
	assert.Equal(t, domain.PaymentCash, res.Order.PaymentMethod)
	assert.Equal(t, domain.OrderStatusPending, res.Order.Status)
	assert.Equal(t, staged.ID, res.Order.IdempotencyKey)
	assert.Nil(t, res.Degradation)

	// only the sold-out line is left locally
	lines := f.cartLines(t)
	require.Len(t, lines, 1)
	assert.Equal(t, "hat", lines[0].ProductID)

	mirrored, err := f.mirror.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
	assert.Equal(t, "hat", mirrored[0].Line.ProductID)

	left, err := f.buffer.Load(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, left)
	assert.Equal(t, 0, f.journal.len())

	note, err := f.notes.FindByOrder(ctx, userID, res.Order.ID)
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, "Order placed", note.Title)
	assert.Equal(t, domain.NotificationTypeOrder, note.Type)

	assert.Equal(t, domain.CheckoutStateDone, f.coord.LastResult(userID).State)
}

func TestCommit_OrderCreationFailureKeepsCartAndStaging(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(2, 5))
	staged, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	f.orders.CreateErr = errRemoteDown
	res, err := f.coord.Commit(ctx, session, validRequest())

	var creationErr *OrderCreationError
	require.ErrorAs(t, err, &creationErr)
	assert.ErrorIs(t, err, errRemoteDown)
	assert.False(t, creationErr.Timeout())
	assert.Equal(t, domain.CheckoutStateFailed, res.State)
	assert.Equal(t, domain.StepCreateOrder, res.FailedStep)
	assert.Nil(t, res.Order)

	assert.Len(t, f.cartLines(t), 1)
	retained, err := f.buffer.Load(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, retained)
	assert.Equal(t, staged.ID, retained.ID)
	assert.Equal(t, 0, f.remote.Count(remote.CollectionOrders))
	assert.Equal(t, 0, f.remote.Count(remote.CollectionNotifications))
	assert.Equal(t, 0, f.journal.len())
}

func TestCommit_RetryAfterLandedWriteDoesNotDuplicate(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(1, 5))
	_, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	f.orders.LandThenFail = true
	_, err = f.coord.Commit(ctx, session, validRequest())
	var creationErr *OrderCreationError
	require.ErrorAs(t, err, &creationErr)
	assert.True(t, creationErr.Timeout())
	assert.Equal(t, 1, f.remote.Count(remote.CollectionOrders))

	res, err := f.coord.Commit(ctx, session, validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateDone, res.State)
	assert.Equal(t, 1, f.remote.Count(remote.CollectionOrders))
	assert.Equal(t, 1, f.orders.creates())
	assert.Equal(t, 1, f.remote.Count(remote.CollectionNotifications))
	assert.Empty(t, f.cartLines(t))
}

func TestCommit_NotificationFailureStillDone(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(1, 5))
	_, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	f.notes.FailNext = 5
	res, err := f.coord.Commit(ctx, session, validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateDone, res.State)
	assert.Equal(t, 2, f.notes.Creates)
	assert.Equal(t, 0, f.remote.Count(remote.CollectionNotifications))
	assert.Empty(t, f.cartLines(t))
	assert.Equal(t, 0, f.journal.len())
}

func TestCommit_NotificationRetriedOnce(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(1, 5))
	_, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	f.notes.FailNext = 1
	res, err := f.coord.Commit(ctx, session, validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateDone, res.State)
	assert.Equal(t, 2, f.notes.Creates)
	assert.Equal(t, 1, f.remote.Count(remote.CollectionNotifications))
}

func TestCommit_ConcurrentCommitIsRejected(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(1, 5))
	_, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	f.orders.Block = make(chan struct{})
	f.orders.Started = make(chan struct{}, 1)

	var (
		wg       sync.WaitGroup
		firstRes *Result
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstRes, firstErr = f.coord.Commit(ctx, session, validRequest())
	}()
	<-f.orders.Started

	_, err = f.coord.Commit(ctx, session, validRequest())
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.ErrorIs(t, f.coord.Cancel(ctx, session), ErrCheckoutInProgress)

	close(f.orders.Block)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, domain.CheckoutStateDone, firstRes.State)
	assert.Equal(t, 1, f.remote.Count(remote.CollectionOrders))
}

func TestCommit_OtherUsersAreNotBlocked(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(1, 5))
	_, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	release, ok := f.coord.guard.tryAcquire(userID)
	require.True(t, ok)
	defer release()

	_, err = f.coord.Commit(ctx, Session{UserID: "someone-else"}, validRequest())
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestCommit_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		req    CommitRequest
		fields []string
	}{
		{"no address", CommitRequest{PaymentMethod: "cash"}, []string{"address"}},
		{"incomplete address", CommitRequest{Address: &domain.Address{FullName: "Jane", City: "Hue"}, PaymentMethod: "cash"}, []string{"phone", "street"}},
		{"unknown payment", CommitRequest{Address: validRequest().Address, PaymentMethod: "crypto"}, []string{"payment_method"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{}, nil)
			ctx := context.Background()
			f.addToCart(t, shirt(1, 5))
			_, err := f.coord.Begin(ctx, session, BeginOptions{})
			require.NoError(t, err)

			res, err := f.coord.Commit(ctx, session, tt.req)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.fields, validationErr.Fields)
			assert.Equal(t, domain.CheckoutStateFailed, res.State)
			assert.Equal(t, domain.StepValidate, res.FailedStep)
			assert.Equal(t, 0, f.orders.creates())

			staged, err := f.buffer.Load(ctx, userID)
			require.NoError(t, err)
			assert.NotNil(t, staged)
		})
	}
}

func TestCommit_NothingStaged(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	_, err := f.coord.Commit(context.Background(), session, validRequest())
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []string{"lines"}, validationErr.Fields)
}

func TestBegin_OnlyUnavailableLines(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.addToCart(t, soldOutHat())

	_, err := f.coord.Begin(context.Background(), session, BeginOptions{})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.ErrorIs(t, err, staging.ErrNothingToStage)
}

func TestCommit_StockChanged(t *testing.T) {
	stock := StockFunc(func(_ context.Context, keys []domain.LineKey) (map[domain.LineKey]int, error) {
		return map[domain.LineKey]int{shirt(0, 0).Key(): 1}, nil
	})
	f := newFixture(t, Options{}, stock)
	ctx := context.Background()
	f.addToCart(t, shirt(2, 5))
	_, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	res, err := f.coord.Commit(ctx, session, validRequest())
	var stockErr *StockChangedError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Changes, 1)
	assert.Equal(t, 2, stockErr.Changes[0].Requested)
	assert.Equal(t, 1, stockErr.Changes[0].Available)
	assert.Equal(t, domain.StepValidate, res.FailedStep)
	assert.Equal(t, 0, f.orders.creates())

	lines := f.cartLines(t)
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].StockLimit)
	assert.Equal(t, 1, lines[0].Quantity)
}

func TestCommit_StockCheckerDownDoesNotBlock(t *testing.T) {
	stock := StockFunc(func(context.Context, []domain.LineKey) (map[domain.LineKey]int, error) {
		return nil, errRemoteDown
	})
	f := newFixture(t, Options{}, stock)
	ctx := context.Background()
	f.addToCart(t, shirt(2, 5))
	_, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	res, err := f.coord.Commit(ctx, session, validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateDone, res.State)
}

func TestCommit_MirrorFailureThenResumeCleanup(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(1, 5))
	_, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	f.mirrorM.setErr(errRemoteDown)
	res, err := f.coord.Commit(ctx, session, validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateReconcileIncomplete, res.State)
	require.NotNil(t, res.Order)
	require.NotNil(t, res.Degradation)
	assert.Equal(t, []domain.CheckoutStep{domain.StepMirror}, res.Degradation.Steps)
	assert.ErrorIs(t, res.Degradation, errRemoteDown)

	assert.Empty(t, f.cartLines(t))
	entry, ok := f.journal.get(res.Order.ID)
	require.True(t, ok)
	assert.True(t, entry.LocalDone)
	assert.False(t, entry.MirrorDone)
	assert.True(t, entry.NotificationDone)

	f.mirrorM.setErr(nil)
	entry, err = f.coord.ResumeCleanup(ctx, entry)
	require.NoError(t, err)
	assert.True(t, entry.Complete())
	assert.Equal(t, 0, f.journal.len())

	mirrored, err := f.mirror.List(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, mirrored)
	assert.Equal(t, 1, f.remote.Count(remote.CollectionOrders))
	assert.Equal(t, 1, f.remote.Count(remote.CollectionNotifications))
	assert.Equal(t, domain.CheckoutStateDone, f.coord.LastResult(userID).State)
}

func TestCommit_LocalCleanupFailure(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(1, 5))
	_, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	f.kv.arm(cartstore.StorageKey(userID))
	res, err := f.coord.Commit(ctx, session, validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateReconcileIncomplete, res.State)
	assert.Equal(t, []domain.CheckoutStep{domain.StepLocal}, res.Degradation.Steps)

	// the staged snapshot outlives the failed cart write
	staged, err := f.buffer.Load(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, staged)
	assert.Equal(t, res.Order.IdempotencyKey, staged.ID)
	assert.Len(t, f.cartLines(t), 1)

	f.kv.arm("")
	entry, ok := f.journal.get(res.Order.ID)
	require.True(t, ok)
	_, err = f.coord.ResumeCleanup(ctx, entry)
	require.NoError(t, err)
	assert.Empty(t, f.cartLines(t))
	staged, err = f.buffer.Load(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, staged)
}

func TestBegin_AfterLocalCleanupFailureDoesNotRebuy(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(1, 5))
	_, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	f.kv.arm(cartstore.StorageKey(userID))
	res, err := f.coord.Commit(ctx, session, validRequest())
	require.NoError(t, err)
	require.Equal(t, domain.CheckoutStateReconcileIncomplete, res.State)
	require.Len(t, f.cartLines(t), 1)

	// the bought shirt is still in the local cart but must not be staged again
	_, err = f.coord.Begin(ctx, session, BeginOptions{})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.ErrorIs(t, err, staging.ErrNothingToStage)

	res, err = f.coord.Commit(ctx, session, validRequest())
	require.NoError(t, err)
	assert.True(t, res.State.OrderExists())
	assert.Equal(t, 1, f.remote.Count(remote.CollectionOrders))
	assert.Equal(t, 1, f.orders.creates())
}

func TestBegin_SkipsLinesHeldByPendingCleanup(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	mug := domain.CartLine{ProductID: "mug", Name: "Mug", UnitPrice: 80000, Quantity: 1, StockLimit: 3}
	f.addToCart(t, shirt(1, 5), mug)

	require.NoError(t, f.journal.Add(ctx, domain.PendingCleanup{
		OrderID: "o-held", UserID: userID, Source: domain.SourceCart,
		Lines: []domain.LineKey{shirt(1, 5).Key()}, MirrorDone: true,
	}))
	require.NoError(t, f.journal.Add(ctx, domain.PendingCleanup{
		OrderID: "o-buy-now", UserID: userID, Source: domain.SourceBuyNow,
		Lines: []domain.LineKey{mug.Key()},
	}))

	staged, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)
	require.Len(t, staged.Lines, 1)
	assert.Equal(t, "mug", staged.Lines[0].ProductID)
}

func TestBegin_JournalUnreadableFails(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	f.addToCart(t, shirt(1, 5))
	cancel()

	_, err := f.coord.Begin(ctx, session, BeginOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBegin_AdoptsOrderOfReplacedStaging(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(1, 5))
	first, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	f.orders.LandThenFail = true
	_, err = f.coord.Commit(ctx, session, validRequest())
	var creationErr *OrderCreationError
	require.ErrorAs(t, err, &creationErr)
	require.Equal(t, 1, f.remote.Count(remote.CollectionOrders))

	// the user starts over instead of retrying, with one more line
	mug := domain.CartLine{ProductID: "mug", Name: "Mug", UnitPrice: 80000, Quantity: 1, StockLimit: 3}
	f.addToCart(t, mug)
	staged, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, staged.ID)
	require.Len(t, staged.Lines, 1)
	assert.Equal(t, "mug", staged.Lines[0].ProductID)

	lines := f.cartLines(t)
	require.Len(t, lines, 1)
	assert.Equal(t, "mug", lines[0].ProductID)
	mirrored, err := f.mirror.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
	assert.Equal(t, "mug", mirrored[0].Line.ProductID)
	assert.Equal(t, 1, f.remote.Count(remote.CollectionNotifications))
	assert.Equal(t, 0, f.journal.len())

	res, err := f.coord.Commit(ctx, session, validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateDone, res.State)
	assert.Equal(t, 2, f.remote.Count(remote.CollectionOrders))
	assert.Equal(t, 2, f.orders.creates())
	assert.Empty(t, f.cartLines(t))
}

func TestCommit_CallerCancelAfterOrderStillCleansUp(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.addToCart(t, shirt(1, 5))
	_, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	// the client goes away right after the order is written
	f.orders.AfterCreate = cancel
	res, err := f.coord.Commit(ctx, session, validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateDone, res.State)
	assert.Nil(t, res.Degradation)
	require.Error(t, ctx.Err())

	bg := context.Background()
	assert.Empty(t, f.cartLines(t))
	mirrored, err := f.mirror.List(bg, userID)
	require.NoError(t, err)
	assert.Empty(t, mirrored)
	staged, err := f.buffer.Load(bg, userID)
	require.NoError(t, err)
	assert.Nil(t, staged)
	assert.Equal(t, 0, f.journal.len())
	assert.Equal(t, 1, f.remote.Count(remote.CollectionOrders))
	assert.Equal(t, 1, f.remote.Count(remote.CollectionNotifications))
}

func TestCommit_OrderCreationTimeout(t *testing.T) {
	f := newFixture(t, Options{CallTimeout: 20 * time.Millisecond}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(1, 5))
	_, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	f.orders.Block = make(chan struct{})
	_, err = f.coord.Commit(ctx, session, validRequest())
	var creationErr *OrderCreationError
	require.ErrorAs(t, err, &creationErr)
	assert.True(t, creationErr.Timeout())
	assert.Len(t, f.cartLines(t), 1)
}

func TestCommit_ResumeAfterRestart(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(1, 5))
	staged, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	// a fresh coordinator over the same storage stands in for a restart
	f.buffer.Forget(userID)
	f.carts.Evict(userID)
	restarted := NewCoordinator(Deps{
		Carts: f.carts, Staging: f.buffer, Orders: f.orders, Notifications: f.notes,
		Mirror: f.mirrorM, Journal: f.journal,
	}, Options{})

	assert.Nil(t, restarted.LastResult(userID))
	resumed, err := restarted.Resume(ctx, session)
	require.NoError(t, err)
	require.NotNil(t, resumed)
	assert.Equal(t, staged.ID, resumed.ID)
	assert.Equal(t, domain.CheckoutStateStaged, restarted.LastResult(userID).State)

	res, err := restarted.Commit(ctx, session, validRequest())
	require.NoError(t, err)
	assert.Equal(t, staged.ID, res.Order.IdempotencyKey)
}

func TestBegin_BuyNowLeavesCartAlone(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(1, 5))

	buy := domain.CartLine{ProductID: "shoes", Name: "Shoes", UnitPrice: 600000, Quantity: 9, StockLimit: 3}
	staged, err := f.coord.Begin(ctx, session, BeginOptions{BuyNow: []domain.CartLine{buy}, VoucherCode: "WELCOME"})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceBuyNow, staged.Source)
	require.Len(t, staged.Lines, 1)
	assert.Equal(t, 3, staged.Lines[0].Quantity)
	assert.Equal(t, int64(0), staged.ShippingFee)
	assert.Equal(t, int64(100000), staged.Discount)

	res, err := f.coord.Commit(ctx, session, validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateDone, res.State)
	assert.Equal(t, int64(1700000), res.Order.TotalPrice)

	lines := f.cartLines(t)
	require.Len(t, lines, 1)
	assert.Equal(t, "shirt", lines[0].ProductID)
	mirrored, err := f.mirror.List(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, mirrored, 1)
}

func TestCancel_DiscardsStaging(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(1, 5))
	_, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	require.NoError(t, f.coord.Cancel(ctx, session))
	require.NoError(t, f.coord.Cancel(ctx, session))
	staged, err := f.coord.Resume(ctx, session)
	require.NoError(t, err)
	assert.Nil(t, staged)
	assert.Len(t, f.cartLines(t), 1)
	assert.Equal(t, domain.CheckoutStateIdle, f.coord.LastResult(userID).State)
}

func TestCleanup_SkipsNewerStaging(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	f.addToCart(t, shirt(1, 5))
	first, err := f.coord.Begin(ctx, session, BeginOptions{})
	require.NoError(t, err)

	entry := domain.PendingCleanup{OrderID: "o-old", StagingID: "some-older-staging", UserID: userID, Source: domain.SourceCart}
	_, err = f.coord.ResumeCleanup(ctx, entry)
	require.NoError(t, err)

	staged, err := f.buffer.Load(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, staged)
	assert.Equal(t, first.ID, staged.ID)
}

func TestDegradationErrorMessage(t *testing.T) {
	err := &PostCommitDegradation{OrderID: "o1", Steps: []domain.CheckoutStep{domain.StepMirror, domain.StepLocal}, Err: errors.New("boom")}
	assert.Equal(t, "order o1 committed, cleanup incomplete (mirror_cleanup, local_cleanup): boom", err.Error())
}
