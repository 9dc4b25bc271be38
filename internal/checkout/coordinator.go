// Package checkout runs the checkout saga: it stages cart lines, creates the
// remote order exactly once, and then cleans up the notification, the remote
// cart mirror and the local cart. Order creation is the commit point; nothing
// after it can turn a checkout into a failure.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/cartstore"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/quantity"
	"github.com/fjod/go_cart/cartsync/internal/staging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/fjod/go_cart/cartsync/internal/checkout"

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) (*domain.Order, error)
	// FindByIdempotencyKey returns nil, nil when no order carries the key.
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Order, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	FindByOrder(ctx context.Context, userID, orderID string) (*domain.Notification, error)
}

type MirrorCleaner interface {
	DeleteLines(ctx context.Context, userID string, keys []domain.LineKey) error
}

// Journal persists committed orders whose cleanup is still outstanding.
type Journal interface {
	Add(ctx context.Context, entry domain.PendingCleanup) error
	Update(ctx context.Context, entry domain.PendingCleanup) error
	Remove(ctx context.Context, userID, orderID string) error
	List(ctx context.Context, userID string) ([]domain.PendingCleanup, error)
}

// StockChecker reports current stock for the given identities. Identities it
// does not know are left out of the result.
type StockChecker interface {
	CurrentStock(ctx context.Context, keys []domain.LineKey) (map[domain.LineKey]int, error)
}

// StockFunc adapts a function to StockChecker.
type StockFunc func(ctx context.Context, keys []domain.LineKey) (map[domain.LineKey]int, error)

func (f StockFunc) CurrentStock(ctx context.Context, keys []domain.LineKey) (map[domain.LineKey]int, error) {
	return f(ctx, keys)
}

type Deps struct {
	Carts         *cartstore.Registry
	Staging       *staging.Buffer
	Orders        OrderRepository
	Notifications NotificationRepository
	Mirror        MirrorCleaner
	Journal       Journal
	// Stock is optional; without it staged quantities are not re-checked.
	Stock  StockChecker
	Logger *zap.Logger
}

type Options struct {
	// CallTimeout bounds every single remote call.
	CallTimeout time.Duration
	// NotificationAttempts caps notification writes per commit.
	NotificationAttempts int
}

// Session identifies whose checkout an operation acts on.
type Session struct {
	UserID string
}

type BeginOptions struct {
	// BuyNow stages these lines instead of the cart.
	BuyNow      []domain.CartLine
	VoucherCode string
}

type CommitRequest struct {
	Address       *domain.Address
	PaymentMethod string
}

// Result is the outcome of the latest checkout operation for a user.
type Result struct {
	State       domain.CheckoutState   `json:"state"`
	FailedStep  domain.CheckoutStep    `json:"failed_step,omitempty"`
	Order       *domain.Order          `json:"order,omitempty"`
	Staged      *domain.StagedCheckout `json:"staged,omitempty"`
	Degradation *PostCommitDegradation `json:"-"`
	Err         error                  `json:"-"`
}

type Coordinator struct {
	carts         *cartstore.Registry
	staging       *staging.Buffer
	orders        OrderRepository
	notifications NotificationRepository
	mirror        MirrorCleaner
	journal       Journal
	stock         StockChecker
	logger        *zap.Logger
	tracer        trace.Tracer

	callTimeout          time.Duration
	notificationAttempts int

	guard   *userGuard
	mu      sync.Mutex
	results map[string]*Result
	now     func() time.Time
}

func NewCoordinator(deps Deps, opts Options) *Coordinator {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	if opts.NotificationAttempts <= 0 {
		opts.NotificationAttempts = 2
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		carts:                deps.Carts,
		staging:              deps.Staging,
		orders:               deps.Orders,
		notifications:        deps.Notifications,
		mirror:               deps.Mirror,
		journal:              deps.Journal,
		stock:                deps.Stock,
		logger:               logger,
		tracer:               otel.Tracer(tracerName),
		callTimeout:          opts.CallTimeout,
		notificationAttempts: opts.NotificationAttempts,
		guard:                newUserGuard(),
		results:              make(map[string]*Result),
		now:                  time.Now,
	}
}

// Begin stages the purchasable lines of the cart, or the buy-now lines when
// given, replacing anything staged before. Cart lines already bought in an
// order whose cleanup is pending are never staged again.
func (c *Coordinator) Begin(ctx context.Context, session Session, opts BeginOptions) (*domain.StagedCheckout, error) {
	release, ok := c.guard.tryAcquire(session.UserID)
	if !ok {
		return nil, ErrCheckoutInProgress
	}
	defer release()

	if err := c.settlePrevious(ctx, session.UserID); err != nil {
		return nil, err
	}

	source := domain.SourceCart
	lines := opts.BuyNow
	if len(lines) > 0 {
		source = domain.SourceBuyNow
		lines = clampBuyNow(lines)
	} else {
		pending, err := c.journal.List(ctx, session.UserID)
		if err != nil {
			return nil, fmt.Errorf("read cleanup journal: %w", err)
		}
		err = c.carts.With(ctx, session.UserID, func(s *cartstore.Store) error {
			lines = domain.WithoutKeys(s.List(), domain.HeldKeys(pending))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	staged, err := c.staging.Stage(ctx, session.UserID, lines, staging.Options{Source: source, VoucherCode: opts.VoucherCode})
	if err != nil {
		if errors.Is(err, staging.ErrNothingToStage) {
			return nil, &ValidationError{Reason: "nothing to check out", Fields: []string{"lines"}, Err: err}
		}
		return nil, err
	}

	c.logger.Info("checkout staged",
		zap.String("user_id", session.UserID),
		zap.String("staging_id", staged.ID),
		zap.String("source", string(staged.Source)),
		zap.Int("lines", len(staged.Lines)),
		zap.Int64("total", staged.Total))
	c.record(session.UserID, &Result{State: domain.CheckoutStateStaged, Staged: staged})
	return staged, nil
}

// Resume reloads the staged lines after a restart. It returns nil, nil when
// nothing is staged.
func (c *Coordinator) Resume(ctx context.Context, session Session) (*domain.StagedCheckout, error) {
	staged, err := c.staging.Load(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if staged == nil {
		return nil, nil
	}
	if last := c.LastResult(session.UserID); last == nil || last.State == domain.CheckoutStateIdle {
		c.record(session.UserID, &Result{State: domain.CheckoutStateStaged, Staged: staged})
	}
	return staged, nil
}

// Cancel drops the staged lines. The cart itself is untouched.
func (c *Coordinator) Cancel(ctx context.Context, session Session) error {
	release, ok := c.guard.tryAcquire(session.UserID)
	if !ok {
		return ErrCheckoutInProgress
	}
	defer release()

	if err := c.staging.Discard(ctx, session.UserID); err != nil {
		return err
	}
	c.record(session.UserID, &Result{State: domain.CheckoutStateIdle})
	return nil
}

// LastResult returns the outcome of the user's latest checkout operation, or
// nil when there has been none since start-up.
func (c *Coordinator) LastResult(userID string) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[userID]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (c *Coordinator) record(userID string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[userID] = r
}

func clampBuyNow(lines []domain.CartLine) []domain.CartLine {
	out := domain.CloneLines(lines)
	for i := range out {
		out[i].Quantity, _ = quantity.Clamp(out[i].Quantity, out[i].StockLimit)
	}
	return out
}
