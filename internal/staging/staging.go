// Package staging holds the snapshot of lines being purchased so an
// interrupted checkout resumes with exactly the same lines.
package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/kv"
	"github.com/fjod/go_cart/cartsync/internal/pricing"
	"github.com/google/uuid"
)

var ErrNothingToStage = errors.New("no purchasable lines to stage")

func StorageKey(userID string) string {
	return fmt.Sprintf("checkout:staged:%s", userID)
}

type Options struct {
	Source      domain.StagingSource
	VoucherCode string
}

// Buffer keeps an in-memory copy per user in front of durable storage.
type Buffer struct {
	kv    kv.Store
	mu    sync.Mutex
	cache map[string]*domain.StagedCheckout
	now   func() time.Time
}

func NewBuffer(store kv.Store) *Buffer {
	return &Buffer{
		kv:    store,
		cache: make(map[string]*domain.StagedCheckout),
		now:   time.Now,
	}
}

// Stage snapshots lines for userID, replacing anything staged before.
// Out-of-stock lines are left out. The returned ID is the order idempotency key.
func (b *Buffer) Stage(ctx context.Context, userID string, lines []domain.CartLine, opts Options) (*domain.StagedCheckout, error) {
	picked := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.Available() {
			picked = append(picked, l)
		}
	}
	if len(picked) == 0 {
		return nil, ErrNothingToStage
	}

	if opts.Source == "" {
		opts.Source = domain.SourceCart
	}
	totals := pricing.Compute(picked, opts.VoucherCode != "")
	staged := &domain.StagedCheckout{
		ID:          uuid.New().String(),
		UserID:      userID,
		Lines:       domain.CloneLines(picked),
		Subtotal:    totals.Subtotal,
		ShippingFee: totals.ShippingFee,
		Discount:    totals.Discount,
		Total:       totals.Total,
		Source:      opts.Source,
		VoucherCode: opts.VoucherCode,
		CreatedAt:   b.now(),
	}

	data, err := json.Marshal(staged)
	if err != nil {
		return nil, fmt.Errorf("marshal staged checkout failed: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.kv.Set(ctx, StorageKey(userID), data); err != nil {
		return nil, fmt.Errorf("failed to persist staged checkout: %w", err)
	}
	b.cache[userID] = staged
	return clone(staged), nil
}

// Load returns the staged checkout for userID, falling back to durable
// storage after a restart. It returns nil, nil when nothing is staged.
func (b *Buffer) Load(ctx context.Context, userID string) (*domain.StagedCheckout, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if staged, ok := b.cache[userID]; ok {
		return clone(staged), nil
	}

	data, err := b.kv.Get(ctx, StorageKey(userID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load staged checkout: %w", err)
	}

	var staged domain.StagedCheckout
	if err := json.Unmarshal(data, &staged); err != nil {
		return nil, fmt.Errorf("unmarshal staged checkout failed: %w", err)
	}
	b.cache[userID] = &staged
	return clone(&staged), nil
}

// Discard removes the snapshot. Safe to call when nothing is staged.
func (b *Buffer) Discard(ctx context.Context, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.kv.Delete(ctx, StorageKey(userID)); err != nil {
		return fmt.Errorf("failed to discard staged checkout: %w", err)
	}
	delete(b.cache, userID)
	return nil
}

// Forget drops the in-memory copy only, as a process restart would.
func (b *Buffer) Forget(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cache, userID)
}

func clone(s *domain.StagedCheckout) *domain.StagedCheckout {
	c := *s
	c.Lines = domain.CloneLines(s.Lines)
	return &c
}
