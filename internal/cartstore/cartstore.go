// Package cartstore is the durable on-device cart. A Store is loaded once per
// session and rewrites the whole line list on every mutation.
//
// A Store has a single owner; it is not safe for concurrent writers.
package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/kv"
	"github.com/fjod/go_cart/cartsync/internal/quantity"
)

var (
	ErrLineNotFound = errors.New("line not found in cart")
	ErrInvalidLine  = errors.New("invalid cart line")
)

func StorageKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

type Store struct {
	kv     kv.Store
	userID string
	lines  []domain.CartLine
	now    func() time.Time
}

// Open loads the user's cart from local storage. A missing cart is empty.
func Open(ctx context.Context, store kv.Store, userID string) (*Store, error) {
	s := &Store{kv: store, userID: userID, now: time.Now}

	data, err := store.Get(ctx, StorageKey(userID))
	if errors.Is(err, kv.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	if err := json.Unmarshal(data, &s.lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return s, nil
}

func (s *Store) UserID() string {
	return s.userID
}

// List returns a copy of the lines in insertion order.
func (s *Store) List() []domain.CartLine {
	return domain.CloneLines(s.lines)
}

func (s *Store) Get(key domain.LineKey) (domain.CartLine, bool) {
	i := s.indexOf(key)
	if i < 0 {
		return domain.CartLine{}, false
	}
	return s.lines[i], true
}

// Upsert adds line to the cart. An existing identity gets the incoming
// quantity added and re-clamped to the (refreshed) stock limit.
// Upsert is not idempotent; callers must not blindly retry it.
func (s *Store) Upsert(ctx context.Context, line domain.CartLine) (domain.CartLine, bool, error) {
	if err := validate(line); err != nil {
		return domain.CartLine{}, false, err
	}

	next := domain.CloneLines(s.lines)
	var (
		result  domain.CartLine
		clamped bool
	)
	if i := indexOf(next, line.Key()); i >= 0 {
		existing := next[i]
		existing.Name = line.Name
		existing.ImageURL = line.ImageURL
		existing.UnitPrice = line.UnitPrice
		existing.StockLimit = line.StockLimit
		existing.Quantity, clamped = quantity.Clamp(existing.Quantity+line.Quantity, line.StockLimit)
		next[i] = existing
		result = existing
	} else {
		line.Quantity, clamped = quantity.Clamp(line.Quantity, line.StockLimit)
		if line.AddedAt.IsZero() {
			line.AddedAt = s.now()
		}
		next = append(next, line)
		result = line
	}

	if err := s.save(ctx, next); err != nil {
		return domain.CartLine{}, false, err
	}
	return result, clamped, nil
}

// UpdateQuantity applies delta through the quantity controller.
func (s *Store) UpdateQuantity(ctx context.Context, key domain.LineKey, delta int) (domain.CartLine, bool, error) {
	i := s.indexOf(key)
	if i < 0 {
		return domain.CartLine{}, false, ErrLineNotFound
	}

	next := domain.CloneLines(s.lines)
	var clamped bool
	next[i].Quantity, clamped = quantity.SetQuantity(next[i], delta)

	if err := s.save(ctx, next); err != nil {
		return domain.CartLine{}, false, err
	}
	return next[i], clamped, nil
}

// RefreshStock records a new stock snapshot and re-clamps the quantity.
func (s *Store) RefreshStock(ctx context.Context, key domain.LineKey, stockLimit int) (domain.CartLine, error) {
	i := s.indexOf(key)
	if i < 0 {
		return domain.CartLine{}, ErrLineNotFound
	}
	if stockLimit < 0 {
		return domain.CartLine{}, fmt.Errorf("%w: negative stock limit", ErrInvalidLine)
	}

	next := domain.CloneLines(s.lines)
	next[i].StockLimit = stockLimit
	next[i].Quantity, _ = quantity.Clamp(next[i].Quantity, stockLimit)

	if err := s.save(ctx, next); err != nil {
		return domain.CartLine{}, err
	}
	return next[i], nil
}

func (s *Store) Remove(ctx context.Context, key domain.LineKey) error {
	return s.RemoveMany(ctx, []domain.LineKey{key})
}

// RemoveMany drops every listed identity. Missing identities are ignored, so
// the call is safe to retry.
func (s *Store) RemoveMany(ctx context.Context, keys []domain.LineKey) error {
	drop := domain.KeySet(keys)
	next := make([]domain.CartLine, 0, len(s.lines))
	for _, l := range s.lines {
		if _, ok := drop[l.Key()]; ok {
			continue
		}
		next = append(next, l)
	}
	if len(next) == len(s.lines) {
		return nil
	}
	return s.save(ctx, next)
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, StorageKey(s.userID)); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	s.lines = nil
	return nil
}

// save persists next and only then swaps it in, so a failed write leaves the
// in-memory cart matching what is on disk.
func (s *Store) save(ctx context.Context, next []domain.CartLine) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := s.kv.Set(ctx, StorageKey(s.userID), data); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	s.lines = next
	return nil
}

func (s *Store) indexOf(key domain.LineKey) int {
	return indexOf(s.lines, key)
}

func indexOf(lines []domain.CartLine, key domain.LineKey) int {
	for i, l := range lines {
		if l.Key() == key {
			return i
		}
	}
	return -1
}

func validate(line domain.CartLine) error {
	switch {
	case line.ProductID == "":
		return fmt.Errorf("%w: product_id is required", ErrInvalidLine)
	case line.UnitPrice < 0:
		return fmt.Errorf("%w: unit_price must not be negative", ErrInvalidLine)
	case line.StockLimit < 0:
		return fmt.Errorf("%w: stock_limit must not be negative", ErrInvalidLine)
	case line.Quantity < 1:
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidLine)
	}
	return nil
}
