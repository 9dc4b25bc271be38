// Package mirror keeps a best-effort remote copy of the local cart so other
// devices can see it. The local cart is authoritative; the mirror is
// last-write-wins and never merged back.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/remote"
	"go.uber.org/zap"
)

type Mirror struct {
	store  remote.DocumentStore
	logger *zap.Logger
	now    func() time.Time
}

func New(store remote.DocumentStore, logger *zap.Logger) *Mirror {
	return &Mirror{store: store, logger: logger, now: time.Now}
}

// Push replaces the remote entry for the line's identity.
func (m *Mirror) Push(ctx context.Context, userID string, line domain.CartLine) error {
	if err := m.deleteMatching(ctx, userID, domain.KeySet([]domain.LineKey{line.Key()})); err != nil {
		return err
	}
	if _, err := m.store.Insert(ctx, remote.CollectionCart, remote.MirrorEntryToDocument(userID, line, m.now())); err != nil {
		return fmt.Errorf("failed to push mirror entry: %w", err)
	}
	return nil
}

// List returns the user's mirror entries. Malformed entries are logged and skipped.
func (m *Mirror) List(ctx context.Context, userID string) ([]remote.MirrorEntry, error) {
	docs, err := m.store.Query(ctx, remote.CollectionCart, remote.Filter{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list mirror entries: %w", err)
	}

	entries := make([]remote.MirrorEntry, 0, len(docs))
	for _, doc := range docs {
		e, err := remote.MirrorEntryFromDocument(doc)
		if err != nil {
			m.logger.Warn("skipping malformed mirror entry", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

// DeleteLines removes every entry whose identity is in keys. It keeps going
// after a failed delete and returns all failures joined.
func (m *Mirror) DeleteLines(ctx context.Context, userID string, keys []domain.LineKey) error {
	if len(keys) == 0 {
		return nil
	}
	return m.deleteMatching(ctx, userID, domain.KeySet(keys))
}

func (m *Mirror) deleteMatching(ctx context.Context, userID string, keys map[domain.LineKey]struct{}) error {
	entries, err := m.List(ctx, userID)
	if err != nil {
		return err
	}

	var errs []error
	for _, e := range entries {
		if _, ok := keys[e.Line.Key()]; !ok {
			continue
		}
		err := m.store.Delete(ctx, remote.CollectionCart, e.ID)
		// already gone counts as deleted
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			errs = append(errs, fmt.Errorf("failed to delete mirror entry %s: %w", e.ID, err))
		}
	}
	return errors.Join(errs...)
}
