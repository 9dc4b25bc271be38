// Package inventory reads and maintains per-variant stock levels in the
// remote document store. The checkout consults it to re-check staged
// quantities right before an order is placed.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/remote"
	"go.uber.org/zap"
)

var (
	ErrInvalidStock = errors.New("stock level must not be negative")
	ErrUnknownItem  = errors.New("no stock level recorded for item")
)

type Catalog struct {
	store  remote.DocumentStore
	logger *zap.Logger
	now    func() time.Time
}

func NewCatalog(store remote.DocumentStore, logger *zap.Logger) *Catalog {
	return &Catalog{store: store, logger: logger, now: time.Now}
}

// SetStock records the available quantity of a variant, replacing any
// earlier level.
func (c *Catalog) SetStock(ctx context.Context, key domain.LineKey, available int) error {
	if key.ProductID == "" {
		return fmt.Errorf("%w: product_id is required", ErrInvalidStock)
	}
	if available < 0 {
		return ErrInvalidStock
	}

	existing, err := c.find(ctx, key)
	if err != nil {
		return err
	}
	doc := remote.StockLevelToDocument(key, available, c.now())
	if existing == nil {
		if _, err := c.store.Insert(ctx, remote.CollectionStock, doc); err != nil {
			return fmt.Errorf("failed to insert stock level: %w", err)
		}
		return nil
	}
	if err := c.store.Update(ctx, remote.CollectionStock, existing.ID, doc); err != nil {
		return fmt.Errorf("failed to update stock level: %w", err)
	}
	return nil
}

// GetStock returns ErrUnknownItem when no level was ever recorded.
func (c *Catalog) GetStock(ctx context.Context, key domain.LineKey) (int, error) {
	level, err := c.find(ctx, key)
	if err != nil {
		return 0, err
	}
	if level == nil {
		return 0, ErrUnknownItem
	}
	return level.Available, nil
}

// CurrentStock looks up every requested variant. Variants without a
// recorded level are omitted.
func (c *Catalog) CurrentStock(ctx context.Context, keys []domain.LineKey) (map[domain.LineKey]int, error) {
	wanted := make(map[domain.LineKey]struct{}, len(keys))
	products := make(map[string]struct{})
	for _, k := range keys {
		wanted[k] = struct{}{}
		products[k.ProductID] = struct{}{}
	}

	result := make(map[domain.LineKey]int, len(keys))
	for productID := range products {
		levels, err := c.levels(ctx, remote.Filter{"productId": productID})
		if err != nil {
			return nil, err
		}
		for _, l := range levels {
			if _, ok := wanted[l.Key]; ok {
				result[l.Key] = l.Available
			}
		}
	}
	return result, nil
}

func (c *Catalog) find(ctx context.Context, key domain.LineKey) (*remote.StockLevel, error) {
	levels, err := c.levels(ctx, remote.Filter{"productId": key.ProductID, "color": key.Color, "size": key.Size})
	if err != nil {
		return nil, err
	}
	if len(levels) == 0 {
		return nil, nil
	}
	return levels[0], nil
}

func (c *Catalog) levels(ctx context.Context, filter remote.Filter) ([]*remote.StockLevel, error) {
	docs, err := c.store.Query(ctx, remote.CollectionStock, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock: %w", err)
	}
	out := make([]*remote.StockLevel, 0, len(docs))
	for _, doc := range docs {
		level, err := remote.StockLevelFromDocument(doc)
		if err != nil {
			c.logger.Warn("skipping malformed stock record", zap.Error(err))
			continue
		}
		out = append(out, level)
	}
	return out, nil
}
