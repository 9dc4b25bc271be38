package remote

import (
	"context"
	"fmt"
	"sort"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

type Orders struct {
	store DocumentStore
}

func NewOrders(store DocumentStore) *Orders {
	return &Orders{store: store}
}

// Create writes the order and returns it with the store-assigned ID.
func (r *Orders) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	id, err := r.store.Insert(ctx, CollectionOrders, OrderToDocument(order))
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	created := *order
	created.ID = id
	created.Lines = append([]domain.OrderLine(nil), order.Lines...)
	return &created, nil
}

// FindByIdempotencyKey returns nil, nil when no order carries the key.
func (r *Orders) FindByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Order, error) {
	docs, err := r.store.Query(ctx, CollectionOrders, Filter{"userId": userID, "idempotencyKey": key})
	if err != nil {
		return nil, fmt.Errorf("failed to look up order by idempotency key: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return OrderFromDocument(docs[0])
}

func (r *Orders) Get(ctx context.Context, id string) (*domain.Order, error) {
	docs, err := r.store.Query(ctx, CollectionOrders, Filter{FieldID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return OrderFromDocument(docs[0])
}

// ListByUser returns the user's orders newest first. Malformed records are
// skipped and reported in the second return value.
func (r *Orders) ListByUser(ctx context.Context, userID string) ([]*domain.Order, []error, error) {
	docs, err := r.store.Query(ctx, CollectionOrders, Filter{"userId": userID})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(docs))
	var skipped []error
	for _, doc := range docs {
		o, err := OrderFromDocument(doc)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		orders = append(orders, o)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, skipped, nil
}
