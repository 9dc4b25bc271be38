package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

type Notifications struct {
	store DocumentStore
}

func NewNotifications(store DocumentStore) *Notifications {
	return &Notifications{store: store}
}

func (r *Notifications) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	id, err := r.store.Insert(ctx, CollectionNotifications, NotificationToDocument(n))
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	created := *n
	created.ID = id
	return &created, nil
}

// FindByOrder returns nil, nil when the order has no notification yet.
func (r *Notifications) FindByOrder(ctx context.Context, userID, orderID string) (*domain.Notification, error) {
	docs, err := r.store.Query(ctx, CollectionNotifications, Filter{"userId": userID, "orderId": orderID})
	if err != nil {
		return nil, fmt.Errorf("failed to look up notification: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return NotificationFromDocument(docs[0])
}

// ListByUser returns notifications newest first. Malformed records are
// skipped and reported in the second return value.
func (r *Notifications) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*domain.Notification, []error, error) {
	filter := Filter{"userId": userID}
	if unreadOnly {
		filter["read"] = false
	}
	docs, err := r.store.Query(ctx, CollectionNotifications, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	out := make([]*domain.Notification, 0, len(docs))
	var skipped []error
	for _, doc := range docs {
		n, err := NotificationFromDocument(doc)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, skipped, nil
}

// MarkRead marks one of the user's notifications read. A notification of
// another user is reported as ErrNotFound.
func (r *Notifications) MarkRead(ctx context.Context, userID, id string) error {
	docs, err := r.store.Query(ctx, CollectionNotifications, Filter{FieldID: id, "userId": userID})
	if err != nil {
		return fmt.Errorf("failed to look up notification: %w", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return r.markRead(ctx, id)
}

// MarkAllRead marks every unread notification of the user. Without a batch
// primitive the updates are independent; all failures are returned joined.
func (r *Notifications) MarkAllRead(ctx context.Context, userID string) (int, error) {
	unread, _, err := r.ListByUser(ctx, userID, true)
	if err != nil {
		return 0, err
	}

	var (
		marked int
		errs   []error
	)
	for _, n := range unread {
		if err := r.markRead(ctx, n.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		marked++
	}
	return marked, errors.Join(errs...)
}

func (r *Notifications) markRead(ctx context.Context, id string) error {
	if err := r.store.Update(ctx, CollectionNotifications, id, Document{"read": true}); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}
