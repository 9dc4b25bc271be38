// Package history serves the order list and the notification inbox.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"go.uber.org/zap"
)

// ErrOrderNotFound hides orders that belong to another user.
var ErrOrderNotFound = errors.New("order not found")

type OrderReader interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Order, []error, error)
}

type NotificationStore interface {
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*domain.Notification, []error, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

type Service struct {
	orders        OrderReader
	notifications NotificationStore
	logger        *zap.Logger
}

func NewService(orders OrderReader, notifications NotificationStore, logger *zap.Logger) *Service {
	return &Service{orders: orders, notifications: notifications, logger: logger}
}

// Orders returns the user's orders newest first. Records that fail
// validation are logged and left out rather than failing the whole list.
func (s *Service) Orders(ctx context.Context, userID string) ([]*domain.Order, error) {
	orders, skipped, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, e := range skipped {
		s.logger.Warn("skipping malformed order record", zap.String("user_id", userID), zap.Error(e))
	}
	return orders, nil
}

// Order returns one of the user's orders.
func (s *Service) Order(ctx context.Context, userID, id string) (*domain.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %s: %w", id, ErrOrderNotFound)
	}
	return order, nil
}

func (s *Service) Notifications(ctx context.Context, userID string, unreadOnly bool) ([]*domain.Notification, error) {
	notes, skipped, err := s.notifications.ListByUser(ctx, userID, unreadOnly)
	if err != nil {
		return nil, err
	}
	for _, e := range skipped {
		s.logger.Warn("skipping malformed notification record", zap.String("user_id", userID), zap.Error(e))
	}
	return notes, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	unread, _, err := s.notifications.ListByUser(ctx, userID, true)
	if err != nil {
		return 0, err
	}
	return len(unread), nil
}

// MarkRead marks a notification of the user read; other users'
// notifications are reported as not found.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return s.notifications.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.notifications.MarkAllRead(ctx, userID)
}
