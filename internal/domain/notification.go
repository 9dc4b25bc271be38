package domain

import (
	"fmt"
	"time"
)

const NotificationTypeOrder = "order"

// Notification is the persisted record written once per created order.
// OrderID is a lookup reference only.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	OrderID   string    `json:"order_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

func NewOrderNotification(order *Order, now time.Time) *Notification {
	return &Notification{
		UserID:    order.UserID,
		OrderID:   order.ID,
		Type:      NotificationTypeOrder,
		Title:     "Order placed",
		Message:   fmt.Sprintf("Order #%s has been received and is awaiting processing.", order.ShortID()),
		Read:      false,
		CreatedAt: now,
	}
}
