package domain

import (
	"fmt"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusShipping  OrderStatus = "SHIPPING"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusShipping, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bankTransfer"
	PaymentEWallet      PaymentMethod = "eWallet"
)

func (p PaymentMethod) Valid() bool {
	return p == PaymentCash || p == PaymentBankTransfer || p == PaymentEWallet
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	p := PaymentMethod(s)
	// the mobile client historically sent "cod" for cash on delivery
	if s == "cod" {
		p = PaymentCash
	}
	if !p.Valid() {
		return "", fmt.Errorf("unknown payment method %q", s)
	}
	return p, nil
}

// Address is copied into the order, never referenced.
type Address struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Street   string `json:"street"`
	Ward     string `json:"ward"`
	District string `json:"district"`
	City     string `json:"city"`
}

// Missing lists the required address fields that are blank.
func (a *Address) Missing() []string {
	if a == nil {
		return []string{"address"}
	}
	var missing []string
	fields := []struct{ name, value string }{
		{"full_name", a.FullName},
		{"phone", a.Phone},
		{"street", a.Street},
		{"city", a.City},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func (a Address) String() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.Ward, a.District, a.City} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type OrderLine struct {
	ProductID string `json:"product_id"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

func (l OrderLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, Color: l.Color, Size: l.Size}
}

// Order is immutable once created; TotalPrice is never recomputed.
type Order struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	IdempotencyKey  string        `json:"idempotency_key"`
	Lines           []OrderLine   `json:"lines"`
	Subtotal        int64         `json:"subtotal"`
	ShippingFee     int64         `json:"shipping_fee"`
	Discount        int64         `json:"discount"`
	TotalPrice      int64         `json:"total_price"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	Status          OrderStatus   `json:"status"`
	ShippingAddress Address       `json:"shipping_address"`
	CreatedAt       time.Time     `json:"created_at"`
}

func (o *Order) Keys() []LineKey {
	keys := make([]LineKey, len(o.Lines))
	for i, l := range o.Lines {
		keys[i] = l.Key()
	}
	return keys
}

// ShortID is the reference shown to customers.
func (o *Order) ShortID() string {
	id := o.ID
	if len(id) > 7 {
		id = id[:7]
	}
	return strings.ToUpper(id)
}

// OrderLinesFrom copies cart lines into order lines, freezing price and quantity.
func OrderLinesFrom(lines []CartLine) []OrderLine {
	out := make([]OrderLine, len(lines))
	for i, l := range lines {
		out[i] = OrderLine{
			ProductID: l.ProductID,
			Color:     l.Color,
			Size:      l.Size,
			Name:      l.Name,
			ImageURL:  l.ImageURL,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}
	return out
}
