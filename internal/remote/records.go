package remote

import (
	"fmt"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

// MirrorEntry is one remote copy of a cart line.
type MirrorEntry struct {
	ID        string
	UserID    string
	Line      domain.CartLine
	UpdatedAt time.Time
}

func OrderToDocument(o *domain.Order) Document {
	items := make([]any, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = map[string]any{
			"productId": l.ProductID,
			"color":     l.Color,
			"size":      l.Size,
			"name":      l.Name,
			"image":     l.ImageURL,
			"price":     l.UnitPrice,
			"quantity":  int64(l.Quantity),
		}
	}
	a := o.ShippingAddress
	return Document{
		"userId":         o.UserID,
		"idempotencyKey": o.IdempotencyKey,
		"items":          items,
		"subtotal":       o.Subtotal,
		"shippingFee":    o.ShippingFee,
		"discount":       o.Discount,
		"totalPrice":     o.TotalPrice,
		"paymentMethod":  string(o.PaymentMethod),
		"status":         string(o.Status),
		"address": map[string]any{
			"fullName": a.FullName,
			"phone":    a.Phone,
			"street":   a.Street,
			"ward":     a.Ward,
			"district": a.District,
			"city":     a.City,
		},
		"createdAt": o.CreatedAt,
	}
}

func OrderFromDocument(doc Document) (*domain.Order, error) {
	r := reader{doc: doc, kind: "order"}
	o := &domain.Order{
		ID:             r.str(FieldID, true),
		UserID:         r.str("userId", true),
		IdempotencyKey: r.str("idempotencyKey", false),
		Subtotal:       r.num("subtotal"),
		ShippingFee:    r.num("shippingFee"),
		Discount:       r.num("discount"),
		TotalPrice:     r.num("totalPrice"),
		PaymentMethod:  domain.PaymentMethod(r.str("paymentMethod", true)),
		Status:         domain.OrderStatus(r.str("status", true)),
		CreatedAt:      r.when("createdAt"),
	}

	for i, raw := range r.list("items") {
		item := reader{doc: asDoc(raw), kind: fmt.Sprintf("order item %d", i)}
		if item.doc == nil {
			r.fail("items[%d] is not a document", i)
			break
		}
		line := domain.OrderLine{
			ProductID: item.str("productId", true),
			Color:     item.str("color", false),
			Size:      item.str("size", false),
			Name:      item.str("name", false),
			ImageURL:  item.str("image", false),
			UnitPrice: item.num("price"),
			Quantity:  int(item.num("quantity")),
		}
		if item.err != nil {
			r.err = item.err
			break
		}
		if line.Quantity < 1 || line.UnitPrice < 0 {
			r.fail("items[%d] has invalid price or quantity", i)
			break
		}
		o.Lines = append(o.Lines, line)
	}

	if addr := asDoc(doc["address"]); addr != nil {
		a := reader{doc: addr, kind: "address"}
		o.ShippingAddress = domain.Address{
			FullName: a.str("fullName", false),
			Phone:    a.str("phone", false),
			Street:   a.str("street", false),
			Ward:     a.str("ward", false),
			District: a.str("district", false),
			City:     a.str("city", false),
		}
		if a.err != nil && r.err == nil {
			r.err = a.err
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	switch {
	case len(o.Lines) == 0:
		r.fail("has no items")
	case !o.PaymentMethod.Valid():
		r.fail("has unknown payment method %q", o.PaymentMethod)
	case !o.Status.Valid():
		r.fail("has unknown status %q", o.Status)
	case o.Subtotal < 0 || o.ShippingFee < 0 || o.Discount < 0 || o.TotalPrice < 0:
		r.fail("has negative amounts")
	}
	if r.err != nil {
		return nil, r.err
	}
	return o, nil
}

func NotificationToDocument(n *domain.Notification) Document {
	return Document{
		"userId":    n.UserID,
		"orderId":   n.OrderID,
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"read":      n.Read,
		"createdAt": n.CreatedAt,
	}
}

func NotificationFromDocument(doc Document) (*domain.Notification, error) {
	r := reader{doc: doc, kind: "notification"}
	n := &domain.Notification{
		ID:        r.str(FieldID, true),
		UserID:    r.str("userId", true),
		OrderID:   r.str("orderId", false),
		Type:      r.str("type", false),
		Title:     r.str("title", true),
		Message:   r.str("message", false),
		Read:      r.flag("read"),
		CreatedAt: r.when("createdAt"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return n, nil
}

func MirrorEntryToDocument(userID string, l domain.CartLine, now time.Time) Document {
	return Document{
		"userId":     userID,
		"productId":  l.ProductID,
		"color":      l.Color,
		"size":       l.Size,
		"name":       l.Name,
		"image":      l.ImageURL,
		"price":      l.UnitPrice,
		"quantity":   int64(l.Quantity),
		"stockLimit": int64(l.StockLimit),
		"updatedAt":  now,
	}
}

func MirrorEntryFromDocument(doc Document) (*MirrorEntry, error) {
	r := reader{doc: doc, kind: "cart mirror entry"}
	e := &MirrorEntry{
		ID:     r.str(FieldID, true),
		UserID: r.str("userId", true),
		Line: domain.CartLine{
			ProductID:  r.str("productId", true),
			Color:      r.str("color", false),
			Size:       r.str("size", false),
			Name:       r.str("name", false),
			ImageURL:   r.str("image", false),
			UnitPrice:  r.num("price"),
			Quantity:   int(r.num("quantity")),
			StockLimit: int(r.num("stockLimit")),
		},
		UpdatedAt: r.when("updatedAt"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return e, nil
}

// StockLevel is the available quantity of one product variant.
type StockLevel struct {
	ID        string
	Key       domain.LineKey
	Available int
	UpdatedAt time.Time
}

func StockLevelToDocument(key domain.LineKey, available int, now time.Time) Document {
	return Document{
		"productId": key.ProductID,
		"color":     key.Color,
		"size":      key.Size,
		"available": int64(available),
		"updatedAt": now,
	}
}

func StockLevelFromDocument(doc Document) (*StockLevel, error) {
	r := reader{doc: doc, kind: "stock level"}
	s := &StockLevel{
		ID: r.str(FieldID, true),
		Key: domain.LineKey{
			ProductID: r.str("productId", true),
			Color:     r.str("color", false),
			Size:      r.str("size", false),
		},
		Available: int(r.num("available")),
		UpdatedAt: r.when("updatedAt"),
	}
	if s.Available < 0 {
		r.fail("negative available %d", s.Available)
	}
	if r.err != nil {
		return nil, r.err
	}
	return s, nil
}

// reader pulls typed fields out of a Document and remembers the first
// schema violation.
type reader struct {
	doc  Document
	kind string
	err  error
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s %s", ErrInvalidRecord, r.kind, fmt.Sprintf(format, args...))
	}
}

func (r *reader) str(key string, required bool) string {
	v, ok := r.doc[key]
	if !ok || v == nil {
		if required {
			r.fail("missing %q", key)
		}
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail("field %q is %T, want string", key, v)
		return ""
	}
	if required && s == "" {
		r.fail("empty %q", key)
	}
	return s
}

func (r *reader) num(key string) int64 {
	v, ok := r.doc[key]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		if n != float64(int64(n)) {
			r.fail("field %q is not a whole number", key)
		}
		return int64(n)
	default:
		r.fail("field %q is %T, want number", key, v)
		return 0
	}
}

func (r *reader) flag(key string) bool {
	v, ok := r.doc[key]
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		r.fail("field %q is %T, want bool", key, v)
	}
	return b
}

func (r *reader) when(key string) time.Time {
	v, ok := r.doc[key]
	if !ok || v == nil {
		return time.Time{}
	}
	t, ok := v.(time.Time)
	if !ok {
		r.fail("field %q is %T, want time", key, v)
	}
	return t
}

func (r *reader) list(key string) []any {
	v, ok := r.doc[key]
	if !ok || v == nil {
		return nil
	}
	l, ok := v.([]any)
	if !ok {
		r.fail("field %q is %T, want list", key, v)
	}
	return l
}

func asDoc(v any) Document {
	switch m := v.(type) {
	case Document:
		return m
	case map[string]any:
		return Document(m)
	default:
		return nil
	}
}
