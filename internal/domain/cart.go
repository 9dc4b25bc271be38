package domain

import "time"

// LineKey identifies one purchasable configuration of a product in the cart.
// Color and Size are empty when the product has no such variant.
type LineKey struct {
	ProductID string `json:"product_id"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
}

func (k LineKey) String() string {
	s := k.ProductID
	if k.Color != "" {
		s += "/" + k.Color
	}
	if k.Size != "" {
		s += "/" + k.Size
	}
	return s
}

type CartLine struct {
	ProductID  string    `json:"product_id"`
	Color      string    `json:"color,omitempty"`
	Size       string    `json:"size,omitempty"`
	Name       string    `json:"name"`
	ImageURL   string    `json:"image_url,omitempty"`
	UnitPrice  int64     `json:"unit_price"`
	Quantity   int       `json:"quantity"`
	StockLimit int       `json:"stock_limit"`
	AddedAt    time.Time `json:"added_at"`
}

func (l CartLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, Color: l.Color, Size: l.Size}
}

// Available reports whether the line can be bought. Lines with no stock stay
// in the cart but are excluded from checkout.
func (l CartLine) Available() bool {
	return l.StockLimit > 0
}

func (l CartLine) LineTotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// KeySet builds a lookup set from line identities.
func KeySet(keys []LineKey) map[LineKey]struct{} {
	set := make(map[LineKey]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Keys returns the identities of lines in order.
func Keys(lines []CartLine) []LineKey {
	keys := make([]LineKey, len(lines))
	for i, l := range lines {
		keys[i] = l.Key()
	}
	return keys
}

// CloneLines returns a deep copy so callers can freeze a snapshot.
func CloneLines(lines []CartLine) []CartLine {
	if lines == nil {
		return nil
	}
	out := make([]CartLine, len(lines))
	copy(out, lines)
	return out
}

// WithoutKeys returns the lines whose identity is not in drop.
func WithoutKeys(lines []CartLine, drop []LineKey) []CartLine {
	if len(drop) == 0 {
		return lines
	}
	skip := KeySet(drop)
	out := make([]CartLine, 0, len(lines))
	for _, l := range lines {
		if _, ok := skip[l.Key()]; !ok {
			out = append(out, l)
		}
	}
	return out
}
