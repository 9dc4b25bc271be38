package pricing

import "github.com/fjod/go_cart/cartsync/internal/domain"

const (
	FreeShippingThreshold int64 = 500000
	StandardShippingFee   int64 = 30000

	VoucherPercent     int64 = 10
	VoucherMaxDiscount int64 = 100000
)

type Totals struct {
	Subtotal    int64 `json:"subtotal"`
	ShippingFee int64 `json:"shipping_fee"`
	Discount    int64 `json:"discount"`
	Total       int64 `json:"total"`
}

// ShippingFee is free for an empty order and for orders at or above the threshold.
func ShippingFee(subtotal int64) int64 {
	if subtotal == 0 || subtotal >= FreeShippingThreshold {
		return 0
	}
	return StandardShippingFee
}

func VoucherDiscount(subtotal int64) int64 {
	d := subtotal * VoucherPercent / 100
	if d > VoucherMaxDiscount {
		return VoucherMaxDiscount
	}
	return d
}

// Subtotal sums available lines only.
func Subtotal(lines []domain.CartLine) int64 {
	var sum int64
	for _, l := range lines {
		if !l.Available() {
			continue
		}
		sum += l.LineTotal()
	}
	return sum
}

// Total never goes below zero.
func Total(subtotal, shippingFee, discount int64) int64 {
	t := subtotal + shippingFee - discount
	if t < 0 {
		return 0
	}
	return t
}

func Compute(lines []domain.CartLine, voucherApplied bool) Totals {
	subtotal := Subtotal(lines)
	t := Totals{
		Subtotal:    subtotal,
		ShippingFee: ShippingFee(subtotal),
	}
	if voucherApplied {
		t.Discount = VoucherDiscount(subtotal)
	}
	t.Total = Total(t.Subtotal, t.ShippingFee, t.Discount)
	return t
}
