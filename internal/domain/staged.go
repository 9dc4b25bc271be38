package domain

import "time"

type StagingSource string

const (
	SourceCart   StagingSource = "cart"
	SourceBuyNow StagingSource = "buy_now"
)

// StagedCheckout is the frozen set of lines the user committed to buy.
// Its ID doubles as the idempotency key of the order created from it.
type StagedCheckout struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Lines       []CartLine    `json:"lines"`
	Subtotal    int64         `json:"subtotal"`
	ShippingFee int64         `json:"shipping_fee"`
	Discount    int64         `json:"discount"`
	Total       int64         `json:"total"`
	Source      StagingSource `json:"source"`
	VoucherCode string        `json:"voucher_code,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (s *StagedCheckout) Keys() []LineKey {
	return Keys(s.Lines)
}
