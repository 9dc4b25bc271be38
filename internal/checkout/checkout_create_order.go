package checkout

import (
	"context"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// createOrder writes the order unless one already carries the staging ID,
// which happens when an earlier attempt landed but its reply was lost.
func (c *Coordinator) createOrder(ctx context.Context, staged *domain.StagedCheckout, address domain.Address, payment domain.PaymentMethod) (*domain.Order, bool, error) {
	ctx, span := c.tracer.Start(ctx, "checkout.create_order")
	span.SetAttributes(attribute.String("staging_id", staged.ID))
	defer span.End()

	fail := func(err error) (*domain.Order, bool, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order creation failed")
		return nil, false, &OrderCreationError{StagingID: staged.ID, Err: err}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	existing, err := c.orders.FindByIdempotencyKey(lookupCtx, staged.UserID, staged.ID)
	cancel()
	if err != nil {
		return fail(err)
	}
	if existing != nil {
		span.SetAttributes(attribute.Bool("existing", true))
		return existing, true, nil
	}

	order := &domain.Order{
		UserID:          staged.UserID,
		IdempotencyKey:  staged.ID,
		Lines:           domain.OrderLinesFrom(staged.Lines),
		Subtotal:        staged.Subtotal,
		ShippingFee:     staged.ShippingFee,
		Discount:        staged.Discount,
		TotalPrice:      staged.Total,
		PaymentMethod:   payment,
		Status:          domain.OrderStatusPending,
		ShippingAddress: address,
		CreatedAt:       c.now(),
	}

	createCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	created, err := c.orders.Create(createCtx, order)
	if err != nil {
		return fail(err)
	}
	return created, false, nil
}
