package checkout

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/cartsync/internal/cartstore"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"go.uber.org/zap"
)

func (c *Coordinator) validate(staged *domain.StagedCheckout, req CommitRequest) (domain.PaymentMethod, error) {
	if staged == nil || len(staged.Lines) == 0 {
		return "", &ValidationError{Reason: "nothing staged for checkout", Fields: []string{"lines"}}
	}
	if missing := req.Address.Missing(); len(missing) > 0 {
		return "", &ValidationError{Reason: "shipping address incomplete", Fields: missing}
	}
	payment, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return "", &ValidationError{Reason: "invalid payment method", Fields: []string{"payment_method"}, Err: err}
	}
	return payment, nil
}

// checkStock compares staged quantities with current stock. When stock
// dropped, the local cart learns the new limits so the user sees them.
// An unreachable stock source does not block the checkout.
func (c *Coordinator) checkStock(ctx context.Context, staged *domain.StagedCheckout) error {
	if c.stock == nil {
		return nil
	}
	ctx, span := c.tracer.Start(ctx, "checkout.validate_stock")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	current, err := c.stock.CurrentStock(callCtx, staged.Keys())
	if err != nil {
		c.logger.Warn("stock re-check unavailable, proceeding with staged quantities",
			zap.String("user_id", staged.UserID), zap.Bool("timeout", isTimeout(err)), zap.Error(err))
		return nil
	}

	var changes []StockChange
	for _, l := range staged.Lines {
		available, ok := current[l.Key()]
		if !ok || available >= l.Quantity {
			continue
		}
		changes = append(changes, StockChange{Key: l.Key(), Requested: l.Quantity, Available: available})
	}
	if len(changes) == 0 {
		return nil
	}

	if staged.Source == domain.SourceCart {
		err := c.carts.With(ctx, staged.UserID, func(s *cartstore.Store) error {
			for _, ch := range changes {
				if _, err := s.RefreshStock(ctx, ch.Key, ch.Available); err != nil && !errors.Is(err, cartstore.ErrLineNotFound) {
					return err
				}
			}
			return nil
		})
		if err != nil {
			c.logger.Warn("failed to refresh cart stock limits", zap.String("user_id", staged.UserID), zap.Error(err))
		}
	}
	return &StockChangedError{Changes: changes}
}
