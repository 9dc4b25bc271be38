package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

var (
	ErrCheckoutInProgress  = errors.New("a checkout is already in progress for this user")
	IllegalTransitionError = errors.New("illegal transition of checkout state")
)

// ValidationError means the commit was refused before any remote write.
type ValidationError struct {
	Fields []string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("checkout validation failed: %s: %s", e.Reason, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("checkout validation failed: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

type StockChange struct {
	Key       domain.LineKey `json:"key"`
	Requested int            `json:"requested"`
	Available int            `json:"available"`
}

// StockChangedError means stock fell below a staged quantity after staging.
type StockChangedError struct {
	Changes []StockChange
}

func (e *StockChangedError) Error() string {
	parts := make([]string, len(e.Changes))
	for i, c := range e.Changes {
		parts[i] = fmt.Sprintf("%s (wanted %d, %d left)", c.Key, c.Requested, c.Available)
	}
	return "stock changed since checkout began: " + strings.Join(parts, "; ")
}

// OrderCreationError means no order is known to exist. The staged lines are
// kept and the commit may be retried with the same idempotency key.
type OrderCreationError struct {
	StagingID string
	Err       error
}

func (e *OrderCreationError) Error() string {
	return fmt.Sprintf("failed to create order for checkout %s: %v", e.StagingID, e.Err)
}

func (e *OrderCreationError) Unwrap() error { return e.Err }

// Timeout reports whether the remote call ran out of time; the write may
// still have landed.
func (e *OrderCreationError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// PostCommitDegradation is not a failure: the order exists, but some
// cleanup steps did not finish and are left to reconciliation.
type PostCommitDegradation struct {
	OrderID string
	Steps   []domain.CheckoutStep
	Err     error
}

func (e *PostCommitDegradation) Error() string {
	steps := make([]string, len(e.Steps))
	for i, s := range e.Steps {
		steps[i] = string(s)
	}
	return fmt.Sprintf("order %s committed, cleanup incomplete (%s): %v", e.OrderID, strings.Join(steps, ", "), e.Err)
}

func (e *PostCommitDegradation) Unwrap() error { return e.Err }
