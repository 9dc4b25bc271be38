// Package reconcile finishes checkouts whose order was created but whose
// cleanup was left incomplete, and hides their purchased lines from the cart
// until it is finished.
package reconcile

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/cartsync/internal/checkout"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"go.uber.org/zap"
)

// Cleaner re-runs post-commit steps for one journaled order.
type Cleaner interface {
	ResumeCleanup(ctx context.Context, entry domain.PendingCleanup) (domain.PendingCleanup, error)
}

type Report struct {
	Pending   int
	Completed int
	Skipped   int
}

type Reconciler struct {
	journal *Journal
	cleaner Cleaner
	logger  *zap.Logger
}

func NewReconciler(journal *Journal, cleaner Cleaner, logger *zap.Logger) *Reconciler {
	return &Reconciler{journal: journal, cleaner: cleaner, logger: logger}
}

// Run retries every pending cleanup of the session's user. Entries that
// complete are dropped from the journal by the cleaner.
func (r *Reconciler) Run(ctx context.Context, session checkout.Session) (Report, error) {
	entries, err := r.journal.List(ctx, session.UserID)
	if err != nil {
		return Report{}, err
	}

	report := Report{Pending: len(entries)}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		updated, err := r.cleaner.ResumeCleanup(ctx, entry)
		switch {
		case errors.Is(err, checkout.ErrCheckoutInProgress):
			report.Skipped++
		case err != nil:
			r.logger.Warn("pending cleanup still incomplete",
				zap.String("user_id", session.UserID),
				zap.String("order_id", entry.OrderID),
				zap.Error(err))
		case updated.Complete():
			report.Completed++
		}
	}
	return report, nil
}

// RunAll reconciles every user that has pending cleanups.
func (r *Reconciler) RunAll(ctx context.Context) (Report, error) {
	users, err := r.journal.Users(ctx)
	if err != nil {
		return Report{}, err
	}

	var total Report
	for _, userID := range users {
		report, err := r.Run(ctx, checkout.Session{UserID: userID})
		total.Pending += report.Pending
		total.Completed += report.Completed
		total.Skipped += report.Skipped
		if err != nil {
			if ctx.Err() != nil {
				return total, err
			}
			r.logger.Error("reconciliation failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return total, nil
}

// FilterCart drops lines already bought in an order whose local cleanup has
// not completed, so the cart never shows purchased items.
func (r *Reconciler) FilterCart(ctx context.Context, session checkout.Session, lines []domain.CartLine) ([]domain.CartLine, error) {
	entries, err := r.journal.List(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return domain.WithoutKeys(lines, domain.HeldKeys(entries)), nil
}
