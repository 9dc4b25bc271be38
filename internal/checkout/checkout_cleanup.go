package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/cartsync/internal/cartstore"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// cleanup runs the post-commit steps in order. Each step runs even when an
// earlier one failed. Notification failures are logged and never degrade the
// result; mirror and local failures do.
func (c *Coordinator) cleanup(ctx context.Context, entry domain.PendingCleanup, checkNotification bool) (domain.PendingCleanup, *PostCommitDegradation) {
	if !entry.NotificationDone {
		entry.NotificationDone = c.notify(ctx, entry, checkNotification)
	}

	var (
		steps []domain.CheckoutStep
		errs  []error
	)
	if !entry.MirrorDone {
		if err := c.cleanMirror(ctx, entry); err != nil {
			steps = append(steps, domain.StepMirror)
			errs = append(errs, err)
		} else {
			entry.MirrorDone = true
		}
	}
	if !entry.LocalDone {
		if err := c.cleanLocal(ctx, entry); err != nil {
			steps = append(steps, domain.StepLocal)
			errs = append(errs, err)
		} else {
			entry.LocalDone = true
		}
	}

	if len(steps) == 0 {
		return entry, nil
	}
	return entry, &PostCommitDegradation{OrderID: entry.OrderID, Steps: steps, Err: errors.Join(errs...)}
}

// notify writes the order notification, trying at most notificationAttempts
// times. With checkExisting it first looks for one written earlier.
func (c *Coordinator) notify(ctx context.Context, entry domain.PendingCleanup, checkExisting bool) bool {
	ctx, span := c.tracer.Start(ctx, "checkout.create_notification")
	defer span.End()
	log := c.logger.With(zap.String("user_id", entry.UserID), zap.String("order_id", entry.OrderID))

	if checkExisting {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		existing, err := c.notifications.FindByOrder(callCtx, entry.UserID, entry.OrderID)
		cancel()
		if err != nil {
			log.Warn("notification lookup failed", zap.Error(err))
			span.RecordError(err)
			return false
		}
		if existing != nil {
			return true
		}
	}

	order := &domain.Order{ID: entry.OrderID, UserID: entry.UserID}
	var lastErr error
	for attempt := 1; attempt <= c.notificationAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		_, err := c.notifications.Create(callCtx, domain.NewOrderNotification(order, c.now()))
		cancel()
		if err == nil {
			return true
		}
		lastErr = err
		log.Warn("notification write failed",
			zap.Int("attempt", attempt), zap.Bool("timeout", isTimeout(err)), zap.Error(err))
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "notification not written")
	log.Error("giving up on order notification", zap.Error(lastErr))
	return false
}

func (c *Coordinator) cleanMirror(ctx context.Context, entry domain.PendingCleanup) error {
	// buy-now lines never entered the cart or its mirror
	if entry.Source == domain.SourceBuyNow {
		return nil
	}
	ctx, span := c.tracer.Start(ctx, "checkout.mirror_cleanup")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	if err := c.mirror.DeleteLines(callCtx, entry.UserID, entry.Lines); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mirror cleanup failed")
		return fmt.Errorf("mirror cleanup: %w", err)
	}
	return nil
}

// cleanLocal removes purchased lines from the cart and then discards the
// staged snapshot, unless a newer checkout has been staged since.
func (c *Coordinator) cleanLocal(ctx context.Context, entry domain.PendingCleanup) error {
	ctx, span := c.tracer.Start(ctx, "checkout.local_cleanup")
	defer span.End()

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, "local cleanup failed")
		return fmt.Errorf("local cleanup: %w", err)
	}

	if entry.Source != domain.SourceBuyNow {
		err := c.carts.With(ctx, entry.UserID, func(s *cartstore.Store) error {
			return s.RemoveMany(ctx, entry.Lines)
		})
		if err != nil {
			// the snapshot stays behind as a record of what was bought
			return fail(err)
		}
	}

	staged, err := c.staging.Load(ctx, entry.UserID)
	if err != nil {
		return fail(err)
	}
	if staged != nil && staged.ID == entry.StagingID {
		if err := c.staging.Discard(ctx, entry.UserID); err != nil {
			return fail(err)
		}
	}
	return nil
}
