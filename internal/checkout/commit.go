package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// run tracks the state machine of one Commit call.
type run struct {
	userID string
	state  domain.CheckoutState
	result *Result
}

func (r *run) transition(to domain.CheckoutState) error {
	if !domain.CanTransitionTo(r.state, to) {
		return fmt.Errorf("%w: %s -> %s", IllegalTransitionError, r.state, to)
	}
	r.state = to
	r.result.State = to
	return nil
}

func (r *run) fail(step domain.CheckoutStep, err error) (*Result, error) {
	r.state = domain.CheckoutStateFailed
	r.result.State = domain.CheckoutStateFailed
	r.result.FailedStep = step
	r.result.Err = err
	return r.result, err
}

// Commit turns the staged lines into an order.
//
// A returned error means the checkout failed and no order was created by
// this call; Result.FailedStep says where. Once the order exists Commit
// never returns an error: Result.State is Done, or ReconcileIncomplete with
// Result.Degradation describing the cleanup left to reconciliation.
func (c *Coordinator) Commit(ctx context.Context, session Session, req CommitRequest) (*Result, error) {
	release, ok := c.guard.tryAcquire(session.UserID)
	if !ok {
		return nil, ErrCheckoutInProgress
	}
	defer release()

	ctx, span := c.tracer.Start(ctx, "checkout.commit")
	span.SetAttributes(attribute.String("user_id", session.UserID))
	defer span.End()

	res, err := c.commit(ctx, session, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.record(session.UserID, res)
	return res, err
}

func (c *Coordinator) commit(ctx context.Context, session Session, req CommitRequest) (*Result, error) {
	log := c.logger.With(zap.String("user_id", session.UserID))
	r := &run{
		userID: session.UserID,
		state:  domain.CheckoutStateStaged,
		result: &Result{State: domain.CheckoutStateStaged},
	}

	staged, err := c.staging.Load(ctx, session.UserID)
	if err != nil {
		return r.fail(domain.StepValidate, err)
	}
	r.result.Staged = staged

	payment, err := c.validate(staged, req)
	if err != nil {
		log.Info("checkout rejected", zap.Error(err))
		return r.fail(domain.StepValidate, err)
	}
	log = log.With(zap.String("staging_id", staged.ID))

	if err := c.checkStock(ctx, staged); err != nil {
		log.Info("checkout rejected, stock changed", zap.Error(err))
		return r.fail(domain.StepValidate, err)
	}

	if err := r.transition(domain.CheckoutStateSubmitting); err != nil {
		return r.fail(domain.StepValidate, err)
	}

	order, existed, err := c.createOrder(ctx, staged, *req.Address, payment)
	if err != nil {
		log.Error("order creation failed", zap.Error(err))
		return r.fail(domain.StepCreateOrder, err)
	}
	if err := r.transition(domain.CheckoutStateOrderCommitted); err != nil {
		return r.fail(domain.StepCreateOrder, err)
	}
	r.result.Order = order
	log = log.With(zap.String("order_id", order.ID))
	if existed {
		log.Info("order already existed for staging id, continuing cleanup")
	} else {
		log.Info("order created", zap.Int64("total_price", order.TotalPrice))
	}

	entry := domain.PendingCleanup{
		OrderID:     order.ID,
		StagingID:   staged.ID,
		UserID:      session.UserID,
		Source:      staged.Source,
		Lines:       staged.Keys(),
		CommittedAt: c.now(),
	}
	// the order exists: cleanup outlives the caller and no later error may
	// surface as a checkout failure
	ctx = context.WithoutCancel(ctx)
	if err := c.journal.Add(ctx, entry); err != nil {
		// the staged snapshot outlives a failed cart cleanup and keeps the order idempotent
		log.Warn("failed to journal pending cleanup", zap.Error(err))
	}
	_ = r.transition(domain.CheckoutStateReconciling)

	entry, degradation := c.cleanup(ctx, entry, existed)
	c.settleJournal(ctx, entry, log)

	if degradation != nil {
		log.Warn("order committed with incomplete cleanup", zap.Error(degradation))
		_ = r.transition(domain.CheckoutStateReconcileIncomplete)
		r.result.Degradation = degradation
		return r.result, nil
	}
	_ = r.transition(domain.CheckoutStateDone)
	log.Info("checkout done")
	return r.result, nil
}

// ResumeCleanup re-runs the post-commit steps of a journaled order without
// creating anything but a missing notification. It returns the updated entry;
// the journal is updated or cleared accordingly.
func (c *Coordinator) ResumeCleanup(ctx context.Context, entry domain.PendingCleanup) (domain.PendingCleanup, error) {
	release, ok := c.guard.tryAcquire(entry.UserID)
	if !ok {
		return entry, ErrCheckoutInProgress
	}
	defer release()

	ctx, span := c.tracer.Start(ctx, "checkout.resume_cleanup")
	span.SetAttributes(attribute.String("user_id", entry.UserID), attribute.String("order_id", entry.OrderID))
	defer span.End()

	log := c.logger.With(zap.String("user_id", entry.UserID), zap.String("order_id", entry.OrderID))
	entry, degradation := c.cleanup(ctx, entry, true)
	c.settleJournal(ctx, entry, log)
	if degradation != nil {
		span.RecordError(degradation)
		return entry, degradation
	}

	if last := c.LastResult(entry.UserID); last != nil && last.State == domain.CheckoutStateReconcileIncomplete &&
		last.Order != nil && last.Order.ID == entry.OrderID {
		last.State = domain.CheckoutStateDone
		last.Degradation = nil
		c.record(entry.UserID, last)
	}
	log.Info("pending cleanup completed")
	return entry, nil
}

// settlePrevious finishes the checkout of the snapshot Begin is about to
// replace when its order already landed, e.g. after a lost create reply.
// Without this the replaced snapshot's lines could be bought twice.
func (c *Coordinator) settlePrevious(ctx context.Context, userID string) error {
	prev, err := c.staging.Load(ctx, userID)
	if err != nil || prev == nil {
		return err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	order, err := c.orders.FindByIdempotencyKey(lookupCtx, userID, prev.ID)
	cancel()
	if err != nil {
		return fmt.Errorf("check previous checkout %s: %w", prev.ID, err)
	}
	if order == nil {
		return nil
	}

	log := c.logger.With(zap.String("user_id", userID), zap.String("staging_id", prev.ID), zap.String("order_id", order.ID))
	pending, err := c.journal.List(ctx, userID)
	if err != nil {
		return fmt.Errorf("read cleanup journal: %w", err)
	}
	entry := domain.PendingCleanup{
		OrderID:     order.ID,
		StagingID:   prev.ID,
		UserID:      userID,
		Source:      prev.Source,
		Lines:       prev.Keys(),
		CommittedAt: order.CreatedAt,
	}
	for _, e := range pending {
		if e.OrderID == order.ID {
			entry = e
			break
		}
	}
	if err := c.journal.Add(ctx, entry); err != nil {
		return fmt.Errorf("journal order %s: %w", order.ID, err)
	}

	entry, degradation := c.cleanup(ctx, entry, true)
	c.settleJournal(ctx, entry, log)

	res := &Result{State: domain.CheckoutStateDone, Order: order, Staged: prev}
	if degradation != nil {
		log.Warn("adopted order with incomplete cleanup", zap.Error(degradation))
		res.State = domain.CheckoutStateReconcileIncomplete
		res.Degradation = degradation
	} else {
		log.Info("adopted order of replaced checkout")
	}
	c.record(userID, res)
	return nil
}

func (c *Coordinator) settleJournal(ctx context.Context, entry domain.PendingCleanup, log *zap.Logger) {
	var err error
	if entry.Complete() {
		err = c.journal.Remove(ctx, entry.UserID, entry.OrderID)
	} else {
		err = c.journal.Update(ctx, entry)
	}
	if err != nil {
		log.Warn("failed to update cleanup journal", zap.Error(err))
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
