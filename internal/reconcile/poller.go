package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Poller drives the reconciler on a fixed interval until ctx is cancelled.
type Poller struct {
	reconciler *Reconciler
	tick       time.Duration
	logger     *zap.Logger
}

func NewPoller(reconciler *Reconciler, tick time.Duration, logger *zap.Logger) *Poller {
	return &Poller{reconciler: reconciler, tick: tick, logger: logger}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	p.runOnce(ctx)
	for {
		select {
		case <-ticker.C:
			p.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	report, err := p.reconciler.RunAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("reconciliation pass failed", zap.Error(err))
		}
		return
	}
	if report.Pending > 0 {
		p.logger.Info("reconciliation pass",
			zap.Int("pending", report.Pending),
			zap.Int("completed", report.Completed),
			zap.Int("skipped", report.Skipped))
	}
}
