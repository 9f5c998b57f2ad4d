package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// ExpireDeliveriesJobArgs is the periodic delivery-request expiry sweep.
type ExpireDeliveriesJobArgs struct{}

func (ExpireDeliveriesJobArgs) Kind() string { return "expire_delivery_requests" }

// ExpireSignalsJobArgs is the periodic pickup-signal expiry sweep.
type ExpireSignalsJobArgs struct{}

func (ExpireSignalsJobArgs) Kind() string { return "expire_pickup_signals" }

// ExpirySweeper is the bulk-expiry surface both sweep workers use. Lazy
// expiry on read handles signals and requests somebody looks at; the sweeps
// converge the ones nobody does.
type ExpirySweeper interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type ExpireDeliveriesWorker struct {
	river.WorkerDefaults[ExpireDeliveriesJobArgs]
	deliveries ExpirySweeper
	logger     *slog.Logger
}

func NewExpireDeliveriesWorker(deliveries ExpirySweeper, logger *slog.Logger) *ExpireDeliveriesWorker {
	return &ExpireDeliveriesWorker{deliveries: deliveries, logger: logger}
}

func (w *ExpireDeliveriesWorker) Work(ctx context.Context, _ *river.Job[ExpireDeliveriesJobArgs]) error {
	n, err := w.deliveries.ExpireOverdue(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Info("expired delivery requests", "count", n)
	}
	return nil
}

type ExpireSignalsWorker struct {
	river.WorkerDefaults[ExpireSignalsJobArgs]
	signals ExpirySweeper
	logger  *slog.Logger
}

func NewExpireSignalsWorker(signals ExpirySweeper, logger *slog.Logger) *ExpireSignalsWorker {
	return &ExpireSignalsWorker{signals: signals, logger: logger}
}

func (w *ExpireSignalsWorker) Work(ctx context.Context, _ *river.Job[ExpireSignalsJobArgs]) error {
	n, err := w.signals.ExpireOverdue(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Info("expired pickup signals", "count", n)
	}
	return nil
}
