package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// sweepBatch bounds how many calls one tick touches.
const sweepBatch = 200

type CallSweeper interface {
	ExpireRinging(ctx context.Context, limit int) (int, error)
	RetrySettlement(ctx context.Context, limit int) (int, error)
}

type BalanceReconciler interface {
	ReconcileDrift(ctx context.Context) (int, error)
}

// Jobs are the server-side backstops: ring timeout, settlement retry, balance drift repair.
type Jobs struct {
	calls    CallSweeper
	balances BalanceReconciler
	log      *slog.Logger
	timeout  time.Duration

	// running guards against a slow tick overlapping the next one.
	running atomic.Bool
}

func NewJobs(calls CallSweeper, balances BalanceReconciler, log *slog.Logger) *Jobs {
	if log == nil {
		log = slog.Default()
	}
	return &Jobs{calls: calls, balances: balances, log: log.With("component", "sweeper"), timeout: 30 * time.Second}
}

// Sweep runs one pass of every job. Errors are logged; the next tick retries.
func (j *Jobs) Sweep() {
	if !j.running.CompareAndSwap(false, true) {
		j.log.Debug("previous sweep still running; skipping")
		return
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if j.calls != nil {
		if n, err := j.calls.ExpireRinging(ctx, sweepBatch); err != nil {
			j.log.Error("expire ringing failed", "err", err)
		} else if n > 0 {
			j.log.Info("ringing calls expired", "count", n)
		}
		if n, err := j.calls.RetrySettlement(ctx, sweepBatch); err != nil {
			j.log.Error("settlement retry failed", "err", err)
		} else if n > 0 {
			j.log.Info("settlements retried", "count", n)
		}
	}
	if j.balances != nil {
		if n, err := j.balances.ReconcileDrift(ctx); err != nil {
			j.log.Error("balance reconcile failed", "err", err)
		} else if n > 0 {
			j.log.Info("balances reconciled", "count", n)
		}
	}
}
