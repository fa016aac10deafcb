// Package queue is a thin facade over River. River owns durability, leases,
// lease-expiry redelivery and the retry/dead-letter state machine; this
// package pins down the semantics the rest of the codebase relies on:
// transactional enqueue alongside the debit, a distinct unavailable error
// for the submission path, and cron-scheduled singleton jobs.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/robfig/cron/v3"
)

// ErrUnavailable means the queue could not accept the submission. Surfaced
// to the caller as a service-unavailable condition, never conflated with
// task-level failure.
var ErrUnavailable = errors.New("queue unavailable")

// Client wraps a started river.Client.
type Client struct {
	river       *river.Client[pgx.Tx]
	maxAttempts int
	logger      *slog.Logger
}

func NewClient(rc *river.Client[pgx.Tx], maxAttempts int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{river: rc, maxAttempts: maxAttempts, logger: logger}
}

// EnqueueTx inserts a job inside the caller's transaction so the debit and
// the enqueue commit or roll back together. Fail-fast: any insert error is
// reported as ErrUnavailable.
func (c *Client) EnqueueTx(ctx context.Context, tx pgx.Tx, args river.JobArgs) error {
	var opts *river.InsertOpts
	if c.maxAttempts > 0 {
		opts = &river.InsertOpts{MaxAttempts: c.maxAttempts}
	}
	if _, err := c.river.InsertTx(ctx, tx, args, opts); err != nil {
		c.logger.Error("queue insert failed", "kind", args.Kind(), "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Periodic builds a cron-scheduled periodic job. The args' unique options
// are the singleton key: re-registering the same args replaces the schedule
// rather than duplicating the job, and at most one instance is in flight.
func Periodic(cronExpr string, args river.JobArgs) (*river.PeriodicJob, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", cronExpr, err)
	}
	job := river.NewPeriodicJob(
		schedule,
		func() (river.JobArgs, *river.InsertOpts) { return args, nil },
		&river.PeriodicJobOpts{RunOnStart: false},
	)
	return job, nil
}
