// Package maintenance holds the recurring background jobs.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
)

// FeedStatsArgs schedules the trending-feed refresh. Unique-by-args keeps
// the job a singleton: a tick that fires while the previous run is still
// queued or working inserts nothing.
type FeedStatsArgs struct{}

func (FeedStatsArgs) Kind() string { return "feed_stats_refresh" }

func (FeedStatsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 1,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// FeedStatsWorker recomputes the trending_posts materialized view. A failed
// refresh just leaves the previous snapshot in place until the next tick.
type FeedStatsWorker struct {
	river.WorkerDefaults[FeedStatsArgs]
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewFeedStatsWorker(pool *pgxpool.Pool, logger *slog.Logger) *FeedStatsWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedStatsWorker{pool: pool, logger: logger}
}

func (w *FeedStatsWorker) Timeout(*river.Job[FeedStatsArgs]) time.Duration {
	return 2 * time.Minute
}

func (w *FeedStatsWorker) Work(ctx context.Context, _ *river.Job[FeedStatsArgs]) error {
	started := time.Now()
	if _, err := w.pool.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY trending_posts`); err != nil {
		return fmt.Errorf("refresh trending_posts: %w", err)
	}
	w.logger.Info("trending feed refreshed", "duration", time.Since(started))
	return nil
}
