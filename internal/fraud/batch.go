package fraud

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	batchRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reviewflow",
		Subsystem: "fraud",
		Name:      "batch_runs_total",
		Help:      "Total batch fraud detection runs.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reviewflow",
		Subsystem: "fraud",
		Name:      "batch_duration_seconds",
		Help:      "Duration of batch fraud detection runs.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(batchRunsTotal, batchDuration)
}

// Runner periodically recomputes fraud scores for a sample of active
// users. Users are scored concurrently by a bounded worker pool; each
// user's computation touches only that user's rows, so no cross-user
// ordering is needed.
type Runner struct {
	engine   *Engine
	store    Store
	interval time.Duration
	limit    int
	workers  int
	logger   *slog.Logger
	stop     chan struct{}
}

// NewRunner creates a batch fraud detection runner.
// interval is typically 1 hour in production, a few seconds in demo mode.
func NewRunner(engine *Engine, store Store, interval time.Duration, limit, workers int, logger *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		engine:   engine,
		store:    store,
		interval: interval,
		limit:    limit,
		workers:  workers,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the batch loop. Call in a goroutine.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Warn("batch fraud run failed", "error", err)
			}
		}
	}
}

// Stop signals the runner to stop.
func (r *Runner) Stop() {
	select {
	case r.stop <- struct{}{}:
	default:
	}
}

// RunOnce samples active users and recomputes their scores, returning
// the number of users processed. A per-user failure is logged and does
// not abort the run.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	started := time.Now()

	userIDs, err := r.store.ActiveUserIDs(ctx, r.limit)
	if err != nil {
		return 0, err
	}

	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
	for _, userID := range userIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			r.engine.CalculateScore(ctx, id)
		}(userID)
	}
	wg.Wait()

	batchRunsTotal.Inc()
	batchDuration.Observe(time.Since(started).Seconds())
	r.logger.Info("batch fraud run completed",
		"users", len(userIDs),
		"duration", time.Since(started))
	return len(userIDs), nil
}
