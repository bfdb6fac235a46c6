package jobs

import (
	"context"
	"time"

	"devtel/pkg/logger"
	"devtel/pkg/metrics"
)

// ProductivityJob periodically rolls the shared aggregates into a single
// 0-100 productivity score. Composite scoring runs out of band so the
// per-event workers stay cheap.
type ProductivityJob struct {
	calculator *metrics.Calculator
	storage    *metrics.Storage
	interval   time.Duration
}

// NewProductivityJob creates the rollup job.
func NewProductivityJob(calculator *metrics.Calculator, storage *metrics.Storage, interval time.Duration) *ProductivityJob {
	return &ProductivityJob{
		calculator: calculator,
		storage:    storage,
		interval:   interval,
	}
}

func (j *ProductivityJob) Name() string {
	return "productivity-rollup"
}

func (j *ProductivityJob) Interval() time.Duration {
	return j.interval
}

func (j *ProductivityJob) Run(ctx context.Context) error {
	score, err := j.calculator.ProductivityScore(ctx)
	if err != nil {
		return err
	}

	if err := j.storage.Record(ctx, metrics.Metric{
		Category: "productivity",
		Name:     "productivity_score",
		Value:    score,
	}); err != nil {
		return err
	}

	logger.DebugCtx(ctx, "productivity score recorded: %.1f", score)
	return nil
}
