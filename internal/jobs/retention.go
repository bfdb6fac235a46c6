package jobs

import (
	"context"
	"time"

	"devtel/pkg/logger"
	"devtel/pkg/store/mysql"
)

// RetentionJob deletes raw traces older than the configured retention
// horizon. Aligned to the hour so every instance sweeps on the same
// schedule.
type RetentionJob struct {
	traces    *mysql.TraceRepository
	traceDays int
}

// NewRetentionJob creates the retention sweeper.
func NewRetentionJob(traces *mysql.TraceRepository, traceDays int) *RetentionJob {
	return &RetentionJob{
		traces:    traces,
		traceDays: traceDays,
	}
}

func (j *RetentionJob) Name() string {
	return "trace-retention"
}

func (j *RetentionJob) Interval() time.Duration {
	return time.Hour
}

func (j *RetentionJob) AlignToInterval() bool {
	return true
}

func (j *RetentionJob) Run(ctx context.Context) error {
	horizon := time.Duration(j.traceDays) * 24 * time.Hour
	deleted, err := j.traces.DeleteOldTraces(ctx, horizon)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logger.InfoCtx(ctx, "retention sweep removed %d traces older than %d days", deleted, j.traceDays)
	}
	return nil
}
