package slowpath

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"devtel/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// PoolOptions configures the slow-path worker pool.
type PoolOptions struct {
	Stream    string
	Group     string
	DLQStream string
	DLQMaxLen int64

	MetricsWorkers int
	BlockTimeout   time.Duration
	ClaimIdle      time.Duration
	MaxRetries     int64
	Priorities     []int

	MonitorInterval time.Duration
	DepthWarn       int64
	DepthCritical   int64
	PendingWarn     int64
}

// QueueStats is a point-in-time snapshot of the CDC stream's health.
type QueueStats struct {
	Depth   int64         `json:"depth"`
	Pending int64         `json:"pending"`
	Lag     time.Duration `json:"lag_ms"`
}

// PoolStats aggregates worker counters with queue health.
type PoolStats struct {
	Running   bool       `json:"running"`
	Workers   int        `json:"workers"`
	Processed uint64     `json:"processed"`
	Failed    uint64     `json:"failed"`
	Queue     QueueStats `json:"queue"`
}

// Pool supervises a fixed set of slow-path workers sharing one consumer
// group, plus a backpressure monitor that surfaces queue depth, pending
// count and consumer lag.
type Pool struct {
	client  *redis.Client
	handler Handler
	opts    PoolOptions

	mu      sync.Mutex
	running bool
	workers []*Worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a worker pool. All workers share the handler, which must
// be safe for concurrent use.
func NewPool(client *redis.Client, handler Handler, opts PoolOptions) *Pool {
	if opts.MetricsWorkers <= 0 {
		opts.MetricsWorkers = 1
	}
	return &Pool{
		client:  client,
		handler: handler,
		opts:    opts,
	}
}

// Start creates the consumer group if needed and launches the workers and
// the monitor. Starting a running pool is a no-op.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	if err := p.ensureGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group %s: %w", p.opts.Group, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.workers = make([]*Worker, 0, p.opts.MetricsWorkers)
	for i := 0; i < p.opts.MetricsWorkers; i++ {
		w := NewWorker(p.client, p.handler, WorkerOptions{
			Stream:       p.opts.Stream,
			Group:        p.opts.Group,
			ConsumerName: fmt.Sprintf("metrics-worker-%d", i),
			DLQStream:    p.opts.DLQStream,
			DLQMaxLen:    p.opts.DLQMaxLen,
			BlockTimeout: p.opts.BlockTimeout,
			ClaimIdle:    p.opts.ClaimIdle,
			MaxRetries:   p.opts.MaxRetries,
			Priorities:   p.opts.Priorities,
		})
		w.Start(runCtx)
		p.workers = append(p.workers, w)
	}

	p.wg.Add(1)
	go p.monitor(runCtx)

	p.running = true
	logger.Infof("slow-path pool started with %d metrics workers", len(p.workers))
	return nil
}

// Stop halts the monitor and all workers, waiting for in-flight messages.
// Stopping a stopped pool is a no-op.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}

	p.cancel()
	for _, w := range p.workers {
		w.Stop()
	}
	p.wg.Wait()

	p.running = false
	logger.Infof("slow-path pool stopped")
}

// Stats returns the current pool snapshot. Queue stats are best-effort and
// zero-valued when Redis is unreachable.
func (p *Pool) Stats(ctx context.Context) PoolStats {
	p.mu.Lock()
	workers := make([]*Worker, len(p.workers))
	copy(workers, p.workers)
	running := p.running
	p.mu.Unlock()

	stats := PoolStats{
		Running: running,
		Workers: len(workers),
	}
	for _, w := range workers {
		stats.Processed += w.Processed()
		stats.Failed += w.Failed()
	}
	stats.Queue = p.queueStats(ctx)
	return stats
}

func (p *Pool) ensureGroup(ctx context.Context) error {
	err := p.client.XGroupCreateMkStream(ctx, p.opts.Stream, p.opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// monitor periodically samples queue health and escalates log severity as
// depth crosses the warn and critical thresholds.
func (p *Pool) monitor(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := p.queueStats(ctx)
			switch {
			case stats.Depth >= p.opts.DepthCritical:
				logger.Errorf("cdc queue critical: depth=%d pending=%d lag=%s",
					stats.Depth, stats.Pending, stats.Lag)
			case stats.Depth >= p.opts.DepthWarn:
				logger.Warnf("cdc queue backlog: depth=%d pending=%d lag=%s",
					stats.Depth, stats.Pending, stats.Lag)
			case stats.Pending >= p.opts.PendingWarn:
				logger.Warnf("cdc pending backlog: depth=%d pending=%d lag=%s",
					stats.Depth, stats.Pending, stats.Lag)
			}
		}
	}
}

func (p *Pool) queueStats(ctx context.Context) QueueStats {
	var stats QueueStats

	depth, err := p.client.XLen(ctx, p.opts.Stream).Result()
	if err != nil {
		if ctx.Err() == nil {
			logger.Warnf("failed to read queue depth: %v", err)
		}
		return stats
	}
	stats.Depth = depth

	pending, err := p.client.XPending(ctx, p.opts.Stream, p.opts.Group).Result()
	if err == nil && pending != nil {
		stats.Pending = pending.Count
		if pending.Count > 0 && pending.Lower != "" {
			stats.Lag = lagFromID(pending.Lower)
		}
	}
	return stats
}

// lagFromID derives consumer lag from the millisecond timestamp prefix of
// the oldest pending entry's stream ID.
func lagFromID(id string) time.Duration {
	parts := strings.SplitN(id, "-", 2)
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0
	}
	lag := time.Since(time.UnixMilli(ms))
	if lag < 0 {
		return 0
	}
	return lag
}
