package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Metric is one derived metric tuple produced by the calculator.
type Metric struct {
	Category string  `json:"category"`
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
}

// Storage persists derived metrics in Redis: a latest-value hash per
// category for fast snapshot reads plus a time-series sorted set per metric
// with category-dependent retention.
type Storage struct {
	client *redis.Client
}

// NewStorage creates a metric storage accessor.
func NewStorage(client *redis.Client) *Storage {
	return &Storage{client: client}
}

func latestKey(category string) string {
	return "metric:latest:" + category
}

func seriesKey(category, name string) string {
	return fmt.Sprintf("metric:%s:%s:ts", category, name)
}

func retentionFor(category string) time.Duration {
	switch category {
	case "realtime":
		return time.Hour
	case "tools":
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Record stores one metric value: latest snapshot plus time-series point.
func (s *Storage) Record(ctx context.Context, m Metric) error {
	now := time.Now()
	score := float64(now.UnixNano()) / float64(time.Second)
	retention := retentionFor(m.Category)
	cutoff := score - retention.Seconds()

	member := fmt.Sprintf("%d:%s", now.UnixNano(), strconv.FormatFloat(m.Value, 'f', -1, 64))

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, latestKey(m.Category), m.Name, strconv.FormatFloat(m.Value, 'f', -1, 64))
	pipe.Expire(ctx, latestKey(m.Category), 24*time.Hour)
	pipe.ZAdd(ctx, seriesKey(m.Category, m.Name), &redis.Z{Score: score, Member: member})
	pipe.ZRemRangeByScore(ctx, seriesKey(m.Category, m.Name), "-inf", strconv.FormatFloat(cutoff, 'f', -1, 64))
	pipe.Expire(ctx, seriesKey(m.Category, m.Name), retention)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record metric %s/%s: %w", m.Category, m.Name, err)
	}
	return nil
}

// Latest returns the latest value of every metric in a category.
func (s *Storage) Latest(ctx context.Context, category string) (map[string]float64, error) {
	values, err := s.client.HGetAll(ctx, latestKey(category)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read latest metrics for %s: %w", category, err)
	}
	result := make(map[string]float64, len(values))
	for name, raw := range values {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			result[name] = v
		}
	}
	return result, nil
}

// Point is one time-series sample.
type Point struct {
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
}

// Series returns a metric's samples since the given time, oldest first.
func (s *Storage) Series(ctx context.Context, category, name string, since time.Time) ([]Point, error) {
	min := strconv.FormatFloat(float64(since.UnixNano())/float64(time.Second), 'f', -1, 64)
	entries, err := s.client.ZRangeByScoreWithScores(ctx, seriesKey(category, name), &redis.ZRangeBy{
		Min: min,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read series %s/%s: %w", category, name, err)
	}

	points := make([]Point, 0, len(entries))
	for _, entry := range entries {
		member, ok := entry.Member.(string)
		if !ok {
			continue
		}
		if v, ok := memberValue(member); ok {
			points = append(points, Point{Timestamp: entry.Score, Value: v})
		}
	}
	return points, nil
}
