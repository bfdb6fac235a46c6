package config

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestValidateAndApplyDefaults_EmptyConfig(t *testing.T) {
	var cfg Config
	validateAndApplyDefaults(&cfg)

	assert.Equal(t, defaultBatchSize, cfg.FastPath.BatchSize)
	assert.Equal(t, defaultBatchTimeoutMs, cfg.FastPath.BatchTimeout)
	assert.Equal(t, defaultMetricsWorkers, cfg.SlowPath.MetricsWorkers)
	assert.Equal(t, int64(defaultDepthWarn), cfg.SlowPath.DepthWarn)
	assert.Equal(t, int64(defaultEventsMaxLen), cfg.Streams.EventsMaxLen)
	assert.Equal(t, defaultTraceDays, cfg.Retention.TraceDays)
}

func TestValidateAndApplyDefaults_KeepsValidValues(t *testing.T) {
	cfg := Config{}
	cfg.FastPath.BatchSize = 50
	cfg.FastPath.BatchTimeout = 250
	cfg.SlowPath.MetricsWorkers = 8

	validateAndApplyDefaults(&cfg)

	assert.Equal(t, 50, cfg.FastPath.BatchSize)
	assert.Equal(t, 250, cfg.FastPath.BatchTimeout)
	assert.Equal(t, 8, cfg.SlowPath.MetricsWorkers)
}

func TestValidateAndApplyDefaults_DepthCriticalAboveWarn(t *testing.T) {
	cfg := Config{}
	cfg.SlowPath.DepthWarn = 20000
	cfg.SlowPath.DepthCritical = 100 // below warn, must be corrected

	validateAndApplyDefaults(&cfg)

	assert.Greater(t, cfg.SlowPath.DepthCritical, cfg.SlowPath.DepthWarn)
}

func TestDurationHelpers(t *testing.T) {
	fp := FastPathConfig{BatchTimeout: 100, ClaimIdleMs: 300000}
	assert.Equal(t, 100*time.Millisecond, fp.BatchTimeoutDuration())
	assert.Equal(t, 5*time.Minute, fp.ClaimIdleDuration())

	sp := SlowPathConfig{ClaimIdleMs: 60000}
	assert.Equal(t, time.Minute, sp.ClaimIdleDuration())
}

// Property: invalid numeric settings always fall back to usable defaults so
// a bad config line degrades instead of breaking the pipeline.
func TestProperty_InvalidValuesFallBackToDefaults(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("non-positive fast-path values fall back", prop.ForAll(
		func(batchSize, batchTimeout, blockMs int) bool {
			cfg := Config{}
			cfg.FastPath.BatchSize = batchSize
			cfg.FastPath.BatchTimeout = batchTimeout
			cfg.FastPath.BlockMs = blockMs

			validateAndApplyDefaults(&cfg)

			return cfg.FastPath.BatchSize == defaultBatchSize &&
				cfg.FastPath.BatchTimeout == defaultBatchTimeoutMs &&
				cfg.FastPath.BlockMs == defaultBlockMs
		},
		gen.IntRange(-1000, 0),
		gen.IntRange(-1000, 0),
		gen.IntRange(-1000, 0),
	))

	properties.Property("defaults always yield an operable config", prop.ForAll(
		func(workers int, depthWarn int64) bool {
			cfg := Config{}
			cfg.SlowPath.MetricsWorkers = workers
			cfg.SlowPath.DepthWarn = depthWarn

			validateAndApplyDefaults(&cfg)

			return cfg.SlowPath.MetricsWorkers > 0 &&
				cfg.SlowPath.DepthWarn > 0 &&
				cfg.SlowPath.DepthCritical > cfg.SlowPath.DepthWarn
		},
		gen.IntRange(-10, 10),
		gen.Int64Range(-10000, 10000),
	))

	properties.TestingRun(t)
}
