package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Streams   StreamsConfig   `yaml:"streams"`
	FastPath  FastPathConfig  `yaml:"fast_path"`
	SlowPath  SlowPathConfig  `yaml:"slow_path"`
	Queue     QueueConfig     `yaml:"queue"`
	Retention RetentionConfig `yaml:"retention"`
	Logger    LoggerConfig    `yaml:"logger"`
}

// ServerConfig HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// StreamsConfig stream size bounds
type StreamsConfig struct {
	EventsMaxLen int64 `yaml:"events_max_len"` // MAXLEN ~ on the ingest stream
	CDCMaxLen    int64 `yaml:"cdc_max_len"`    // MAXLEN ~ on the CDC stream
	DLQMaxLen    int64 `yaml:"dlq_max_len"`    // MAXLEN ~ on the dead-letter stream
}

// FastPathConfig fast-path consumer configuration
type FastPathConfig struct {
	ConsumerName string `yaml:"consumer_name"` // unique per instance
	BatchSize    int    `yaml:"batch_size"`    // flush when batch reaches this count
	BatchTimeout int    `yaml:"batch_timeout"` // flush after this many milliseconds
	BlockMs      int    `yaml:"block_ms"`      // XREADGROUP blocking timeout
	MaxRetries   int    `yaml:"max_retries"`   // deliveries before dead-lettering
	ClaimIdleMs  int    `yaml:"claim_idle_ms"` // pending-entry idle time before reclaim
}

// SlowPathConfig slow-path worker pool configuration
type SlowPathConfig struct {
	MetricsWorkers int   `yaml:"metrics_workers"` // number of metrics worker instances
	BlockMs        int   `yaml:"block_ms"`        // XREADGROUP blocking timeout
	MaxRetries     int   `yaml:"max_retries"`     // deliveries before dead-lettering
	ClaimIdleMs    int   `yaml:"claim_idle_ms"`   // pending-entry idle time before reclaim
	MonitorSec     int   `yaml:"monitor_sec"`     // backpressure sampling interval
	DepthWarn      int64 `yaml:"depth_warn"`      // queue depth warning threshold
	DepthCritical  int64 `yaml:"depth_critical"`  // queue depth critical threshold
	PendingWarn    int64 `yaml:"pending_warn"`    // unacknowledged count warning threshold
}

// QueueConfig asynq replay queue configuration
type QueueConfig struct {
	Concurrency int `yaml:"concurrency"` // replay processing concurrency
	MaxRetry    int `yaml:"max_retry"`   // maximum retry count per replay task
}

// RetentionConfig durable log retention
type RetentionConfig struct {
	TraceDays int `yaml:"trace_days"` // raw traces older than this are deleted
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// BatchTimeoutDuration returns the batch timeout as a duration.
func (c FastPathConfig) BatchTimeoutDuration() time.Duration {
	return time.Duration(c.BatchTimeout) * time.Millisecond
}

// ClaimIdleDuration returns the reclaim idle threshold as a duration.
func (c FastPathConfig) ClaimIdleDuration() time.Duration {
	return time.Duration(c.ClaimIdleMs) * time.Millisecond
}

// ClaimIdleDuration returns the reclaim idle threshold as a duration.
func (c SlowPathConfig) ClaimIdleDuration() time.Duration {
	return time.Duration(c.ClaimIdleMs) * time.Millisecond
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	validateAndApplyDefaults(&cfg)
	GlobalConfig = &cfg
	return nil
}

// Defaults applied when a value is missing or invalid. A bad config line
// falls back instead of failing startup.
const (
	defaultBatchSize      = 100
	defaultBatchTimeoutMs = 100
	defaultBlockMs        = 1000
	defaultMaxRetries     = 3
	defaultClaimIdleMs    = 300000 // 5 minutes
	defaultMetricsWorkers = 2
	defaultMonitorSec     = 5
	defaultDepthWarn      = 10000
	defaultDepthCritical  = 50000
	defaultPendingWarn    = 1000
	defaultEventsMaxLen   = 100000
	defaultCDCMaxLen      = 100000
	defaultDLQMaxLen      = 1000
	defaultTraceDays      = 90
)

func validateAndApplyDefaults(cfg *Config) {
	if cfg.FastPath.BatchSize <= 0 {
		cfg.FastPath.BatchSize = defaultBatchSize
	}
	if cfg.FastPath.BatchTimeout <= 0 {
		cfg.FastPath.BatchTimeout = defaultBatchTimeoutMs
	}
	if cfg.FastPath.BlockMs <= 0 {
		cfg.FastPath.BlockMs = defaultBlockMs
	}
	if cfg.FastPath.MaxRetries <= 0 {
		cfg.FastPath.MaxRetries = defaultMaxRetries
	}
	if cfg.FastPath.ClaimIdleMs <= 0 {
		cfg.FastPath.ClaimIdleMs = defaultClaimIdleMs
	}
	if cfg.SlowPath.MetricsWorkers <= 0 {
		cfg.SlowPath.MetricsWorkers = defaultMetricsWorkers
	}
	if cfg.SlowPath.BlockMs <= 0 {
		cfg.SlowPath.BlockMs = defaultBlockMs
	}
	if cfg.SlowPath.MaxRetries <= 0 {
		cfg.SlowPath.MaxRetries = defaultMaxRetries
	}
	if cfg.SlowPath.ClaimIdleMs <= 0 {
		cfg.SlowPath.ClaimIdleMs = defaultClaimIdleMs
	}
	if cfg.SlowPath.MonitorSec <= 0 {
		cfg.SlowPath.MonitorSec = defaultMonitorSec
	}
	if cfg.SlowPath.DepthWarn <= 0 {
		cfg.SlowPath.DepthWarn = defaultDepthWarn
	}
	if cfg.SlowPath.DepthCritical <= cfg.SlowPath.DepthWarn {
		cfg.SlowPath.DepthCritical = cfg.SlowPath.DepthWarn * 5
	}
	if cfg.SlowPath.PendingWarn <= 0 {
		cfg.SlowPath.PendingWarn = defaultPendingWarn
	}
	if cfg.Streams.EventsMaxLen <= 0 {
		cfg.Streams.EventsMaxLen = defaultEventsMaxLen
	}
	if cfg.Streams.CDCMaxLen <= 0 {
		cfg.Streams.CDCMaxLen = defaultCDCMaxLen
	}
	if cfg.Streams.DLQMaxLen <= 0 {
		cfg.Streams.DLQMaxLen = defaultDLQMaxLen
	}
	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = 5
	}
	if cfg.Queue.MaxRetry <= 0 {
		cfg.Queue.MaxRetry = defaultMaxRetries
	}
	if cfg.Retention.TraceDays <= 0 {
		cfg.Retention.TraceDays = defaultTraceDays
	}
}
