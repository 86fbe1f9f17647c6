// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and SEATALLOC_* environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/seatalloc/internal/domain/allocation"
	"github.com/okian/seatalloc/pkg/metrics"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the persistence backend: memory or mongo.
	Store string `koanf:"store"`

	// MongoURI and MongoDatabase configure the mongo backend.
	MongoURI      string `koanf:"mongo_uri"`
	MongoDatabase string `koanf:"mongo_database"`

	// MeritMetric selects how merit is derived: percentage or cgpa.
	MeritMetric string `koanf:"merit_metric"`

	// PassQueueSize bounds the asynchronous pass queue.
	PassQueueSize int `koanf:"pass_queue_size"`

	// PassWorkerCount sets the number of pass workers.
	PassWorkerCount int `koanf:"pass_worker_count"`

	// PassMaxRetries caps re-runs of a pass whose snapshot went stale.
	PassMaxRetries int `koanf:"pass_max_retries"`

	// SeedFile optionally preloads categories from a YAML snapshot.
	SeedFile string `koanf:"seed_file"`

	// TracingEnabled turns on span export; TraceFile names the output ("" is stdout).
	TracingEnabled bool   `koanf:"tracing_enabled"`
	TraceFile      string `koanf:"trace_file"`

	// ServiceName is reported in traces.
	ServiceName string `koanf:"service_name"`

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsNamespace prefixes every metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`

	// MetricsBuckets overrides the latency histogram buckets, e.g. "1,5,25,100".
	MetricsBuckets []float64 `koanf:"metrics_buckets"`

	// MetricsRefresh is how often gauges such as queue length are refreshed.
	MetricsRefresh time.Duration `koanf:"metrics_refresh"`

	// MetricsLabels are constant labels added to every metric (file only).
	MetricsLabels map[string]string `koanf:"metrics_labels"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		Store:            StoreMemory,
		MongoURI:         "mongodb://localhost:27017/?replicaSet=rs0",
		MongoDatabase:    "seatalloc",
		MeritMetric:      string(allocation.MeritPercentage),
		PassQueueSize:    64,
		PassWorkerCount:  2,
		PassMaxRetries:   3,
		ServiceName:      "seatalloc",
		MetricsEnabled:   true,
		MetricsNamespace: "seatalloc",
		MetricsRefresh:   5 * time.Second,
	}
}

// MetricsOptions translates the metrics settings for metrics.Configure.
func (c *Config) MetricsOptions() []metrics.Option {
	return []metrics.Option{
		metrics.WithMetricsEnabled(c.MetricsEnabled),
		metrics.WithNamespace(c.MetricsNamespace),
		metrics.WithHistogramBuckets(c.MetricsBuckets),
		metrics.WithRefreshInterval(c.MetricsRefresh),
		metrics.WithCustomLabels(c.MetricsLabels),
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.Store) {
	case StoreMemory:
	case StoreMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("%w: mongo store needs mongo_uri and mongo_database", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	if _, err := allocation.ParseMeritMetric(c.MeritMetric); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.PassQueueSize < 1 {
		return fmt.Errorf("%w: pass_queue_size must be positive", ErrInvalidConfig)
	}
	if c.PassWorkerCount < 1 {
		return fmt.Errorf("%w: pass_worker_count must be positive", ErrInvalidConfig)
	}
	if c.PassMaxRetries < 0 {
		return fmt.Errorf("%w: pass_max_retries must not be negative", ErrInvalidConfig)
	}
	if err := metrics.ValidateBuckets(c.MetricsBuckets); err != nil {
		return fmt.Errorf("%w: metrics_buckets: %v", ErrInvalidConfig, err)
	}
	if c.MetricsRefresh < 0 {
		return fmt.Errorf("%w: metrics_refresh must not be negative", ErrInvalidConfig)
	}
	return nil
}
