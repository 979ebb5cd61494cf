package platform

import (
	"database/sql"

	"github.com/txn2/pipeline-relay/pkg/metrics"
)

// Options configures the platform.
type Options struct {
	// Config is the relay configuration.
	Config *Config

	// DB overrides the connection opened from Config.Database. The caller
	// keeps ownership; the platform does not close it.
	DB *sql.DB

	// Metrics overrides the metrics registry.
	Metrics *metrics.Metrics
}

// Option is a functional option for configuring the platform.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithDB sets the database connection.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}
