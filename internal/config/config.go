// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

// Package config decodes the trace pipeline's YAML configuration,
// following the teacher's pkg/config/loader.go + pkg/config/env.go
// pattern: gopkg.in/yaml.v3 parses the file into a map, ${VAR} references
// are expanded against the environment, then mitchellh/mapstructure
// decodes the expanded map into Config.
package config

import (
	"fmt"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/auth"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/grouping"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/observability"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/ratelimit"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/storage"
)

// Config is the top-level tracepipeline configuration, decoded from YAML
// (see loader.go).
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Worker        WorkerConfig        `yaml:"worker"`
	Queue         QueueConfig         `yaml:"queue"`
	Auth          AuthConfig          `yaml:"auth"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
	Grading       GradingConfig       `yaml:"grading"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// WorkerConfig tunes the grouping worker's clustering thresholds
// (spec.md §6: min_cluster_size, min_matching_traces, min_segment_words).
type WorkerConfig struct {
	MinClusterSize         int `yaml:"min_cluster_size,omitempty"`
	MinMatchingTraces      int `yaml:"min_matching_traces,omitempty"`
	MinSegmentWords        int `yaml:"min_segment_words,omitempty"`
	DefaultMaxOutputTokens int `yaml:"default_max_output_tokens,omitempty"`
}

// QueueConfig sets the grouping queue's capacity and the serve command's
// HTTP shutdown deadline (worker_shutdown_timeout_ms). PollTimeoutMS is
// decoded and defaulted but not read: the worker waits on the queue
// channel and its context directly.
type QueueConfig struct {
	Capacity            int `yaml:"capacity,omitempty"`
	PollTimeoutMS       int `yaml:"worker_poll_timeout_ms,omitempty"`
	ShutdownTimeoutMS   int `yaml:"worker_shutdown_timeout_ms,omitempty"`
}

// AuthConfig controls bearer-JWT validation on the ingestion endpoints
// (§pkg/tracepipeline/auth). Disabled (the zero value) means every
// request is accepted unauthenticated - suitable for local development
// only.
type AuthConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	Secret   string `yaml:"secret,omitempty"`
	Issuer   string `yaml:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty"`
}

// RateLimitConfig controls per-project request throttling on the
// ingestion endpoints.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled,omitempty"`
	RequestsPerMinute int  `yaml:"requests_per_minute,omitempty"`
}

// ObservabilityConfig controls OpenTelemetry tracing around ingestion,
// grouping, and auto-grading dispatch.
type ObservabilityConfig struct {
	TracingEnabled bool    `yaml:"tracing_enabled,omitempty"`
	ServiceName    string  `yaml:"service_name,omitempty"`
	SamplingRate   float64 `yaml:"sampling_rate,omitempty"`
}

// GradingConfig holds a process-wide default sampling percentage. Validate
// range-checks it and AutogradeSamplingRate returns it; the ingestion path
// does not apply it. Sampling always uses the per-task EvaluationConfig's
// percentage, and a trace whose Task has no EvaluationConfig is not graded.
type GradingConfig struct {
	DefaultTraceEvaluationPercentage float64 `yaml:"default_trace_evaluation_percentage,omitempty"`
}

// SetDefaults fills in every unset field with the documented default
// (spec.md §6).
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	c.Database.SetDefaults()
	if c.Worker.MinClusterSize == 0 {
		c.Worker.MinClusterSize = 2
	}
	if c.Worker.MinMatchingTraces == 0 {
		c.Worker.MinMatchingTraces = 2
	}
	if c.Worker.MinSegmentWords == 0 {
		c.Worker.MinSegmentWords = 3
	}
	if c.Worker.DefaultMaxOutputTokens == 0 {
		c.Worker.DefaultMaxOutputTokens = 1000
	}
	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = grouping.DefaultCapacity
	}
	if c.Queue.PollTimeoutMS == 0 {
		c.Queue.PollTimeoutMS = 1000
	}
	if c.Queue.ShutdownTimeoutMS == 0 {
		c.Queue.ShutdownTimeoutMS = 5000
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "tracepipeline"
	}
	if c.Observability.SamplingRate == 0 && c.Observability.TracingEnabled {
		c.Observability.SamplingRate = 1.0
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 600
	}
}

// Validate rejects a Config with settings the rest of the pipeline could
// not act on.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.Worker.MinClusterSize < 1 {
		return fmt.Errorf("worker.min_cluster_size must be >= 1")
	}
	if c.Worker.MinMatchingTraces < 1 {
		return fmt.Errorf("worker.min_matching_traces must be >= 1")
	}
	if c.Worker.MinSegmentWords < 1 {
		return fmt.Errorf("worker.min_segment_words must be >= 1")
	}
	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue.capacity must be >= 1")
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required when auth.enabled is true")
	}
	if c.Observability.SamplingRate < 0 || c.Observability.SamplingRate > 1 {
		return fmt.Errorf("observability.sampling_rate must be within [0, 1]")
	}
	if c.Grading.DefaultTraceEvaluationPercentage < 0 || c.Grading.DefaultTraceEvaluationPercentage > 100 {
		return fmt.Errorf("grading.default_trace_evaluation_percentage must be within [0, 100]")
	}
	return nil
}

// StorageConfig converts the decoded DatabaseConfig into the shape
// pkg/tracepipeline/storage expects.
func (c *Config) StorageConfig() *storage.Config {
	return &storage.Config{
		Driver:   c.Database.Driver,
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		Database: c.Database.Database,
		Username: c.Database.Username,
		Password: c.Database.Password,
		SSLMode:  c.Database.SSLMode,
		MaxConns: c.Database.MaxConns,
		MaxIdle:  c.Database.MaxIdle,
	}
}

// GroupingConfig converts the decoded WorkerConfig into the shape
// pkg/tracepipeline/grouping expects.
func (c *Config) GroupingConfig() grouping.Config {
	return grouping.Config{
		MinClusterSize:         c.Worker.MinClusterSize,
		MinMatchingTraces:      c.Worker.MinMatchingTraces,
		MinSegmentWords:        c.Worker.MinSegmentWords,
		DefaultMaxOutputTokens: c.Worker.DefaultMaxOutputTokens,
	}
}

// AuthValidator builds a JWT validator from AuthConfig, or nil if auth is
// disabled.
func (c *Config) AuthValidator() *auth.Validator {
	if !c.Auth.Enabled {
		return nil
	}
	return auth.NewValidator([]byte(c.Auth.Secret), c.Auth.Issuer, c.Auth.Audience)
}

// RateLimiter builds an in-memory per-project rate limiter from
// RateLimitConfig, or nil if disabled.
func (c *Config) RateLimiter() (ratelimit.RateLimiter, error) {
	if !c.RateLimit.Enabled {
		return nil, nil
	}
	return ratelimit.NewRateLimiter(&ratelimit.Config{
		Enabled: true,
		Limits: []ratelimit.LimitRule{
			{Type: ratelimit.LimitTypeCount, Window: ratelimit.WindowMinute, Limit: int64(c.RateLimit.RequestsPerMinute)},
		},
	}, ratelimit.NewMemoryStore())
}

// ObservabilitySettings converts the decoded ObservabilityConfig into the
// shape pkg/tracepipeline/observability expects.
func (c *Config) ObservabilitySettings() observability.Config {
	return observability.Config{
		TracingEnabled: c.Observability.TracingEnabled,
		ServiceName:    c.Observability.ServiceName,
		SamplingRate:   c.Observability.SamplingRate,
	}
}

// AutogradeSamplingRate returns grading.default_trace_evaluation_percentage.
// autograde.Dispatcher does not consult it; it samples with each
// EvaluationConfig's own TraceEvaluationPercentage.
func (c *Config) AutogradeSamplingRate() float64 {
	return c.Grading.DefaultTraceEvaluationPercentage
}
