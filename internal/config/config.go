// Package config handles environment variable loading for the queue root,
// worker tuning, and notification settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the application.
// It is constructed once and passed explicitly to every component;
// nothing in this repository reads the environment after Load returns.
type Config struct {
	// Root is the queue root directory shared by every component.
	Root string

	// AgentName attributes writes (locks, events, results) to a caller.
	// It is advisory and used only for audit fields.
	AgentName string

	// TaskIntercept gates whether the task queue intercepts calls at all.
	// When false, Resolve reports pass-through and the caller does the
	// work itself.
	TaskIntercept bool

	// WebhookURL receives job queue notifications. Empty disables them.
	WebhookURL string

	// JobCommand is the subprocess command template for job execution.
	// Occurrences of {channel} and {video} are substituted per job.
	JobCommand string

	// JobTimeout is the wall-clock limit for a single job subprocess.
	JobTimeout time.Duration

	// GCThreshold is how long a job may sit in running before a GC pass
	// forces it to failed.
	GCThreshold time.Duration

	// Worker pool tuning.
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerMaxBackoff   time.Duration

	// MetricsPort is the worker daemon's Prometheus endpoint port.
	MetricsPort int

	// OTELEndpoint is the OTLP trace collector address.
	OTELEndpoint string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	root := os.Getenv("COORDPLANE_ROOT")
	if root == "" {
		root = ".coordplane"
	}

	agent := os.Getenv("COORDPLANE_AGENT")
	if agent == "" {
		if host, err := os.Hostname(); err == nil {
			agent = host
		} else {
			agent = "unknown"
		}
	}

	intercept := false
	if v := os.Getenv("COORDPLANE_TASK_INTERCEPT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid COORDPLANE_TASK_INTERCEPT: %w", err)
		}
		intercept = b
	}

	jobTimeout := 1 * time.Hour
	if v := os.Getenv("COORDPLANE_JOB_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid COORDPLANE_JOB_TIMEOUT: %w", err)
		}
		jobTimeout = d
	}

	gcThreshold := 120 * time.Minute
	if v := os.Getenv("COORDPLANE_GC_THRESHOLD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid COORDPLANE_GC_THRESHOLD: %w", err)
		}
		gcThreshold = d
	}

	concurrency := 1
	if v := os.Getenv("COORDPLANE_WORKER_CONCURRENCY"); v != "" {
		c, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid COORDPLANE_WORKER_CONCURRENCY: %w", err)
		}
		concurrency = c
	}

	pollInterval := 1 * time.Second
	if v := os.Getenv("COORDPLANE_WORKER_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid COORDPLANE_WORKER_POLL_INTERVAL: %w", err)
		}
		pollInterval = d
	}

	maxBackoff := 30 * time.Second
	if v := os.Getenv("COORDPLANE_WORKER_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid COORDPLANE_WORKER_MAX_BACKOFF: %w", err)
		}
		maxBackoff = d
	}

	metricsPort := 6161
	if v := os.Getenv("COORDPLANE_METRICS_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid COORDPLANE_METRICS_PORT: %w", err)
		}
		metricsPort = p
	}

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}

	return &Config{
		Root:               root,
		AgentName:          agent,
		TaskIntercept:      intercept,
		WebhookURL:         os.Getenv("COORDPLANE_WEBHOOK_URL"),
		JobCommand:         os.Getenv("COORDPLANE_JOB_COMMAND"),
		JobTimeout:         jobTimeout,
		GCThreshold:        gcThreshold,
		WorkerConcurrency:  concurrency,
		WorkerPollInterval: pollInterval,
		WorkerMaxBackoff:   maxBackoff,
		MetricsPort:        metricsPort,
		OTELEndpoint:       otelEndpoint,
	}, nil
}
