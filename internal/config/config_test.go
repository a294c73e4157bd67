package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	t.Setenv("COORDPLANE_ROOT", "")
	t.Setenv("COORDPLANE_TASK_INTERCEPT", "")
	t.Setenv("COORDPLANE_WEBHOOK_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Root != ".coordplane" {
		t.Errorf("expected Root .coordplane, got %s", cfg.Root)
	}
	if cfg.TaskIntercept {
		t.Error("expected TaskIntercept disabled by default")
	}
	if cfg.JobTimeout != 1*time.Hour {
		t.Errorf("expected JobTimeout 1h, got %v", cfg.JobTimeout)
	}
	if cfg.GCThreshold != 120*time.Minute {
		t.Errorf("expected GCThreshold 120m, got %v", cfg.GCThreshold)
	}
	if cfg.WorkerConcurrency != 1 {
		t.Errorf("expected WorkerConcurrency 1, got %d", cfg.WorkerConcurrency)
	}
	if cfg.WorkerPollInterval != 1*time.Second {
		t.Errorf("expected WorkerPollInterval 1s, got %v", cfg.WorkerPollInterval)
	}
	if cfg.WorkerMaxBackoff != 30*time.Second {
		t.Errorf("expected WorkerMaxBackoff 30s, got %v", cfg.WorkerMaxBackoff)
	}
	if cfg.AgentName == "" {
		t.Error("expected AgentName to fall back to hostname")
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	t.Setenv("COORDPLANE_ROOT", "/srv/queue")
	t.Setenv("COORDPLANE_AGENT", "worker-7")
	t.Setenv("COORDPLANE_TASK_INTERCEPT", "true")
	t.Setenv("COORDPLANE_WEBHOOK_URL", "http://hooks.local/notify")
	t.Setenv("COORDPLANE_JOB_COMMAND", "render --channel {channel} --video {video}")
	t.Setenv("COORDPLANE_JOB_TIMEOUT", "10m")
	t.Setenv("COORDPLANE_GC_THRESHOLD", "45m")
	t.Setenv("COORDPLANE_WORKER_CONCURRENCY", "4")
	t.Setenv("COORDPLANE_WORKER_POLL_INTERVAL", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Root != "/srv/queue" {
		t.Errorf("expected Root from env, got %s", cfg.Root)
	}
	if cfg.AgentName != "worker-7" {
		t.Errorf("expected AgentName worker-7, got %s", cfg.AgentName)
	}
	if !cfg.TaskIntercept {
		t.Error("expected TaskIntercept enabled")
	}
	if cfg.WebhookURL != "http://hooks.local/notify" {
		t.Errorf("unexpected WebhookURL: %s", cfg.WebhookURL)
	}
	if cfg.JobTimeout != 10*time.Minute {
		t.Errorf("expected JobTimeout 10m, got %v", cfg.JobTimeout)
	}
	if cfg.GCThreshold != 45*time.Minute {
		t.Errorf("expected GCThreshold 45m, got %v", cfg.GCThreshold)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Errorf("expected WorkerConcurrency 4, got %d", cfg.WorkerConcurrency)
	}
	if cfg.WorkerPollInterval != 250*time.Millisecond {
		t.Errorf("expected WorkerPollInterval 250ms, got %v", cfg.WorkerPollInterval)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad intercept", "COORDPLANE_TASK_INTERCEPT", "maybe"},
		{"bad timeout", "COORDPLANE_JOB_TIMEOUT", "soon"},
		{"bad concurrency", "COORDPLANE_WORKER_CONCURRENCY", "many"},
		{"bad gc threshold", "COORDPLANE_GC_THRESHOLD", "later"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestLayout(t *testing.T) {
	cfg := &Config{Root: "/q"}

	if got := cfg.PendingDir(); got != filepath.Join("/q", "pending") {
		t.Errorf("unexpected PendingDir: %s", got)
	}
	if got := cfg.OrchInboxDir(); got != filepath.Join("/q", "coordination", "orchestrator", "inbox") {
		t.Errorf("unexpected OrchInboxDir: %s", got)
	}
	if got := cfg.EventsPath(); got != filepath.Join("/q", "coordination", "events.jsonl") {
		t.Errorf("unexpected EventsPath: %s", got)
	}
	if got := cfg.JobLogPath("abc"); got != filepath.Join("/q", "logs", "abc.log") {
		t.Errorf("unexpected JobLogPath: %s", got)
	}
}
