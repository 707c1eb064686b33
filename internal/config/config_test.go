package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
image:
  variant: render
  context_dir: /srv/app
  tag: quayside/web:v3
provision:
  engine_path: /root/.cache/ms-playwright
  verify_timeout_seconds: 60
supervisor:
  workers: 4
  threads_per_worker: 4
  restart_backoff_ms: 500
  startup_window_seconds: 5
  drain_timeout_seconds: 20
probe:
  target: http://127.0.0.1:10000/health
  interval_seconds: 10
  timeout_seconds: 3
  grace_period_seconds: 30
  failure_threshold: 5
release:
  dsn: postgres://localhost/app
  container_id: quayside-web
storage:
  backend: local
  base_dir: /var/lib/quayside/artifacts
pubsub:
  enabled: true
  project_id: my-project
  topic_name: deploy-events
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Image.Variant != "render" || cfg.Image.Tag != "quayside/web:v3" {
		t.Fatalf("expected image overrides to apply: %+v", cfg.Image)
	}
	if cfg.Supervisor.Workers != 4 || cfg.Supervisor.ThreadsPerWorker != 4 {
		t.Fatalf("expected supervisor overrides to apply: %+v", cfg.Supervisor)
	}
	if cfg.Probe.Target != "http://127.0.0.1:10000/health" {
		t.Fatalf("expected probe target override: %+v", cfg.Probe)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.BaseDir != "/var/lib/quayside/artifacts" {
		t.Fatalf("expected local storage backend: %+v", cfg.Storage)
	}
	if !cfg.PubSub.Enabled || cfg.PubSub.TopicName != "deploy-events" {
		t.Fatalf("expected pubsub overrides: %+v", cfg.PubSub)
	}
	if got := cfg.RestartBackoff(); got != 500*time.Millisecond {
		t.Fatalf("expected restart backoff 500ms, got %v", got)
	}
	if got := cfg.DrainTimeout(); got != 20*time.Second {
		t.Fatalf("expected drain timeout 20s, got %v", got)
	}
	interval, timeout, grace := cfg.ProbePolicy()
	if interval != 10*time.Second || timeout != 3*time.Second || grace != 30*time.Second {
		t.Fatalf("expected probe durations 10s/3s/30s, got %v/%v/%v", interval, timeout, grace)
	}
	if got := cfg.ListenAddr(); got != ":9090" {
		t.Fatalf("expected listen addr :9090, got %q", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Image.Variant != "standard" {
		t.Fatalf("expected default variant standard, got %q", cfg.Image.Variant)
	}
	if cfg.Supervisor.Workers != 2 || cfg.Supervisor.ThreadsPerWorker != 8 {
		t.Fatalf("expected default worker pool 2x8, got %+v", cfg.Supervisor)
	}
	if cfg.Probe.FailureThreshold != 3 {
		t.Fatalf("expected default failure threshold 3, got %d", cfg.Probe.FailureThreshold)
	}
	if cfg.Storage.Backend != "memory" {
		t.Fatalf("expected default storage backend memory, got %q", cfg.Storage.Backend)
	}
	if !cfg.Logging.Development {
		t.Fatalf("expected development logging by default")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "unknown variant",
			mutate:  func(c *Config) { c.Image.Variant = "mystery" },
			wantMsg: "image.variant",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Supervisor.Workers = 0 },
			wantMsg: "supervisor.workers",
		},
		{
			name:    "zero threshold",
			mutate:  func(c *Config) { c.Probe.FailureThreshold = 0 },
			wantMsg: "probe.failure_threshold",
		},
		{
			name:    "unknown storage backend",
			mutate:  func(c *Config) { c.Storage.Backend = "tape" },
			wantMsg: "storage.backend",
		},
		{
			name:    "gcs without bucket",
			mutate:  func(c *Config) { c.Storage.Backend = "gcs" },
			wantMsg: "storage.gcs_bucket",
		},
		{
			name: "pubsub without topic",
			mutate: func(c *Config) {
				c.PubSub.Enabled = true
				c.PubSub.ProjectID = "p"
			},
			wantMsg: "pubsub",
		},
		{
			name:    "auth without key",
			mutate:  func(c *Config) { c.Auth.Enabled = true },
			wantMsg: "auth.api_key",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("expected error mentioning %q, got %v", tc.wantMsg, err)
			}
		})
	}
}
