// Package config loads and validates tool configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/quayside/quayside/internal/recipe"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Image      ImageConfig      `mapstructure:"image"`
	Provision  ProvisionConfig  `mapstructure:"provision"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Probe      ProbeConfig      `mapstructure:"probe"`
	Release    ReleaseConfig    `mapstructure:"release"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ImageConfig selects the build variant and context.
type ImageConfig struct {
	Variant    string `mapstructure:"variant"`
	ContextDir string `mapstructure:"context_dir"`
	Tag        string `mapstructure:"tag"`
}

// ProvisionConfig controls host dependency provisioning.
type ProvisionConfig struct {
	MarkerPath           string `mapstructure:"marker_path"`
	EnginePath           string `mapstructure:"engine_path"`
	VerifyTimeoutSeconds int    `mapstructure:"verify_timeout_seconds"`
}

// SupervisorConfig governs the worker pool.
type SupervisorConfig struct {
	Workers              int `mapstructure:"workers"`
	ThreadsPerWorker     int `mapstructure:"threads_per_worker"`
	Capacity             int `mapstructure:"capacity"`
	RestartBackoffMs     int `mapstructure:"restart_backoff_ms"`
	StartupWindowSeconds int `mapstructure:"startup_window_seconds"`
	DrainTimeoutSeconds  int `mapstructure:"drain_timeout_seconds"`
}

// ProbeConfig governs readiness probing.
type ProbeConfig struct {
	Target             string `mapstructure:"target"`
	IntervalSeconds    int    `mapstructure:"interval_seconds"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	GracePeriodSeconds int    `mapstructure:"grace_period_seconds"`
	FailureThreshold   int    `mapstructure:"failure_threshold"`
}

// ReleaseConfig controls migrations and service refresh.
type ReleaseConfig struct {
	DSN         string `mapstructure:"dsn"`
	ContainerID string `mapstructure:"container_id"`
}

// StorageConfig selects the artifact store backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for deploy-event notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QUAYSIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("image.variant", "standard")
	v.SetDefault("image.context_dir", ".")
	v.SetDefault("image.tag", "quayside/web:latest")
	v.SetDefault("provision.marker_path", "/var/lib/quayside/provisioned")
	v.SetDefault("provision.verify_timeout_seconds", 30)
	v.SetDefault("supervisor.workers", 2)
	v.SetDefault("supervisor.threads_per_worker", 8)
	v.SetDefault("supervisor.restart_backoff_ms", 1000)
	v.SetDefault("supervisor.startup_window_seconds", 3)
	v.SetDefault("supervisor.drain_timeout_seconds", 10)
	v.SetDefault("probe.interval_seconds", 30)
	v.SetDefault("probe.timeout_seconds", 5)
	v.SetDefault("probe.grace_period_seconds", 40)
	v.SetDefault("probe.failure_threshold", 3)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "releases")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if _, err := recipe.Lookup(c.Image.Variant); err != nil {
		return fmt.Errorf("image.variant: %w", err)
	}
	if c.Supervisor.Workers <= 0 {
		return fmt.Errorf("supervisor.workers must be > 0")
	}
	if c.Supervisor.ThreadsPerWorker <= 0 {
		return fmt.Errorf("supervisor.threads_per_worker must be > 0")
	}
	if c.Probe.FailureThreshold <= 0 {
		return fmt.Errorf("probe.failure_threshold must be > 0")
	}
	switch c.Storage.Backend {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, local, gcs", c.Storage.Backend)
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
	}
	if c.Storage.Backend == "local" && c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir must be set for the local backend")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// ListenAddr is the status server bind address.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// RestartBackoff converts the supervisor backoff knob to a duration.
func (c Config) RestartBackoff() time.Duration {
	return time.Duration(c.Supervisor.RestartBackoffMs) * time.Millisecond
}

// StartupWindow converts the supervisor startup window to a duration.
func (c Config) StartupWindow() time.Duration {
	return time.Duration(c.Supervisor.StartupWindowSeconds) * time.Second
}

// DrainTimeout converts the supervisor drain knob to a duration.
func (c Config) DrainTimeout() time.Duration {
	return time.Duration(c.Supervisor.DrainTimeoutSeconds) * time.Second
}

// ProbePolicy converts probe knobs to durations.
func (c Config) ProbePolicy() (interval, timeout, grace time.Duration) {
	return time.Duration(c.Probe.IntervalSeconds) * time.Second,
		time.Duration(c.Probe.TimeoutSeconds) * time.Second,
		time.Duration(c.Probe.GracePeriodSeconds) * time.Second
}
