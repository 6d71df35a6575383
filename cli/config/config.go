package config

import (
	"fmt"
	"time"
)

// Config represents a netlog.yaml configuration file consumed by
// cmd/netlogd. All values are optional and act as defaults for daemon
// flags; CLI flags always override config values.
type Config struct {
	FinalLogPath   string       `yaml:"final_log_path"`
	MaxTotalSize   int64        `yaml:"max_total_size"`
	ChunkCount     int          `yaml:"chunk_count"`
	FlushThreshold int          `yaml:"flush_threshold"`
	Notify         NotifyConfig `yaml:"notify"`
}

// NotifyConfig holds the completion-notifier defaults from the config
// file. Each sub-block is only activated when its required field (URL or
// Bucket) is non-empty; all are independent and may be combined.
type NotifyConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
	Redis   RedisConfig   `yaml:"redis"`
	S3      S3Config      `yaml:"s3"`
}

// WebhookConfig configures the HTTP webhook notifier.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// RedisConfig configures the Redis pub/sub notifier.
type RedisConfig struct {
	URL     string   `yaml:"url"`
	Channel string   `yaml:"channel,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
	Retries *int     `yaml:"retries,omitempty"`
}

// S3Config configures the S3-compatible upload notifier.
type S3Config struct {
	Bucket       string   `yaml:"bucket"`
	Prefix       string   `yaml:"prefix,omitempty"`
	Region       string   `yaml:"region,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	UsePathStyle bool     `yaml:"use_path_style,omitempty"`
	Gzip         bool     `yaml:"gzip,omitempty"`
	Timeout      Duration `yaml:"timeout,omitempty"`
	Retries      *int     `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
