// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Capture CaptureConfig `mapstructure:"capture"`
	Browser BrowserConfig `mapstructure:"browser"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	OCR     OCRConfig     `mapstructure:"ocr"`
	Probe   ProbeConfig   `mapstructure:"probe"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CaptureConfig governs pipeline behavior.
type CaptureConfig struct {
	Workers          int     `mapstructure:"workers"`
	QueueDepth       int     `mapstructure:"queue_depth"`
	RenderTimeoutSec int     `mapstructure:"render_timeout_seconds"`
	ChangeThreshold  float64 `mapstructure:"change_threshold"`
	JPEGQuality      int     `mapstructure:"jpeg_quality"`
	ThumbWidth       int     `mapstructure:"thumb_width"`
	ThumbHeight      int     `mapstructure:"thumb_height"`
}

// BrowserConfig configures the headless rendering subsystem.
type BrowserConfig struct {
	MaxSessions   int     `mapstructure:"max_sessions"`
	UserAgent     string  `mapstructure:"user_agent"`
	SettleDelayMs int     `mapstructure:"settle_delay_ms"`
	DomainQPS     float64 `mapstructure:"domain_qps"`
}

// StorageConfig sets paths for artifact persistence.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds the capture job topic and subscription.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	TopicID      string `mapstructure:"topic_id"`
	Subscription string `mapstructure:"subscription"`
}

// OCRConfig points at the text-recognition sidecar.
type OCRConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ProbeConfig controls the validator probe.
type ProbeConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGEWATCH")
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
	v.SetDefault("capture.workers", 4)
	v.SetDefault("capture.queue_depth", 64)
	v.SetDefault("capture.render_timeout_seconds", 30)
	v.SetDefault("capture.change_threshold", 0.1)
	v.SetDefault("capture.jpeg_quality", 80)
	v.SetDefault("capture.thumb_width", 320)
	v.SetDefault("capture.thumb_height", 320)
	v.SetDefault("browser.max_sessions", 2)
	v.SetDefault("browser.user_agent", "pagewatch-bot/0.1")
	v.SetDefault("browser.settle_delay_ms", 2000)
	v.SetDefault("browser.domain_qps", 1.0)
	v.SetDefault("storage.prefix", "captures")
	v.SetDefault("ocr.timeout_seconds", 60)
	v.SetDefault("probe.enabled", true)
	v.SetDefault("probe.timeout_seconds", 10)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Capture.Workers <= 0 {
		return fmt.Errorf("capture.workers must be > 0")
	}
	if c.Capture.ChangeThreshold < 0 || c.Capture.ChangeThreshold > 1 {
		return fmt.Errorf("capture.change_threshold must be in [0,1]")
	}
	if c.Browser.MaxSessions <= 0 {
		return fmt.Errorf("browser.max_sessions must be > 0")
	}
	return nil
}

// RenderTimeout converts the configured timeout into a duration.
func (c Config) RenderTimeout() time.Duration {
	return time.Duration(c.Capture.RenderTimeoutSec) * time.Second
}

// SettleDelay converts the configured settle delay into a duration.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.Browser.SettleDelayMs) * time.Millisecond
}
