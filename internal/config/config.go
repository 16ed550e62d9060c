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
	Server     ServerConfig     `mapstructure:"server"`
	API        APIConfig        `mapstructure:"api"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Enrich     EnrichConfig     `mapstructure:"enrich"`
	Push       PushConfig       `mapstructure:"push"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	DB         DBConfig         `mapstructure:"db"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// APIConfig controls the HTTP surface.
type APIConfig struct {
	PageSize int        `mapstructure:"page_size"`
	Auth     AuthConfig `mapstructure:"auth"`
}

// AuthConfig defines API authentication toggles for the private routes.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DispatcherConfig governs the tick loop and worker pool.
type DispatcherConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Workers      int           `mapstructure:"workers"`
	QueueDepth   int           `mapstructure:"queue_depth"`
}

// CrawlerConfig governs feed fetching and ingestion defaults.
type CrawlerConfig struct {
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	DefaultMaxItems int           `mapstructure:"default_max_items"`
}

// EnrichConfig configures the enrichment collaborator.
type EnrichConfig struct {
	Provider string        `mapstructure:"provider"`
	URL      string        `mapstructure:"url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PushConfig configures the push-notification transport.
type PushConfig struct {
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PubSub   PubSubConfig  `mapstructure:"pubsub"`
}

// PubSubConfig holds GCP Pub/Sub topic metadata.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ArchiveConfig configures the raw feed-document archive.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the persistence backend.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FEEDWATCH")
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
	v.SetDefault("api.page_size", 20)
	v.SetDefault("api.auth.enabled", false)
	v.SetDefault("dispatcher.tick_interval", time.Minute)
	v.SetDefault("dispatcher.workers", 4)
	v.SetDefault("dispatcher.queue_depth", 64)
	v.SetDefault("crawler.fetch_timeout", 30*time.Second)
	v.SetDefault("crawler.user_agent", "feedwatch/0.1 (+https://github.com/linkhoard/feedwatch)")
	v.SetDefault("crawler.default_max_items", 10)
	v.SetDefault("enrich.provider", "noop")
	v.SetDefault("enrich.timeout", 20*time.Second)
	v.SetDefault("push.provider", "noop")
	v.SetDefault("push.timeout", 5*time.Second)
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "feeds")
	v.SetDefault("db.provider", "memory")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.API.PageSize <= 0 {
		return fmt.Errorf("api.page_size must be > 0")
	}
	if c.API.Auth.Enabled && c.API.Auth.APIKey == "" {
		return fmt.Errorf("api.auth.api_key must be set when auth is enabled")
	}
	if c.Dispatcher.TickInterval <= 0 {
		return fmt.Errorf("dispatcher.tick_interval must be > 0")
	}
	if c.Dispatcher.Workers <= 0 {
		return fmt.Errorf("dispatcher.workers must be > 0")
	}
	if c.Dispatcher.QueueDepth <= 0 {
		return fmt.Errorf("dispatcher.queue_depth must be > 0")
	}
	if c.Crawler.FetchTimeout <= 0 {
		return fmt.Errorf("crawler.fetch_timeout must be > 0")
	}
	if c.Crawler.DefaultMaxItems <= 0 {
		return fmt.Errorf("crawler.default_max_items must be > 0")
	}
	switch c.Enrich.Provider {
	case "noop":
	case "http":
		if c.Enrich.URL == "" {
			return fmt.Errorf("enrich.url must be set when enrich.provider is 'http'")
		}
	default:
		return fmt.Errorf("unknown enrich provider: %s", c.Enrich.Provider)
	}
	switch c.Push.Provider {
	case "noop", "http":
	case "pubsub":
		if c.Push.PubSub.ProjectID == "" || c.Push.PubSub.TopicID == "" {
			return fmt.Errorf("push.pubsub.project_id and topic_id must be set when push.provider is 'pubsub'")
		}
	default:
		return fmt.Errorf("unknown push provider: %s", c.Push.Provider)
	}
	switch c.Archive.Provider {
	case "noop":
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is 'gcs'")
		}
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set when archive.provider is 'local'")
		}
	default:
		return fmt.Errorf("unknown archive provider: %s", c.Archive.Provider)
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is 'postgres'")
		}
	default:
		return fmt.Errorf("unknown db provider: %s", c.DB.Provider)
	}
	return nil
}
