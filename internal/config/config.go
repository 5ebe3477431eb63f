// Package config loads and validates scraperhub configuration via Viper.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/scraperhub/internal/scrapers/jumbo"
)

// EnvPrefix namespaces every environment override, e.g. SCRAPERHUB_SERVER_PORT.
const EnvPrefix = "SCRAPERHUB"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Plugins  PluginsConfig  `mapstructure:"plugins"`
	Output   OutputConfig   `mapstructure:"output"`
	Users    UsersConfig    `mapstructure:"users"`
	Session  SessionConfig  `mapstructure:"session"`
	Events   EventsConfig   `mapstructure:"events"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Scrapers ScrapersConfig `mapstructure:"scrapers"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig holds the session cookie settings. Keys are base64 encoded;
// empty keys are generated at startup.
type AuthConfig struct {
	CookieName   string `mapstructure:"cookie_name"`
	HashKey      string `mapstructure:"hash_key"`
	BlockKey     string `mapstructure:"block_key"`
	SecureCookie bool   `mapstructure:"secure_cookie"`
}

// BrowserConfig sizes the browser pool and configures Chrome.
type BrowserConfig struct {
	MaxConcurrent     int    `mapstructure:"max_concurrent"`
	Headless          bool   `mapstructure:"headless"`
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	ExecPath          string `mapstructure:"exec_path"`
}

// PluginsConfig lists the directories scanned for plugin manifests.
type PluginsConfig struct {
	Dirs []string `mapstructure:"dirs"`
}

// OutputConfig sets the artifact directory and optional GCS mirror.
type OutputConfig struct {
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// UsersConfig points at the user store.
type UsersConfig struct {
	File string `mapstructure:"file"`
}

// SessionConfig tunes connection fan-out.
type SessionConfig struct {
	SendTimeoutMs int `mapstructure:"send_timeout_ms"`
}

// EventsConfig tunes the lifecycle event hub.
type EventsConfig struct {
	BufferSize     int  `mapstructure:"buffer_size"`
	MaxBatchEvents int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int  `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutMs  int  `mapstructure:"sink_timeout_ms"`
	LogEnabled     bool `mapstructure:"log_enabled"`
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// DBConfig controls access to the run history database. An empty DSN keeps
// history in memory.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScrapersConfig carries per-component settings.
type ScrapersConfig struct {
	Jumbo jumbo.Config `mapstructure:"jumbo"`
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	jd := jumbo.DefaultConfig()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("auth.cookie_name", "scraperhub_session")
	v.SetDefault("auth.hash_key", "")
	v.SetDefault("auth.block_key", "")
	v.SetDefault("auth.secure_cookie", false)
	v.SetDefault("browser.max_concurrent", 5)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "scraperhub/0.1")
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("plugins.dirs", []string{"plugins"})
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("output.prefix", "artifacts")
	v.SetDefault("users.file", "users.yaml")
	v.SetDefault("session.send_timeout_ms", 5000)
	v.SetDefault("events.buffer_size", 1024)
	v.SetDefault("events.max_batch_events", 100)
	v.SetDefault("events.max_batch_wait_ms", 250)
	v.SetDefault("events.sink_timeout_ms", 10000)
	v.SetDefault("events.log_enabled", true)
	v.SetDefault("events.metrics_enabled", true)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "scraper_runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("scrapers.jumbo.base_url", jd.BaseURL)
	v.SetDefault("scrapers.jumbo.categories", jd.Categories)
	v.SetDefault("scrapers.jumbo.max_pages", jd.MaxPages)
	v.SetDefault("scrapers.jumbo.user_agent", jd.UserAgent)
	v.SetDefault("scrapers.jumbo.timeout", jd.Timeout)
	v.SetDefault("scrapers.jumbo.requests_per_second", jd.RequestsPerSecond)
	v.SetDefault("scrapers.jumbo.burst", jd.Burst)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds must be > 0")
	}
	if c.Browser.MaxConcurrent <= 0 {
		return fmt.Errorf("browser.max_concurrent must be > 0")
	}
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if len(c.Plugins.Dirs) == 0 {
		return fmt.Errorf("plugins.dirs must list at least one directory")
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("output.dir is required")
	}
	if strings.TrimSpace(c.Users.File) == "" {
		return fmt.Errorf("users.file is required")
	}
	if c.Session.SendTimeoutMs <= 0 {
		return fmt.Errorf("session.send_timeout_ms must be > 0")
	}
	if c.Events.BufferSize <= 0 || c.Events.MaxBatchEvents <= 0 {
		return fmt.Errorf("events.buffer_size and events.max_batch_events must be > 0")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.Scrapers.Jumbo.MaxPages <= 0 {
		return fmt.Errorf("scrapers.jumbo.max_pages must be > 0")
	}
	if c.Scrapers.Jumbo.RequestsPerSecond < 0 {
		return fmt.Errorf("scrapers.jumbo.requests_per_second must be >= 0")
	}
	if _, _, err := c.Auth.Keys(); err != nil {
		return err
	}
	return nil
}

// Keys decodes the cookie hash and block keys.
func (a AuthConfig) Keys() (hashKey, blockKey []byte, err error) {
	if hashKey, err = decodeKey("auth.hash_key", a.HashKey); err != nil {
		return nil, nil, err
	}
	if blockKey, err = decodeKey("auth.block_key", a.BlockKey); err != nil {
		return nil, nil, err
	}
	switch len(blockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, nil, fmt.Errorf("auth.block_key must decode to 16, 24 or 32 bytes")
	}
	return hashKey, blockKey, nil
}

func decodeKey(name, raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be base64: %w", name, err)
	}
	return key, nil
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// RequestTimeout returns the per-request deadline.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// NavTimeout returns the browser navigation deadline.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// SendTimeout returns the per-connection send deadline.
func (c Config) SendTimeout() time.Duration {
	return time.Duration(c.Session.SendTimeoutMs) * time.Millisecond
}
