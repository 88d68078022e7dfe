package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Reddit   RedditConfig   `yaml:"reddit"`
	Similar  SimilarConfig  `yaml:"similar"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// RedditConfig configures the Reddit client.
type RedditConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	UserAgent    string `yaml:"user_agent"`
	Transport    string `yaml:"transport"` // "auto", "oauth" or "public"
	AuthURL      string `yaml:"auth_url"`
	APIURL       string `yaml:"api_url"`
	PublicURL    string `yaml:"public_url"`
	Timeout      string `yaml:"timeout"`
}

// HasCredentials reports whether an app id and secret are set.
func (r RedditConfig) HasCredentials() bool {
	return r.ClientID != "" && r.ClientSecret != ""
}

// ParseTimeout returns the HTTP timeout as time.Duration.
func (r RedditConfig) ParseTimeout() time.Duration {
	return parseDuration(r.Timeout, 30*time.Second)
}

// SimilarConfig tunes the related-community computation.
type SimilarConfig struct {
	Limit        int    `yaml:"limit"`
	HotLimit     int    `yaml:"hot_limit"`
	MaxUsers     int    `yaml:"max_users"`
	HistoryLimit int    `yaml:"history_limit"`
	Concurrency  int    `yaml:"concurrency"`
	DefaultMode  string `yaml:"default_mode"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig configures the subreddit metadata cache and lookup history.
type CacheConfig struct {
	TTL        string `yaml:"ttl"`
	HistoryTTL string `yaml:"history_ttl"`
}

// ParseTTL returns the cache TTL as time.Duration.
func (c CacheConfig) ParseTTL() time.Duration {
	return parseDuration(c.TTL, 6*time.Hour)
}

// ParseHistoryTTL returns how long recorded lookups are kept.
func (c CacheConfig) ParseHistoryTTL() time.Duration {
	return parseDuration(c.HistoryTTL, 30*24*time.Hour)
}

// ScheduleConfig configures the background jobs of the daemon.
type ScheduleConfig struct {
	PurgeInterval string   `yaml:"purge_interval"`
	WarmInterval  string   `yaml:"warm_interval"`
	Warm          []string `yaml:"warm"`
}

// ParsePurgeInterval returns the purge interval as time.Duration.
func (s ScheduleConfig) ParsePurgeInterval() time.Duration {
	return parseDuration(s.PurgeInterval, time.Hour)
}

// ParseWarmInterval returns the warm interval as time.Duration.
func (s ScheduleConfig) ParseWarmInterval() time.Duration {
	return parseDuration(s.WarmInterval, 30*time.Minute)
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port              int    `yaml:"port"`
	ReadHeaderTimeout string `yaml:"read_header_timeout"`
}

// ParseReadHeaderTimeout returns the header read timeout as time.Duration.
func (s ServerConfig) ParseReadHeaderTimeout() time.Duration {
	return parseDuration(s.ReadHeaderTimeout, 10*time.Second)
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Reddit: RedditConfig{
			UserAgent: "SubredditExplorer/1.0",
			Transport: "auto",
			Timeout:   "30s",
		},
		Similar: SimilarConfig{
			Limit:        5,
			HotLimit:     100,
			MaxUsers:     25,
			HistoryLimit: 100,
			Concurrency:  8,
			DefaultMode:  "posts",
		},
		Database: DatabaseConfig{Path: "./subexplorer.db"},
		Cache:    CacheConfig{TTL: "6h", HistoryTTL: "720h"},
		Schedule: ScheduleConfig{
			PurgeInterval: "1h",
			WarmInterval:  "30m",
		},
		Server: ServerConfig{Port: 3000, ReadHeaderTimeout: "10s"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// LoadEnv loads variables from a dotenv file without overriding the ones
// already set. An empty path loads ./.env if it exists.
func LoadEnv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("REDDIT_CLIENT_ID"); v != "" {
		cfg.Reddit.ClientID = v
	}
	if v := os.Getenv("REDDIT_CLIENT_SECRET"); v != "" {
		cfg.Reddit.ClientSecret = v
	}
	if v := os.Getenv("REDDIT_USER_AGENT"); v != "" {
		cfg.Reddit.UserAgent = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("SUBEXPLORER_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SUBEXPLORER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Reddit.Transport) {
	case "", "auto", "public":
	case "oauth":
		if !c.Reddit.HasCredentials() {
			errs = append(errs, errors.New("reddit.transport oauth needs client_id and client_secret"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown reddit.transport %q", c.Reddit.Transport))
	}

	switch strings.ToLower(c.Similar.DefaultMode) {
	case "", "posts", "users":
	default:
		errs = append(errs, fmt.Errorf("unknown similar.default_mode %q", c.Similar.DefaultMode))
	}

	if c.Similar.Limit < 0 || c.Similar.Limit > 25 {
		errs = append(errs, fmt.Errorf("similar.limit %d out of range 1-25", c.Similar.Limit))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
