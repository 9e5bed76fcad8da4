// Package config loads dlboard configuration from ~/.dlboard/config.yaml
// with environment overrides.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/basket/dlboard/internal/otel"
)

type Config struct {
	HomeDir string `yaml:"-"`

	// ServerURL is the download-manager base URL, e.g. "http://localhost:8080".
	ServerURL string `yaml:"server_url"`
	AuthToken string `yaml:"auth_token"`

	// FilterDebounceMS delays re-filtering while the user is still typing.
	FilterDebounceMS int `yaml:"filter_debounce_ms"`
	// HighlightTTLMS controls how long changed rows stay highlighted.
	HighlightTTLMS int `yaml:"highlight_ttl_ms"`

	// ResyncCron is a 5-field cron expression for periodic full resyncs.
	// Empty disables the schedule.
	ResyncCron string `yaml:"resync_cron"`

	LogLevel string `yaml:"log_level"`

	// AuditToDB mirrors the audit journal into a sqlite database.
	AuditToDB bool `yaml:"audit_to_db"`

	OTel otel.Config `yaml:"otel"`

	// Warnings collects advisory schema-validation findings from Load.
	Warnings []string `yaml:"-"`
}

func defaultConfig() Config {
	return Config{
		ServerURL:        "http://localhost:8080",
		FilterDebounceMS: 10,
		HighlightTTLMS:   1200,
		LogLevel:         "info",
	}
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

func HomeDir() string {
	if override := os.Getenv("DLBOARD_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".dlboard")
}

func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create dlboard home: %w", err)
	}

	configPath := ConfigPath(cfg.HomeDir)
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
		cfg.Warnings = ValidateYAML(data)
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:8080"
	}
	if cfg.FilterDebounceMS <= 0 {
		cfg.FilterDebounceMS = 10
	}
	if cfg.HighlightTTLMS <= 0 {
		cfg.HighlightTTLMS = 1200
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.ResyncCron = strings.TrimSpace(cfg.ResyncCron)
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("DLBOARD_SERVER_URL"); raw != "" {
		cfg.ServerURL = raw
	}
	if raw := os.Getenv("DLBOARD_AUTH_TOKEN"); raw != "" {
		cfg.AuthToken = raw
	}
	if raw := os.Getenv("DLBOARD_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("DLBOARD_RESYNC_CRON"); raw != "" {
		cfg.ResyncCron = raw
	}
	if raw := os.Getenv("DLBOARD_FILTER_DEBOUNCE_MS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.FilterDebounceMS = v
		}
	}
	if raw := os.Getenv("DLBOARD_HIGHLIGHT_TTL_MS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.HighlightTTLMS = v
		}
	}
}

// StreamURL derives the websocket endpoint from ServerURL.
func (c Config) StreamURL() string {
	u := c.ServerURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/events"
}

// Fingerprint returns a stable hash of the active config, logged at
// startup so support can tell which settings a session ran with.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "server=%s|debounce=%d|ttl=%d|cron=%s|log=%s|audit_db=%v",
		c.ServerURL, c.FilterDebounceMS, c.HighlightTTLMS, c.ResyncCron, c.LogLevel, c.AuditToDB)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}
