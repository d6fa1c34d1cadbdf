// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Cache namespace names.
const (
	NamespaceProducts   = "products"
	NamespaceTracklists = "tracklists"
	NamespaceProcessed  = "tracklists_processed"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Admin      AdminConfig      `yaml:"admin"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Cache      CacheConfig      `yaml:"cache"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Content    ContentConfig    `yaml:"content"`
	Spotify    SpotifyConfig    `yaml:"spotify"`
	Store      StoreConfig      `yaml:"store"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	GracePeriodMs   int `yaml:"grace_period_ms" default:"5000" validate:"gte=0,lte=60000"`
	PollIntervalMs  int `yaml:"poll_interval_ms" default:"250" validate:"gte=50,lte=5000"`
	PreviewLengthMs int `yaml:"preview_length_ms" default:"30000" validate:"gte=1000"`
	ProbeTimeoutMs  int `yaml:"probe_timeout_ms" default:"5000" validate:"gte=100"`
}

// CacheConfig represents bounded cache configuration.
type CacheConfig struct {
	GlobalMaxMemory int64                      `yaml:"global_max_memory" default:"52428800" validate:"gte=0"`
	SweepIntervalMs int                        `yaml:"sweep_interval_ms" default:"60000" validate:"gte=1000"`
	Namespaces      map[string]NamespaceConfig `yaml:"namespaces" validate:"dive"`
}

// NamespaceConfig represents the retention policy of one cache namespace.
type NamespaceConfig struct {
	TTLMs      int   `yaml:"ttl_ms" validate:"gte=1"`
	MaxEntries int   `yaml:"max_entries" validate:"gte=0"`
	MaxMemory  int64 `yaml:"max_memory" validate:"gte=0"`
}

// DefaultNamespaces are used for namespaces missing from the configuration.
var DefaultNamespaces = map[string]NamespaceConfig{
	NamespaceProducts:   {TTLMs: 600000, MaxEntries: 200, MaxMemory: 2 << 20},
	NamespaceTracklists: {TTLMs: 1800000, MaxEntries: 500, MaxMemory: 5 << 20},
	NamespaceProcessed:  {TTLMs: 3600000, MaxEntries: 1000, MaxMemory: 512 << 10},
}

// EnrichmentConfig represents metadata enrichment configuration.
type EnrichmentConfig struct {
	TrustEnhancedFlag bool `yaml:"trust_enhanced_flag"`
	RequireCatalogID  bool `yaml:"require_catalog_id"`
	PersistViaContent bool `yaml:"persist_via_content"`
}

// CatalogConfig represents external catalog configuration.
type CatalogConfig struct {
	Providers []ProviderConfig `yaml:"providers" validate:"required,min=1,dive"`
}

// ProviderConfig represents a single catalog provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required,oneof=discogs lastfm spotify"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// ContentConfig represents content-source API configuration.
type ContentConfig struct {
	BaseURL   string `yaml:"base_url" validate:"required,url"`
	Token     string `yaml:"token"`
	TimeoutMs int    `yaml:"timeout_ms" default:"10000" validate:"gte=100"`
}

// SpotifyConfig represents Spotify API configuration.
// Credentials are only required when a spotify catalog provider is configured.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// StoreConfig represents the local enriched-tracklist store.
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite file path, empty disables the store
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	cfg.Cache.fillNamespaces()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("DISCOGS_TOKEN"); v != "" {
		c.setProviderSetting("discogs", "token", v)
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		c.setProviderSetting("lastfm", "api_key", v)
	}
	if v := os.Getenv("CONTENT_API_TOKEN"); v != "" {
		c.Content.Token = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
}

// setProviderSetting sets key on every provider of the given type.
func (c *Config) setProviderSetting(providerType, key string, value any) {
	for i := range c.Catalog.Providers {
		p := &c.Catalog.Providers[i]
		if p.Type != providerType {
			continue
		}
		if p.Settings == nil {
			p.Settings = make(map[string]any)
		}
		p.Settings[key] = value
	}
}

// fillNamespaces adds the default namespaces that are not configured.
func (c *CacheConfig) fillNamespaces() {
	if c.Namespaces == nil {
		c.Namespaces = make(map[string]NamespaceConfig, len(DefaultNamespaces))
	}
	for name, ns := range DefaultNamespaces {
		if _, ok := c.Namespaces[name]; !ok {
			c.Namespaces[name] = ns
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	// Validate provider credentials
	if err := c.validateProviders(); err != nil {
		return err
	}

	return nil
}

// validateProviders checks that every configured provider has its credentials.
func (c *Config) validateProviders() error {
	for i, p := range c.Catalog.Providers {
		if p.Type == "spotify" && !c.HasSpotifyCredentials() {
			return errors.Newf("catalog provider %d (%s) requires spotify.client_id and spotify.client_secret", i, p.DisplayName)
		}
	}
	return nil
}

// HasSpotifyCredentials reports whether Spotify credentials are configured.
func (c *Config) HasSpotifyCredentials() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// GracePeriod returns the last-track grace period.
func (p PlaybackConfig) GracePeriod() time.Duration {
	return time.Duration(p.GracePeriodMs) * time.Millisecond
}

// PollInterval returns the state sampling interval.
func (p PlaybackConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

// PreviewLength returns the assumed length of previews without a known duration.
func (p PlaybackConfig) PreviewLength() time.Duration {
	return time.Duration(p.PreviewLengthMs) * time.Millisecond
}

// ProbeTimeout returns the timeout of the media readiness probe.
func (p PlaybackConfig) ProbeTimeout() time.Duration {
	return time.Duration(p.ProbeTimeoutMs) * time.Millisecond
}

// SweepInterval returns the cache sweep interval.
func (c CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMs) * time.Millisecond
}

// TTL returns the namespace TTL.
func (n NamespaceConfig) TTL() time.Duration {
	return time.Duration(n.TTLMs) * time.Millisecond
}

// Timeout returns the content API timeout.
func (c ContentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
