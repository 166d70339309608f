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

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Header  HeaderConfig  `yaml:"header"`
	Player  PlayerConfig  `yaml:"player"`
	Catalog CatalogConfig `yaml:"catalog"`
	Control ControlConfig `yaml:"control"`
	Images  ImagesConfig  `yaml:"images"`
	Spotify SpotifyConfig `yaml:"spotify"`
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

// HeaderConfig represents page header configuration.
type HeaderConfig struct {
	Locale     string `yaml:"locale" default:"pt_BR"`
	DateLayout string `yaml:"date_layout" default:"Mon, 2 January"`
	Tagline    string `yaml:"tagline" default:"O melhor para você ouvir, sempre"`
}

// PlayerConfig represents playback configuration.
type PlayerConfig struct {
	TimeUpdateIntervalMs int `yaml:"time_update_interval_ms" default:"250" validate:"gte=10,lte=5000"`
	EventBuffer          int `yaml:"event_buffer" default:"64" validate:"gte=1,lte=4096"`
}

// TimeUpdateInterval returns the time-update interval as a duration.
func (c PlayerConfig) TimeUpdateInterval() time.Duration {
	return time.Duration(c.TimeUpdateIntervalMs) * time.Millisecond
}

// CatalogConfig represents episode catalog configuration.
type CatalogConfig struct {
	Sources []SourceConfig `yaml:"sources" validate:"required,min=1,dive"`
}

// SourceConfig represents a single catalog source configuration.
type SourceConfig struct {
	Type        string         `yaml:"type" validate:"required,oneof=file spotify"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings" validate:"required"`
}

// ControlConfig represents control API configuration.
// An empty token leaves mutating calls open.
type ControlConfig struct {
	Token string `yaml:"token"`
}

// ImagesConfig represents image optimizer configuration.
type ImagesConfig struct {
	CacheSize      int `yaml:"cache_size" default:"128" validate:"gte=1"`
	MaxWidth       int `yaml:"max_width" default:"3840" validate:"gte=16,lte=3840"`
	DefaultQuality int `yaml:"default_quality" default:"75" validate:"gte=1,lte=100"`
	FetchTimeoutMs int `yaml:"fetch_timeout_ms" default:"5000" validate:"gte=100"`
	// AllowedHosts extends the thumbnail hosts of the loaded catalog, which
	// are always allowed.
	AllowedHosts []string `yaml:"allowed_hosts" validate:"dive,hostname_rfc1123|ip"`
}

// FetchTimeout returns the image fetch timeout as a duration.
func (c ImagesConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

// SpotifyConfig represents Spotify API configuration.
// Credentials are only required when a spotify catalog source is configured.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"BR"`
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

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

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
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("CONTROL_TOKEN"); v != "" {
		c.Control.Token = v
	}
}

// UsesSpotify reports whether any catalog source needs the Spotify API.
func (c *Config) UsesSpotify() bool {
	for _, s := range c.Catalog.Sources {
		if s.Type == "spotify" {
			return true
		}
	}
	return false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.UsesSpotify() {
		if err := c.validateSpotifyCredentials(); err != nil {
			return err
		}
	}

	return nil
}

// validateSpotifyCredentials checks that every credential is present.
func (c *Config) validateSpotifyCredentials() error {
	switch {
	case c.Spotify.ClientID == "":
		return errors.New("spotify source configured but Spotify.ClientID is empty")
	case c.Spotify.ClientSecret == "":
		return errors.New("spotify source configured but Spotify.ClientSecret is empty")
	case c.Spotify.RefreshToken == "":
		return errors.New("spotify source configured but Spotify.RefreshToken is empty")
	}
	return nil
}
