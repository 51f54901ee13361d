// Package config loads application settings from defaults, an optional TOML
// file, a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/justestif/spoinder/internal/logger"
)

const (
	DefaultAddr            = "127.0.0.1:8080"
	DefaultRedirectURI     = "http://127.0.0.1:8080/callback"
	DefaultFile            = "spoinder.toml"
	DefaultPlaylistPrefix  = "spoinder"
	DefaultUpstreamTimeout = 15 * time.Second
	DefaultUpstreamRPS     = 10
)

// ErrMissingCredentials is returned when the client id or secret is not configured.
var ErrMissingCredentials = errors.New("missing SPOTIFY_ID or SPOTIFY_SECRET")

// Config holds every setting the server and the CLI need.
type Config struct {
	Addr         string `toml:"addr"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`

	// DatabaseURL selects the PostgreSQL session store when set.
	DatabaseURL string `toml:"database_url"`

	LogLevel string `toml:"log_level"`

	// UpstreamTimeout bounds every single call to the music service.
	UpstreamTimeout Duration `toml:"upstream_timeout"`

	// UpstreamRPS caps outgoing Web API requests per second (0 disables pacing).
	UpstreamRPS int `toml:"upstream_rps"`

	// PlaylistPrefix is the name prefix of playlists created from swipe results.
	PlaylistPrefix string `toml:"playlist_prefix"`
}

// Duration lets TOML files use strings such as "15s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Addr:            DefaultAddr,
		RedirectURI:     DefaultRedirectURI,
		LogLevel:        logger.LevelInfo,
		UpstreamTimeout: Duration{DefaultUpstreamTimeout},
		UpstreamRPS:     DefaultUpstreamRPS,
		PlaylistPrefix:  DefaultPlaylistPrefix,
	}
}

// Load builds a Config from defaults, the TOML file at path (skipped when it
// does not exist), the .env file in the working directory and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg.LoadEnv(os.Getenv)
	return cfg, nil
}

// LoadFile merges settings from a TOML file. A missing file is not an error.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// LoadEnv overrides settings with non-empty environment variables.
func (c *Config) LoadEnv(getenv func(string) string) {
	setString := func(o *string) func(string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}

	envMap := map[string]func(string){
		"LISTEN_ADDR":          setString(&c.Addr),
		"SPOTIFY_ID":           setString(&c.ClientID),
		"SPOTIFY_SECRET":       setString(&c.ClientSecret),
		"SPOTIFY_REDIRECT_URI": setString(&c.RedirectURI),
		"DATABASE_URL":         setString(&c.DatabaseURL),
		"LOG_LEVEL":            setString(&c.LogLevel),
	}

	for key, set := range envMap {
		set(getenv(key))
	}
}

// Validate reports missing credentials.
func (c *Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return ErrMissingCredentials
	}
	if c.UpstreamTimeout.Duration <= 0 {
		return fmt.Errorf("upstream timeout must be positive, got %s", c.UpstreamTimeout)
	}
	return nil
}
