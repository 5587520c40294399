// Package config loads the daemon's TOML configuration, applying
// defaults for anything the file leaves unset.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"overtone/internal/identity"
)

// Config is the full daemon configuration.
type Config struct {
	Server        Server                   `toml:"server"`
	Sources       Sources                  `toml:"sources"`
	Spotify       Spotify                  `toml:"spotify"`
	Paths         Paths                    `toml:"paths"`
	Logging       Logging                  `toml:"logging"`
	Notifications Notifications            `toml:"notifications"`
	Identity      map[string]identity.Rule `toml:"identity"`
	Surfaces      Surfaces                 `toml:"surfaces"`
}

type Server struct {
	Bind string `toml:"bind"`
}

type Sources struct {
	PollIntervalMS   int `toml:"poll_interval_ms"`
	RequestTimeoutMS int `toml:"request_timeout_ms"`
}

type Spotify struct {
	ClientID    string `toml:"client_id"`
	RedirectURL string `toml:"redirect_url"`
	TokenFile   string `toml:"token_file"`
}

type Paths struct {
	DataDir    string `toml:"data_dir"`
	LibraryDir string `toml:"library_dir"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Notifications struct {
	Enabled bool `toml:"enabled"`
}

// Surfaces configures the lifecycle manager: reconcile cadence, browser
// binary candidates (first match wins; empty means the built-in list)
// and per-label window geometry.
type Surfaces struct {
	ReconcileIntervalMS int               `toml:"reconcile_interval_ms"`
	Browser             []string          `toml:"browser"`
	Windows             map[string]Window `toml:"windows"`
}

type Window struct {
	Width       int  `toml:"width"`
	Height      int  `toml:"height"`
	AlwaysOnTop bool `toml:"always_on_top"`
	Frameless   bool `toml:"frameless"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: Server{Bind: defaultBind},
		Sources: Sources{
			PollIntervalMS:   defaultPollIntervalMS,
			RequestTimeoutMS: defaultRequestTimeoutMS,
		},
		Spotify: Spotify{RedirectURL: defaultRedirectURL},
		Logging: Logging{Level: defaultLogLevel, Format: defaultLogFormat},
		Notifications: Notifications{
			Enabled: true,
		},
		Surfaces: Surfaces{
			ReconcileIntervalMS: defaultReconcileIntervalMS,
			Windows:             defaultWindows(),
		},
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, defaultConfigSubpath)
	}
	return defaultConfigSubpath
}

// Load reads the file at path, overlays it onto the defaults, fills
// derived paths and validates the result. A missing file is not an
// error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	if c.Paths.DataDir == "" {
		c.Paths.DataDir = filepath.Join(home, defaultDataSubdir)
	}
	c.Paths.DataDir = expandPath(c.Paths.DataDir, home)
	c.Paths.LibraryDir = expandPath(c.Paths.LibraryDir, home)

	if c.Spotify.TokenFile == "" {
		c.Spotify.TokenFile = filepath.Join(c.Paths.DataDir, "token.json")
	}
	c.Spotify.TokenFile = expandPath(c.Spotify.TokenFile, home)

	if c.Sources.PollIntervalMS == 0 {
		c.Sources.PollIntervalMS = defaultPollIntervalMS
	}
	if c.Sources.RequestTimeoutMS == 0 {
		c.Sources.RequestTimeoutMS = defaultRequestTimeoutMS
	}
	if c.Surfaces.ReconcileIntervalMS == 0 {
		c.Surfaces.ReconcileIntervalMS = defaultReconcileIntervalMS
	}
	if c.Surfaces.Windows == nil {
		c.Surfaces.Windows = defaultWindows()
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	return nil
}

func expandPath(p, home string) string {
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("server.bind %q: %w", c.Server.Bind, err)
	}
	if c.Sources.PollIntervalMS < 250 {
		return fmt.Errorf("sources.poll_interval_ms %d: below 250ms", c.Sources.PollIntervalMS)
	}
	if c.Sources.RequestTimeoutMS < 100 {
		return fmt.Errorf("sources.request_timeout_ms %d: below 100ms", c.Sources.RequestTimeoutMS)
	}
	if c.Surfaces.ReconcileIntervalMS < 100 {
		return fmt.Errorf("surfaces.reconcile_interval_ms %d: below 100ms", c.Surfaces.ReconcileIntervalMS)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q: unknown level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q: want console or json", c.Logging.Format)
	}
	if c.Spotify.RedirectURL != "" {
		if _, err := url.Parse(c.Spotify.RedirectURL); err != nil {
			return fmt.Errorf("spotify.redirect_url: %w", err)
		}
	}
	for tag := range c.Identity {
		if _, err := identity.ParseCategory(tag); err != nil {
			return fmt.Errorf("identity rules: %w", err)
		}
	}
	for label, w := range c.Surfaces.Windows {
		if w.Width < 0 || w.Height < 0 {
			return fmt.Errorf("surfaces.windows.%s: negative geometry", label)
		}
	}
	return nil
}

// Rules returns the identity rule set: the built-in defaults with any
// config-file overrides applied on top.
func (c *Config) Rules() identity.Ruleset {
	overlay := make(identity.Ruleset, len(c.Identity))
	for tag, rule := range c.Identity {
		cat, err := identity.ParseCategory(tag)
		if err != nil {
			continue // Validate already rejected these
		}
		overlay[cat] = rule
	}
	return identity.DefaultRules().Merge(overlay)
}

// SettingsPath is the SQLite settings database location.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Paths.DataDir, "settings.db")
}

// ArtCachePath is where embedded cover art gets extracted to.
func (c *Config) ArtCachePath() string {
	return filepath.Join(c.Paths.DataDir, "artcache")
}

// LockPath is the daemon's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "overtoned.lock")
}

// WriteDefault writes a default config file at path unless one already
// exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := toml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
