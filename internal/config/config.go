// Package config loads the server configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the server configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	MPD        MPDConfig        `toml:"mpd"`
	Store      StoreConfig      `toml:"store"`
	Pager      PagerConfig      `toml:"pager"`
	MiniPlayer MiniPlayerConfig `toml:"mini_player"`
	Qobuz      QobuzConfig      `toml:"qobuz"`
	Web        WebConfig        `toml:"web"`
}

// ServerConfig holds HTTP and Socket.io settings.
type ServerConfig struct {
	Port             string `toml:"port"`
	StaticDir        string `toml:"static_dir"`
	MaxRemoteClients int    `toml:"max_remote_clients"`
}

// MPDConfig holds the MPD connection.
type MPDConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
}

// StoreConfig holds the SQLite store location.
type StoreConfig struct {
	Path string `toml:"path"`
}

// PagerConfig holds pager defaults.
type PagerConfig struct {
	PageSize    int `toml:"page_size"`
	MinPageSize int `toml:"min_page_size"`
	MaxPageSize int `toml:"max_page_size"`
	// CalculatePageSize grows the page size to fit the longest range a
	// client has asked for.
	CalculatePageSize bool `toml:"calculate_page_size"`
}

// MiniPlayerConfig holds the mini player hand-off timings.
type MiniPlayerConfig struct {
	Origin         string   `toml:"origin"`
	WindowName     string   `toml:"window_name"`
	ReadyTimeout   Duration `toml:"ready_timeout"`
	DriftTolerance Duration `toml:"drift_tolerance"`
	HeartbeatDelay Duration `toml:"heartbeat_delay"`
	AttachTimeout  Duration `toml:"attach_timeout"`
}

// QobuzConfig holds Qobuz credentials. Without an app id and secret they
// are scraped from the web player when Extract is set.
type QobuzConfig struct {
	Enabled   bool   `toml:"enabled"`
	AppID     string `toml:"app_id"`
	AppSecret string `toml:"app_secret"`
	AuthToken string `toml:"auth_token"`
	Extract   bool   `toml:"extract_credentials"`
}

// WebConfig lists JSON backends served as feeds.
type WebConfig struct {
	RequestsPerSecond float64       `toml:"requests_per_second"`
	Feeds             []WebFeedConf `toml:"feeds"`
}

// WebFeedConf is one JSON backend. It is browsed as "web:feed:<name>".
type WebFeedConf struct {
	Name     string `toml:"name"`
	Endpoint string `toml:"endpoint"`
}

// Duration is a time.Duration written as a string such as "2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             "3001",
			MaxRemoteClients: 4,
		},
		MPD: MPDConfig{
			Host: "localhost",
			Port: 6600,
		},
		Store: StoreConfig{
			Path: "data/ampcast.db",
		},
		Pager: PagerConfig{
			PageSize:          50,
			MinPageSize:       10,
			MaxPageSize:       100,
			CalculatePageSize: true,
		},
		MiniPlayer: MiniPlayerConfig{
			Origin:         "http://localhost:3001",
			WindowName:     "ampcast-mini-player",
			ReadyTimeout:   Duration{2 * time.Second},
			DriftTolerance: Duration{2 * time.Second},
			HeartbeatDelay: Duration{500 * time.Millisecond},
			AttachTimeout:  Duration{10 * time.Second},
		},
		Web: WebConfig{
			RequestsPerSecond: 5,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString("# Ampcast server configuration\n\n"); err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port cannot be empty")
	}
	if c.MPD.Host == "" {
		return errors.New("mpd host cannot be empty")
	}
	if c.MPD.Port <= 0 || c.MPD.Port > 65535 {
		return fmt.Errorf("invalid mpd port: %d", c.MPD.Port)
	}
	if c.Store.Path == "" {
		return errors.New("store path cannot be empty")
	}

	p := c.Pager
	if p.MinPageSize < 1 {
		return errors.New("pager min_page_size must be at least 1")
	}
	if p.MaxPageSize < p.MinPageSize {
		return fmt.Errorf("pager max_page_size %d is below min_page_size %d", p.MaxPageSize, p.MinPageSize)
	}
	if p.PageSize < 1 {
		return errors.New("pager page_size must be at least 1")
	}

	m := c.MiniPlayer
	if _, err := url.ParseRequestURI(m.Origin); err != nil {
		return fmt.Errorf("invalid mini player origin %q", m.Origin)
	}
	for name, d := range map[string]Duration{
		"ready_timeout":   m.ReadyTimeout,
		"drift_tolerance": m.DriftTolerance,
		"heartbeat_delay": m.HeartbeatDelay,
		"attach_timeout":  m.AttachTimeout,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("mini player %s must be positive", name)
		}
	}

	if c.Qobuz.Enabled && !c.Qobuz.Extract && (c.Qobuz.AppID == "" || c.Qobuz.AppSecret == "") {
		return errors.New("qobuz needs app_id and app_secret or extract_credentials")
	}

	if c.Web.RequestsPerSecond < 0 {
		return errors.New("web requests_per_second cannot be negative")
	}
	seen := make(map[string]bool)
	for _, f := range c.Web.Feeds {
		if f.Name == "" {
			return errors.New("web feed name cannot be empty")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate web feed %q", f.Name)
		}
		seen[f.Name] = true
		if u, err := url.Parse(f.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid endpoint for web feed %q", f.Name)
		}
	}
	return nil
}

// MPDAddress returns host:port.
func (c *Config) MPDAddress() string {
	return fmt.Sprintf("%s:%d", c.MPD.Host, c.MPD.Port)
}
