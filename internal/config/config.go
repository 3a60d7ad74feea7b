package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration for the login page SDK.
type Config struct {
	// UserAuthURL serves room tokens for app-secret flows.
	UserAuthURL string `env:"OTPLESS_USER_AUTH_URL" envDefault:"https://user-auth.otpless.app"`
	// ConnectURL serves room ids and hosts the realtime channel.
	ConnectURL string `env:"OTPLESS_CONNECT_URL" envDefault:"https://connect.otpless.app"`
	// APIURL serves the v4 session endpoints.
	APIURL string `env:"OTPLESS_API_URL" envDefault:"https://otpless.com"`
	// TelemetryURL receives fire-and-forget app events.
	TelemetryURL string `env:"OTPLESS_TELEMETRY_URL" envDefault:"https://d33ftqsb9ygkos.cloudfront.net"`
	// LoginPageURL is the hosted login page prefix; the app id is appended.
	LoginPageURL string `env:"OTPLESS_LOGIN_PAGE_URL" envDefault:"https://otpless.com/rc5/appid/"`

	// HomeDir is where the SDK stores local state.
	HomeDir string `env:"OTPLESS_HOME_DIR"`

	Debug    bool   `env:"OTPLESS_DEBUG" envDefault:"false"`
	LogLevel string `env:"OTPLESS_LOG_LEVEL" envDefault:"info"`

	HTTPTimeout     time.Duration `env:"OTPLESS_HTTP_TIMEOUT" envDefault:"30s"`
	RoomTimeout     time.Duration `env:"OTPLESS_ROOM_TIMEOUT" envDefault:"2s"`
	RefreshInterval time.Duration `env:"OTPLESS_REFRESH_INTERVAL" envDefault:"3m"`
	// RetryDelay is the pause between room acquisition attempts. Zero fires
	// retries immediately.
	RetryDelay time.Duration `env:"OTPLESS_RETRY_DELAY" envDefault:"0s"`

	// CellularInterface pins silent network auth to a named interface.
	CellularInterface string `env:"OTPLESS_CELLULAR_INTERFACE"`
}

// Load parses environment variables into Config and ensures HomeDir exists.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.HomeDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create otpless home: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading the environment.
// HomeDir resolves to ~/.otpless and stays empty when the user home is
// unknown; the directory is created on first write.
func Default() *Config {
	cfg := &Config{}
	_ = env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}})
	_ = cfg.normalize()
	return cfg
}

func (c *Config) normalize() error {
	c.UserAuthURL = trimURL(c.UserAuthURL)
	c.ConnectURL = trimURL(c.ConnectURL)
	c.APIURL = trimURL(c.APIURL)
	c.TelemetryURL = trimURL(c.TelemetryURL)
	c.LoginPageURL = strings.TrimSpace(c.LoginPageURL)
	c.CellularInterface = strings.TrimSpace(c.CellularInterface)

	if c.HomeDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		c.HomeDir = filepath.Join(homeDir, ".otpless")
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 3 * time.Minute
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	return nil
}

// KeyFile is the path of the storage key seed.
func (c *Config) KeyFile() string {
	return filepath.Join(c.HomeDir, "storage.key")
}

// StoreFile is the path of the encrypted key-value file.
func (c *Config) StoreFile() string {
	return filepath.Join(c.HomeDir, "secure.json")
}

// InstallationFile is the path of the plain installation id file.
func (c *Config) InstallationFile() string {
	return filepath.Join(c.HomeDir, "installation.id")
}

// LogDir is where the SDK writes rotating log files.
func (c *Config) LogDir() string {
	return filepath.Join(c.HomeDir, "logs")
}

func trimURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
