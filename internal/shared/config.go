package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Feed        FeedConfig        `toml:"feed"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Google  GoogleConfig  `toml:"google"`
	YouTube YouTubeConfig `toml:"youtube"`
}

// GoogleConfig contains the OAuth2 client registered with Google.
type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// YouTubeConfig contains YouTube Data API settings.
//
// APIKey is optional; without it every call is made with the user's bearer token.
type YouTubeConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// FeedConfig tunes the subscription feed aggregation.
type FeedConfig struct {
	MaxPerChannel        int     `toml:"max_per_channel"`
	BackoffSeconds       int     `toml:"backoff_seconds"`
	RefreshMarginSeconds int     `toml:"refresh_margin_seconds"`
	MaxConcurrency       int     `toml:"max_concurrency"`     // 0 means one goroutine per playlist
	RequestsPerSecond    float64 `toml:"requests_per_second"` // 0 disables the limiter
	ExactCap             bool    `toml:"exact_cap"`
	TimeoutSeconds       int     `toml:"timeout_seconds"` // 0 means no deadline
}

// Backoff is the sleep before the single retry of a rate-limited call.
func (f FeedConfig) Backoff() time.Duration {
	return time.Duration(f.BackoffSeconds) * time.Second
}

// RefreshMargin is how close to expiry a credential may get before it is refreshed.
func (f FeedConfig) RefreshMargin() time.Duration {
	return time.Duration(f.RefreshMarginSeconds) * time.Second
}

// Timeout is the overall deadline for one aggregation, zero when unset.
func (f FeedConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	FrontendURL    string   `toml:"frontend_url"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Addr joins host and port into a listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values from [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects negative feed tuning values.
func (c *Config) Validate() error {
	f := c.Feed
	switch {
	case f.MaxPerChannel < 0:
		return fmt.Errorf("%w: feed.max_per_channel must not be negative", ErrInvalidConfig)
	case f.BackoffSeconds < 0:
		return fmt.Errorf("%w: feed.backoff_seconds must not be negative", ErrInvalidConfig)
	case f.RefreshMarginSeconds < 0:
		return fmt.Errorf("%w: feed.refresh_margin_seconds must not be negative", ErrInvalidConfig)
	case f.MaxConcurrency < 0:
		return fmt.Errorf("%w: feed.max_concurrency must not be negative", ErrInvalidConfig)
	case f.RequestsPerSecond < 0:
		return fmt.Errorf("%w: feed.requests_per_second must not be negative", ErrInvalidConfig)
	case f.TimeoutSeconds < 0:
		return fmt.Errorf("%w: feed.timeout_seconds must not be negative", ErrInvalidConfig)
	}
	return nil
}

// LoadEnv reads .env style files into the process environment. Missing files are skipped,
// and variables already set in the environment win.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides credentials and the database path from environment variables.
func (c *Config) ApplyEnv() {
	for name, dst := range map[string]*string{
		"GOOGLE_CLIENT_ID":     &c.Credentials.Google.ClientID,
		"GOOGLE_CLIENT_SECRET": &c.Credentials.Google.ClientSecret,
		"REDIRECT_URI":         &c.Credentials.Google.RedirectURI,
		"YOUTUBE_API_KEY":      &c.Credentials.YouTube.APIKey,
		"SUBFEED_DATABASE":     &c.Database.Path,
	} {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
}
