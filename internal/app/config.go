package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds runtime configuration for the application.
//
// Sources are layered defaults < config file < environment < flags. The env
// tags are read with the FICTRACKER_ prefix, e.g. FICTRACKER_FETCH_TIMEOUT.
type Config struct {
	// URLs to extract in CLI mode. Not read from file or env.
	URLs []string `yaml:"-"`

	OutputPath   string `yaml:"output" env:"OUTPUT"`
	ChaptersOnly bool   `yaml:"chapters" env:"CHAPTERS"`
	// Concurrency bounds how many URLs the CLI extracts at once.
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`

	Serve      bool   `yaml:"serve" env:"SERVE"`
	ListenAddr string `yaml:"listen" env:"LISTEN_ADDR"`

	UserAgent string `yaml:"userAgent" env:"USER_AGENT"`
	FicHubURL string `yaml:"fichubURL" env:"FICHUB_URL"`
	// AO3BaseURL points the AO3 adapter at a mirror. Empty uses the archive.
	AO3BaseURL string `yaml:"ao3BaseURL" env:"AO3_BASE_URL"`

	Fetch FetchConfig `yaml:"fetch" envPrefix:"FETCH_"`
	Cache CacheConfig `yaml:"cache" envPrefix:"CACHE_"`

	Verbose bool `yaml:"verbose" env:"VERBOSE"`
}

// FetchConfig tunes outbound requests.
type FetchConfig struct {
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxConcurrent   int           `yaml:"maxConcurrent" env:"MAX_CONCURRENT"`
	RateLimit       float64       `yaml:"rateLimit" env:"RATE_LIMIT"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes" env:"MAX_BODY_BYTES"`
	RedirectMaxHops int           `yaml:"redirectMaxHops" env:"REDIRECT_MAX_HOPS"`
}

// CacheConfig controls the optional on-disk page cache. An empty Dir
// disables caching so every extraction fetches fresh pages.
type CacheConfig struct {
	Dir         string        `yaml:"dir" env:"DIR"`
	MaxAge      time.Duration `yaml:"maxAge" env:"MAX_AGE"`
	Clear       bool          `yaml:"clear" env:"CLEAR"`
	StrictPerms bool          `yaml:"strictPerms" env:"STRICT_PERMS"`
}

const (
	defaultConcurrency = 4
	defaultListenAddr  = ":8080"
	defaultFicHubURL   = "https://fichub.net"
	defaultTimeout     = 45 * time.Second
	defaultMaxBody     = 64 << 20
	defaultRedirects   = 5
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: defaultConcurrency,
		ListenAddr:  defaultListenAddr,
		UserAgent:   DefaultUserAgent(),
		FicHubURL:   defaultFicHubURL,
		Fetch: FetchConfig{
			Timeout:         defaultTimeout,
			MaxConcurrent:   8,
			MaxBodyBytes:    defaultMaxBody,
			RedirectMaxHops: defaultRedirects,
		},
	}
}

// ValidateConfig performs minimal schema validation.
func ValidateConfig(cfg Config) error {
	if cfg.Concurrency < 0 || cfg.Fetch.MaxConcurrent < 0 || cfg.Fetch.RedirectMaxHops < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	if cfg.Fetch.Timeout < 0 || cfg.Fetch.RateLimit < 0 || cfg.Fetch.MaxBodyBytes < 0 || cfg.Cache.MaxAge < 0 {
		return errors.New("config: negative durations or sizes are not allowed")
	}
	for name, raw := range map[string]string{"fichubURL": cfg.FicHubURL, "ao3BaseURL": cfg.AO3BaseURL} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config: %s must be an absolute http(s) URL, got %q", name, raw)
		}
	}
	if cfg.Serve && strings.TrimSpace(cfg.ListenAddr) == "" {
		return errors.New("config: listen address is required to serve")
	}
	if !cfg.Serve && len(cfg.URLs) == 0 {
		return errors.New("config: at least one URL is required")
	}
	return nil
}
