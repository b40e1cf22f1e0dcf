package app

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the single-file configuration schema. JSON files parse too,
// since JSON is valid YAML.
type FileConfig struct {
	Output      string `yaml:"output"`
	Chapters    bool   `yaml:"chapters"`
	Concurrency int    `yaml:"concurrency"`
	Listen      string `yaml:"listen"`
	UserAgent   string `yaml:"userAgent"`
	FicHubURL   string `yaml:"fichubURL"`
	AO3BaseURL  string `yaml:"ao3BaseURL"`
	Verbose     bool   `yaml:"verbose"`

	Fetch FetchConfig `yaml:"fetch"`
	Cache CacheConfig `yaml:"cache"`
}

// LoadConfigFile reads a YAML or JSON config file.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

// ApplyFileConfig overlays the non-zero values of fc onto cfg.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	setString(&cfg.OutputPath, fc.Output)
	setString(&cfg.ListenAddr, fc.Listen)
	setString(&cfg.UserAgent, fc.UserAgent)
	setString(&cfg.FicHubURL, fc.FicHubURL)
	setString(&cfg.AO3BaseURL, fc.AO3BaseURL)
	setString(&cfg.Cache.Dir, fc.Cache.Dir)
	if fc.Chapters {
		cfg.ChaptersOnly = true
	}
	if fc.Verbose {
		cfg.Verbose = true
	}
	if fc.Concurrency > 0 {
		cfg.Concurrency = fc.Concurrency
	}

	if fc.Fetch.Timeout > 0 {
		cfg.Fetch.Timeout = fc.Fetch.Timeout
	}
	if fc.Fetch.MaxConcurrent > 0 {
		cfg.Fetch.MaxConcurrent = fc.Fetch.MaxConcurrent
	}
	if fc.Fetch.RateLimit > 0 {
		cfg.Fetch.RateLimit = fc.Fetch.RateLimit
	}
	if fc.Fetch.MaxBodyBytes > 0 {
		cfg.Fetch.MaxBodyBytes = fc.Fetch.MaxBodyBytes
	}
	if fc.Fetch.RedirectMaxHops > 0 {
		cfg.Fetch.RedirectMaxHops = fc.Fetch.RedirectMaxHops
	}

	if fc.Cache.MaxAge > 0 {
		cfg.Cache.MaxAge = fc.Cache.MaxAge
	}
	if fc.Cache.Clear {
		cfg.Cache.Clear = true
	}
	if fc.Cache.StrictPerms {
		cfg.Cache.StrictPerms = true
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
