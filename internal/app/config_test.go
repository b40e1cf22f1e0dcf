package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigFile_YAML(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "fictracker.yaml")
	content := `
output: out.json
concurrency: 2
fichubURL: http://fichub.local
fetch:
  timeout: 20s
  maxConcurrent: 3
  rateLimit: 1.5
cache:
  dir: .cache
  maxAge: 24h
  strictPerms: true
`
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fc, err := LoadConfigFile(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cfg := DefaultConfig()
	ApplyFileConfig(&cfg, fc)
	if cfg.OutputPath != "out.json" || cfg.Concurrency != 2 || cfg.FicHubURL != "http://fichub.local" {
		t.Fatalf("top-level values not applied: %+v", cfg)
	}
	if cfg.Fetch.Timeout != 20*time.Second || cfg.Fetch.MaxConcurrent != 3 || cfg.Fetch.RateLimit != 1.5 {
		t.Fatalf("fetch values not applied: %+v", cfg.Fetch)
	}
	if cfg.Fetch.RedirectMaxHops != DefaultConfig().Fetch.RedirectMaxHops {
		t.Fatalf("absent values must keep defaults")
	}
	if cfg.Cache.Dir != ".cache" || cfg.Cache.MaxAge != 24*time.Hour || !cfg.Cache.StrictPerms {
		t.Fatalf("cache values not applied: %+v", cfg.Cache)
	}
}

func TestLoadConfigFile_JSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "fictracker.json")
	if err := os.WriteFile(p, []byte(`{"listen": ":9090", "chapters": true, "fetch": {"redirectMaxHops": 2}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fc, err := LoadConfigFile(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := DefaultConfig()
	ApplyFileConfig(&cfg, fc)
	if cfg.ListenAddr != ":9090" || !cfg.ChaptersOnly || cfg.Fetch.RedirectMaxHops != 2 {
		t.Fatalf("json values not applied: %+v", cfg)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	p := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(p, []byte("fetch: [unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfigFile(p); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	ok := DefaultConfig()
	ok.URLs = []string{"https://archiveofourown.org/works/1"}
	if err := ValidateConfig(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	serve := DefaultConfig()
	serve.Serve = true
	if err := ValidateConfig(serve); err != nil {
		t.Fatalf("serve mode needs no URLs: %v", err)
	}

	tests := map[string]func(*Config){
		"no urls":            func(c *Config) { c.URLs = nil },
		"negative workers":   func(c *Config) { c.Concurrency = -1 },
		"negative timeout":   func(c *Config) { c.Fetch.Timeout = -time.Second },
		"negative rate":      func(c *Config) { c.Fetch.RateLimit = -1 },
		"relative fichub":    func(c *Config) { c.FicHubURL = "fichub.net" },
		"ftp mirror":         func(c *Config) { c.AO3BaseURL = "ftp://mirror" },
		"serve without addr": func(c *Config) { c.Serve = true; c.ListenAddr = " " },
	}
	for name, mutate := range tests {
		cfg := ok
		mutate(&cfg)
		if err := ValidateConfig(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDefaultUserAgent(t *testing.T) {
	if ua := DefaultUserAgent(); !strings.HasPrefix(ua, "fictracker/"+BuildVersion) {
		t.Fatalf("unexpected user agent %q", ua)
	}
}
