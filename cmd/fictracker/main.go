package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Zareix/fictracker/internal/app"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.DefaultContextLogger = &log.Logger

	if err := app.LoadEnvFiles(app.DefaultEnvFiles...); err != nil {
		log.Warn().Err(err).Msg("dotenv load failed")
	}

	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(2)
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

// parseConfig resolves configuration from defaults, an optional config file,
// FICTRACKER_* environment variables and finally the flags the user set.
// Positional arguments are the work URLs to extract.
func parseConfig(args []string, stderr io.Writer) (app.Config, error) {
	fs := flag.NewFlagSet("fictracker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: fictracker [flags] <url>...\n       fictracker -serve [flags]\n\n")
		fs.PrintDefaults()
	}

	def := app.DefaultConfig()
	var (
		configPath string
		flagCfg    = def
	)
	fs.StringVar(&configPath, "config", os.Getenv(app.EnvPrefix+"CONFIG"), "Path to a YAML or JSON config file")
	fs.StringVar(&flagCfg.OutputPath, "output", "", "Write JSON results to this file instead of stdout")
	fs.BoolVar(&flagCfg.ChaptersOnly, "chapters", false, "Emit only chapter lists instead of full records")
	fs.IntVar(&flagCfg.Concurrency, "concurrency", def.Concurrency, "Number of URLs extracted at once")
	fs.BoolVar(&flagCfg.Serve, "serve", false, "Run the HTTP API instead of extracting positional URLs")
	fs.StringVar(&flagCfg.ListenAddr, "listen", def.ListenAddr, "HTTP listen address for -serve")
	fs.StringVar(&flagCfg.UserAgent, "ua", def.UserAgent, "User-Agent sent to fiction sites")
	fs.StringVar(&flagCfg.FicHubURL, "fichub.url", def.FicHubURL, "FicHub base URL")
	fs.StringVar(&flagCfg.AO3BaseURL, "ao3.url", "", "Fetch AO3 works from this mirror base URL")
	fs.DurationVar(&flagCfg.Fetch.Timeout, "fetch.timeout", def.Fetch.Timeout, "Per-request timeout")
	fs.IntVar(&flagCfg.Fetch.MaxConcurrent, "fetch.maxConcurrent", def.Fetch.MaxConcurrent, "Maximum in-flight HTTP requests (0 = unlimited)")
	fs.Float64Var(&flagCfg.Fetch.RateLimit, "fetch.rateLimit", 0, "Requests per second across all sites (0 = unlimited)")
	fs.StringVar(&flagCfg.Cache.Dir, "cache.dir", "", "Cache fetched pages in this directory (empty disables)")
	fs.DurationVar(&flagCfg.Cache.MaxAge, "cache.maxAge", 0, "Purge cache entries older than this before running (0 disables)")
	fs.BoolVar(&flagCfg.Cache.Clear, "cache.clear", false, "Clear the cache directory before running")
	fs.BoolVar(&flagCfg.Cache.StrictPerms, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	fs.BoolVar(&flagCfg.Verbose, "v", false, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return app.Config{}, err
	}

	cfg := def
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			return app.Config{}, err
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	if err := app.ApplyEnvOverrides(&cfg); err != nil {
		return app.Config{}, err
	}

	// Only flags given on the command line override file and env values.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			cfg.OutputPath = flagCfg.OutputPath
		case "chapters":
			cfg.ChaptersOnly = flagCfg.ChaptersOnly
		case "concurrency":
			cfg.Concurrency = flagCfg.Concurrency
		case "serve":
			cfg.Serve = flagCfg.Serve
		case "listen":
			cfg.ListenAddr = flagCfg.ListenAddr
		case "ua":
			cfg.UserAgent = flagCfg.UserAgent
		case "fichub.url":
			cfg.FicHubURL = flagCfg.FicHubURL
		case "ao3.url":
			cfg.AO3BaseURL = flagCfg.AO3BaseURL
		case "fetch.timeout":
			cfg.Fetch.Timeout = flagCfg.Fetch.Timeout
		case "fetch.maxConcurrent":
			cfg.Fetch.MaxConcurrent = flagCfg.Fetch.MaxConcurrent
		case "fetch.rateLimit":
			cfg.Fetch.RateLimit = flagCfg.Fetch.RateLimit
		case "cache.dir":
			cfg.Cache.Dir = flagCfg.Cache.Dir
		case "cache.maxAge":
			cfg.Cache.MaxAge = flagCfg.Cache.MaxAge
		case "cache.clear":
			cfg.Cache.Clear = flagCfg.Cache.Clear
		case "cache.strictPerms":
			cfg.Cache.StrictPerms = flagCfg.Cache.StrictPerms
		case "v":
			cfg.Verbose = flagCfg.Verbose
		}
	})
	cfg.URLs = fs.Args()

	if err := app.ValidateConfig(cfg); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg app.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	return a.Run(ctx)
}
