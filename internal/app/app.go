package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Zareix/fictracker/internal/cache"
	"github.com/Zareix/fictracker/internal/extractor"
	"github.com/Zareix/fictracker/internal/fetch"
	"github.com/Zareix/fictracker/internal/server"
	"github.com/Zareix/fictracker/internal/sites/ao3"
	"github.com/Zareix/fictracker/internal/sites/fichub"
)

type App struct {
	cfg      Config
	fetcher  *fetch.Client
	registry *extractor.Registry
	out      io.Writer
}

// New wires the fetch client, optional cache and site registry.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	fetcher := &fetch.Client{
		HTTPClient:        newHTTPClient(cfg.Fetch.Timeout),
		UserAgent:         cfg.UserAgent,
		PerRequestTimeout: cfg.Fetch.Timeout,
		RedirectMaxHops:   cfg.Fetch.RedirectMaxHops,
		MaxConcurrent:     cfg.Fetch.MaxConcurrent,
		RateLimit:         cfg.Fetch.RateLimit,
		MaxBodyBytes:      cfg.Fetch.MaxBodyBytes,
	}
	if cfg.Cache.Dir != "" {
		if cfg.Cache.Clear {
			if err := cache.ClearDir(cfg.Cache.Dir); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("dir", cfg.Cache.Dir).Msg("cache clear failed")
			}
		}
		if cfg.Cache.MaxAge > 0 {
			n, err := cache.PurgeHTTPCacheByAge(cfg.Cache.Dir, cfg.Cache.MaxAge)
			if err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("dir", cfg.Cache.Dir).Msg("cache purge failed")
			} else if n > 0 {
				log.Ctx(ctx).Debug().Int("removed", n).Msg("purged expired cache entries")
			}
		}
		fetcher.Cache = &cache.HTTPCache{Dir: cfg.Cache.Dir, StrictPerms: cfg.Cache.StrictPerms}
	}

	registry, err := extractor.NewRegistry(Routes(cfg, fetcher)...)
	if err != nil {
		return nil, fmt.Errorf("register sites: %w", err)
	}
	return &App{cfg: cfg, fetcher: fetcher, registry: registry, out: os.Stdout}, nil
}

// Routes returns the site table in lookup order.
func Routes(cfg Config, f *fetch.Client) []extractor.Route {
	ffn := fichub.New(f, fichub.FanFictionNet)
	ffn.BaseURL = cfg.FicHubURL
	ffn.MaxBundleBytes = cfg.Fetch.MaxBodyBytes
	fp := fichub.New(f, fichub.FictionPress)
	fp.BaseURL = cfg.FicHubURL
	fp.MaxBundleBytes = cfg.Fetch.MaxBodyBytes
	archive := ao3.New(f)
	archive.BaseURL = cfg.AO3BaseURL

	return []extractor.Route{
		{Name: ao3.Website, Hosts: ao3.Hosts, Adapter: archive},
		{Name: fichub.FanFictionNet.Website, Hosts: fichub.FanFictionNet.Hosts, Adapter: ffn},
		{Name: fichub.FictionPress.Website, Hosts: fichub.FictionPress.Hosts, Adapter: fp},
	}
}

// Registry exposes the site registry.
func (a *App) Registry() *extractor.Registry { return a.registry }

func (a *App) Close() {
	if t, ok := a.fetcher.HTTPClient.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// Run either serves HTTP until ctx is done or extracts cfg.URLs and writes
// them as a JSON array.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Serve {
		return a.serve(ctx)
	}

	var results any
	if a.cfg.ChaptersOnly {
		results = a.collect(ctx, func(ctx context.Context, u string) any {
			return a.registry.ExtractFanficChapters(ctx, u)
		})
	} else {
		results = a.collect(ctx, func(ctx context.Context, u string) any {
			return a.registry.ExtractFanficData(ctx, u)
		})
	}

	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	b = append(b, '\n')
	if a.cfg.OutputPath == "" || a.cfg.OutputPath == "-" {
		_, err = a.out.Write(b)
		return err
	}
	if err := os.WriteFile(a.cfg.OutputPath, b, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	log.Ctx(ctx).Info().Str("out", a.cfg.OutputPath).Int("count", len(a.cfg.URLs)).Msg("wrote results")
	return nil
}

// collect runs fn over every URL with bounded parallelism and keeps input order.
func (a *App) collect(ctx context.Context, fn func(context.Context, string) any) []any {
	results := make([]any, len(a.cfg.URLs))
	limit := a.cfg.Concurrency
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, u := range a.cfg.URLs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, u string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = fn(ctx, u)
		}(i, u)
	}
	wg.Wait()
	return results
}

func (a *App) serve(ctx context.Context) error {
	srv := server.New(a.registry, a.cfg.ListenAddr)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Ctx(ctx).Info().Msg("shutting down")
		if err := srv.Shutdown(10 * time.Second); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
