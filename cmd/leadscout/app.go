package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"leadscout/internal/browser"
	"leadscout/internal/config"
	"leadscout/internal/enrich"
	"leadscout/internal/logging"
	"leadscout/internal/pipeline"
	"leadscout/internal/scraper"
	"leadscout/internal/store"
)

// app holds the wired components shared by serve, scrape and export.
type app struct {
	pipeline *pipeline.Service
	store    *store.SQLiteStore // nil when no store is configured
	browser  *browser.Manager   // nil when the fallback is disabled
}

// newApp opens the store and builds the pipeline described by c.
func newApp(ctx context.Context, c *config.Config, logger *zap.Logger) (*app, error) {
	boot := logging.For(logger, logging.CategoryBoot)
	a := &app{}

	opts := pipeline.Options{
		SkipDB:      c.Store.SkipDB,
		Concurrency: c.LLM.Concurrency,
		Logger:      logger,
	}

	if c.StoreConfigured() {
		st, err := store.Open(c.Store.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open lead store: %w", err)
		}
		a.store = st
		opts.Store = st
		boot.Info("lead store opened", zap.String("path", st.Path()), zap.Bool("skip_db", c.Store.SkipDB))
	} else {
		boot.Warn("lead store not configured; leads will not be persisted")
	}

	completer, err := enrich.NewCompleter(ctx, c.LLM, logger)
	if err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	opts.Processor = enrich.NewProcessor(completer, logger)
	opts.LLMConfigured = completer != nil
	if provider, _ := c.LLM.GetActiveProvider(); provider != "" {
		boot.Info("LLM enrichment enabled", zap.String("provider", provider))
	} else {
		boot.Info("no LLM configured; using heuristic enrichment")
	}

	if c.Ingest.Enabled && completer != nil {
		opts.Extractor = enrich.NewExtractor(completer, c.Ingest.Rules, logger)
	}

	opts.Source = a.newScraper(c, logger)
	a.pipeline = pipeline.New(opts)
	return a, nil
}

func (a *app) newScraper(c *config.Config, logger *zap.Logger) *scraper.Scraper {
	retry := scraper.DefaultRetryConfig()
	retry.MaxRetries = c.Scraper.MaxRetries

	var fetcher scraper.Fetcher = scraper.NewHTTPFetcher(scraper.HTTPFetcherConfig{
		BaseURL:    c.Scraper.BaseURL,
		Timeout:    c.Scraper.GetHTTPTimeout(),
		UserAgents: c.Scraper.UserAgents,
		Retry:      retry,
	}, logger)

	if !c.Browser.Disabled {
		a.browser = browser.NewManager(browserConfig(c), logger)
		fetcher = &scraper.FallbackFetcher{Primary: fetcher, Browser: a.browser, Logger: logger}
	}

	jitterMin, jitterMax := c.Scraper.GetJitter()
	return scraper.New(fetcher, scraper.Options{
		BaseURL:   c.Scraper.BaseURL,
		PageDelay: c.Scraper.GetPageDelay(),
		JitterMin: jitterMin,
		JitterMax: jitterMax,
		MaxPages:  c.Scraper.MaxPages,
	}, logger)
}

func browserConfig(c *config.Config) browser.Config {
	return browser.Config{
		Disabled:          c.Browser.Disabled,
		Bin:               c.Browser.Bin,
		Flags:             c.Browser.Flags,
		NoSandbox:         c.Browser.NoSandbox,
		NavigationTimeout: c.Browser.GetNavigationTimeout(),
		UserAgents:        c.Scraper.UserAgents,
	}
}

// close releases the browser and the store.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.browser != nil {
		if err := a.browser.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown browser: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
