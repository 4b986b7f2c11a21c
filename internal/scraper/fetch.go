package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"leadscout/internal/lead"
	"leadscout/internal/logging"
)

// Fetcher returns the HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// DefaultUserAgents is the pool HTTP and browser fetches rotate through.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
}

// RandomUserAgent picks from agents, falling back to DefaultUserAgents.
func RandomUserAgent(agents []string) string {
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	return agents[rand.IntN(len(agents))]
}

const maxPageBytes = 2 << 20

// HTTPFetcher fetches pages with a plain HTTP client dressed up as a browser.
type HTTPFetcher struct {
	client     *http.Client
	referer    string
	userAgents []string
	retry      RetryConfig
	logger     *zap.Logger
}

// HTTPFetcherConfig configures an HTTPFetcher.
type HTTPFetcherConfig struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgents []string
	Retry      RetryConfig
	Client     *http.Client
}

// NewHTTPFetcher creates a plain HTTP fetcher.
func NewHTTPFetcher(cfg HTTPFetcherConfig, logger *zap.Logger) *HTTPFetcher {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPFetcher{
		client:     client,
		referer:    strings.TrimRight(cfg.BaseURL, "/") + "/",
		userAgents: cfg.UserAgents,
		retry:      cfg.Retry,
		logger:     logging.For(logger, logging.CategoryScraper),
	}
}

// Fetch GETs url, retrying transient failures. A 403 is returned as
// lead.ErrForbidden without retrying.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	return WithRetry(ctx, f.retry, f.logger, "fetch "+url, func(ctx context.Context) (string, error) {
		return f.fetchOnce(ctx, url)
	})
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", Permanent(err)
	}
	req.Header.Set("User-Agent", RandomUserAgent(f.userAgents))
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", f.referer)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return "", Permanent(lead.ErrForbidden)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", Permanent(fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(body), nil
}

// FallbackFetcher tries Primary and falls back to Browser when Primary fails.
// Browser may be nil, in which case Primary errors are returned unchanged.
type FallbackFetcher struct {
	Primary Fetcher
	Browser Fetcher
	Logger  *zap.Logger
}

// Fetch implements Fetcher.
func (f *FallbackFetcher) Fetch(ctx context.Context, url string) (string, error) {
	body, err := f.Primary.Fetch(ctx, url)
	if err == nil {
		return body, nil
	}
	if f.Browser == nil || ctx.Err() != nil {
		return "", err
	}

	logger := logging.For(f.Logger, logging.CategoryScraper)
	logger.Info("plain fetch failed, using browser",
		zap.String("url", url),
		zap.Bool("forbidden", errors.Is(err, lead.ErrForbidden)),
		zap.Error(err))
	logging.Audit(f.Logger, logging.AuditBrowserFetch, zap.String("url", url))

	body, berr := f.Browser.Fetch(ctx, url)
	if berr != nil {
		return "", fmt.Errorf("both plain HTTP and browser fetch failed: %w", errors.Join(err, berr))
	}
	return body, nil
}
