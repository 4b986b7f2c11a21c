package scraper

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"leadscout/internal/lead"
	"leadscout/internal/logging"
)

// Options controls pagination and pacing.
type Options struct {
	BaseURL   string
	PageDelay time.Duration
	JitterMin time.Duration
	JitterMax time.Duration
	MaxPages  int
}

// Query is a single search request.
type Query struct {
	Role     string
	Location string
	Pages    int
}

// Scraper walks search result pages and collects job cards.
type Scraper struct {
	fetcher Fetcher
	opts    Options
	logger  *zap.Logger
	sleep   func(context.Context, time.Duration) error
}

// New creates a Scraper.
func New(f Fetcher, opts Options, logger *zap.Logger) *Scraper {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	if opts.JitterMax < opts.JitterMin {
		opts.JitterMax = opts.JitterMin
	}
	return &Scraper{
		fetcher: f,
		opts:    opts,
		logger:  logging.For(logger, logging.CategoryScraper),
		sleep:   sleepCtx,
	}
}

// Scrape fetches up to q.Pages pages (capped at MaxPages). It stops early on
// an empty page or a page that yields no unseen URLs. Jobs keep the order
// they were found in and each URL appears once.
func (s *Scraper) Scrape(ctx context.Context, q Query) ([]lead.Job, error) {
	if strings.TrimSpace(q.Role) == "" {
		return nil, fmt.Errorf("%w: role is required", lead.ErrInvalidInput)
	}
	if q.Pages < 1 {
		return nil, fmt.Errorf("%w: pages must be at least 1", lead.ErrInvalidInput)
	}
	pages := min(q.Pages, s.opts.MaxPages)

	timer := logging.StartTimer(s.logger, "scrape")
	defer timer.Stop()

	var jobs []lead.Job
	seen := make(map[string]bool)

	for page := 1; page <= pages; page++ {
		if err := s.sleep(ctx, s.jitter()); err != nil {
			return jobs, err
		}

		url := SearchURL(s.opts.BaseURL, q.Role, q.Location, page)
		body, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			return jobs, fmt.Errorf("scrape page %d: %w", page, err)
		}

		cards, err := ParseJobCards(s.opts.BaseURL, strings.NewReader(body))
		if err != nil {
			return jobs, fmt.Errorf("scrape page %d: %w", page, err)
		}
		if len(cards) == 0 {
			s.logger.Debug("empty results page", zap.Int("page", page))
			break
		}

		added := 0
		for _, c := range cards {
			if seen[c.AdURL] {
				continue
			}
			seen[c.AdURL] = true
			jobs = append(jobs, c)
			added++
		}
		s.logger.Debug("page scraped",
			zap.Int("page", page),
			zap.Int("cards", len(cards)),
			zap.Int("new", added))
		if added == 0 {
			break
		}

		if page < pages {
			if err := s.sleep(ctx, s.opts.PageDelay); err != nil {
				return jobs, err
			}
		}
	}

	s.logger.Info("scrape finished",
		zap.String("role", q.Role),
		zap.String("location", q.Location),
		zap.Int("jobs", len(jobs)))
	return jobs, nil
}

func (s *Scraper) jitter() time.Duration {
	lo, hi := s.opts.JitterMin, s.opts.JitterMax
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
