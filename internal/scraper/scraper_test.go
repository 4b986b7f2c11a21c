package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscout/internal/lead"
)

type fakeFetcher struct {
	pages map[string]string
	err   error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return "", f.err
	}
	return f.pages[url], nil
}

func cards(ids ...int) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for _, id := range ids {
		fmt.Fprintf(&sb, `<a href="/job/%d">Electrician %d - Sparks Co</a>`, id, id)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

const testBase = "https://jobs.example"

func newTestScraper(f Fetcher, maxPages int) (*Scraper, *[]time.Duration) {
	s := New(f, Options{BaseURL: testBase, PageDelay: time.Second, JitterMin: 10 * time.Millisecond, JitterMax: 20 * time.Millisecond, MaxPages: maxPages}, nil)
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return s, &slept
}

func TestScrapeCollectsAcrossPages(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		SearchURL(testBase, "electrician", "Adelaide", 1): cards(1, 2),
		SearchURL(testBase, "electrician", "Adelaide", 2): cards(2, 3),
		SearchURL(testBase, "electrician", "Adelaide", 3): cards(4),
	}}
	s, slept := newTestScraper(f, 10)

	jobs, err := s.Scrape(context.Background(), Query{Role: "electrician", Location: "Adelaide", Pages: 3})
	require.NoError(t, err)

	var urls []string
	for _, j := range jobs {
		urls = append(urls, j.AdURL)
	}
	assert.Equal(t, []string{testBase + "/job/1", testBase + "/job/2", testBase + "/job/3", testBase + "/job/4"}, urls)
	assert.Len(t, f.calls, 3)
	// jitter before each of 3 fetches plus a delay between pages
	assert.Len(t, *slept, 5)
}

func TestScrapeStopsOnEmptyPage(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		SearchURL(testBase, "electrician", "", 1): cards(1),
		SearchURL(testBase, "electrician", "", 2): "<html></html>",
	}}
	s, _ := newTestScraper(f, 10)

	jobs, err := s.Scrape(context.Background(), Query{Role: "electrician", Pages: 5})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.Len(t, f.calls, 2)
}

func TestScrapeStopsWhenNothingNew(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		SearchURL(testBase, "electrician", "", 1): cards(1, 2),
		SearchURL(testBase, "electrician", "", 2): cards(2, 1),
	}}
	s, _ := newTestScraper(f, 10)

	jobs, err := s.Scrape(context.Background(), Query{Role: "electrician", Pages: 5})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.Len(t, f.calls, 2)
}

func TestScrapeCapsPages(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{}}
	for i := 1; i <= 5; i++ {
		f.pages[SearchURL(testBase, "electrician", "", i)] = cards(i)
	}
	s, _ := newTestScraper(f, 2)

	jobs, err := s.Scrape(context.Background(), Query{Role: "electrician", Pages: 5})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.Len(t, f.calls, 2)
}

func TestScrapeValidation(t *testing.T) {
	s, _ := newTestScraper(&fakeFetcher{}, 10)

	_, err := s.Scrape(context.Background(), Query{Role: "", Pages: 1})
	assert.ErrorIs(t, err, lead.ErrInvalidInput)

	_, err = s.Scrape(context.Background(), Query{Role: "electrician", Pages: 0})
	assert.ErrorIs(t, err, lead.ErrInvalidInput)
}

func TestScrapeFetchError(t *testing.T) {
	f := &fakeFetcher{err: lead.ErrForbidden}
	s, _ := newTestScraper(f, 10)

	_, err := s.Scrape(context.Background(), Query{Role: "electrician", Pages: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, lead.ErrForbidden)
	assert.Contains(t, err.Error(), "scrape page 1")
}

func TestScrapeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeFetcher{}
	s := New(f, Options{BaseURL: testBase, JitterMin: time.Hour, JitterMax: time.Hour, MaxPages: 1}, nil)

	_, err := s.Scrape(ctx, Query{Role: "electrician", Pages: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.calls)
}

func TestHTTPFetcherSendsBrowserHeaders(t *testing.T) {
	var gotUA, gotLang, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		gotReferer = r.Header.Get("Referer")
		_, _ = w.Write([]byte(cards(7)))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, nil)
	body, err := f.Fetch(context.Background(), srv.URL+"/jobs?keywords=x")
	require.NoError(t, err)

	assert.Contains(t, body, "/job/7")
	assert.Contains(t, DefaultUserAgents, gotUA)
	assert.Equal(t, "en-US,en;q=0.9", gotLang)
	assert.Equal(t, srv.URL+"/", gotReferer)
}

func TestHTTPFetcherForbiddenIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{BaseURL: srv.URL, Retry: RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond}}, nil)
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, lead.ErrForbidden)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{BaseURL: srv.URL, Retry: RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond}}, nil)
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPFetcherRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{BaseURL: srv.URL, Retry: RetryConfig{MaxRetries: 1, InitialBackoff: time.Millisecond}}, nil)
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestFallbackFetcher(t *testing.T) {
	primaryErr := lead.ErrForbidden
	browser := &fakeFetcher{pages: map[string]string{"u": "rendered"}}

	t.Run("primary ok", func(t *testing.T) {
		f := &FallbackFetcher{Primary: &fakeFetcher{pages: map[string]string{"u": "plain"}}, Browser: browser}
		body, err := f.Fetch(context.Background(), "u")
		require.NoError(t, err)
		assert.Equal(t, "plain", body)
	})

	t.Run("falls back to browser", func(t *testing.T) {
		f := &FallbackFetcher{Primary: &fakeFetcher{err: primaryErr}, Browser: browser}
		body, err := f.Fetch(context.Background(), "u")
		require.NoError(t, err)
		assert.Equal(t, "rendered", body)
	})

	t.Run("no browser", func(t *testing.T) {
		f := &FallbackFetcher{Primary: &fakeFetcher{err: primaryErr}}
		_, err := f.Fetch(context.Background(), "u")
		assert.ErrorIs(t, err, lead.ErrForbidden)
	})

	t.Run("both fail", func(t *testing.T) {
		browserErr := errors.New("chrome crashed")
		f := &FallbackFetcher{Primary: &fakeFetcher{err: primaryErr}, Browser: &fakeFetcher{err: browserErr}}
		_, err := f.Fetch(context.Background(), "u")
		require.Error(t, err)
		assert.ErrorIs(t, err, lead.ErrForbidden)
		assert.ErrorIs(t, err, browserErr)
		assert.Contains(t, err.Error(), "both plain HTTP and browser fetch failed")
	})
}

func TestCalculateBackoffCapped(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, calculateBackoff(cfg, 0))
	assert.Equal(t, 200*time.Millisecond, calculateBackoff(cfg, 1))
	assert.Equal(t, 300*time.Millisecond, calculateBackoff(cfg, 2))
}
