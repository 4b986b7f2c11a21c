//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscout/internal/browser"
)

func TestManagerFetch_Integration(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprintln(w, `<html><body><a href="/job/1">Electrician - Sparks Co</a><script>document.body.dataset.ready="yes"</script></body></html>`)
	}))
	defer ts.Close()

	cfg := browser.Config{NoSandbox: true, NavigationTimeout: 10 * time.Second}
	m := browser.NewManager(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	defer func() { _ = m.Shutdown(context.Background()) }()

	html, err := m.Fetch(ctx, ts.URL)
	require.NoError(t, err)
	assert.Contains(t, html, "/job/1")
	assert.Contains(t, html, `data-ready="yes"`)
	assert.Contains(t, gotUA, "Chrome/117")

	// second fetch reuses the running browser
	_, err = m.Fetch(ctx, ts.URL)
	require.NoError(t, err)
}
