package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"leadscout/internal/enrich"
	"leadscout/internal/lead"
	"leadscout/internal/pipeline"
	"leadscout/internal/store"
)

type fakePipeline struct {
	scrapeReq  pipeline.ScrapeRequest
	scrapeRes  pipeline.ScrapeResult
	scrapeErr  error
	ingestRes  pipeline.IngestResult
	ingestErr  error
	gotPayload enrich.IngestPayload
}

func (f *fakePipeline) Scrape(_ context.Context, req pipeline.ScrapeRequest) (pipeline.ScrapeResult, error) {
	f.scrapeReq = req
	return f.scrapeRes, f.scrapeErr
}

func (f *fakePipeline) Ingest(_ context.Context, p enrich.IngestPayload) (pipeline.IngestResult, error) {
	f.gotPayload = p
	return f.ingestRes, f.ingestErr
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRouter(p Pipeline, st store.LeadStore) (http.Handler, *Handlers) {
	h := NewHandlers(p, st)
	h.now = func() time.Time { return time.Date(2025, 8, 17, 1, 0, 0, 0, time.UTC) }
	return NewRouter(h, []string{"*"}, nil), h
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["detail"]
}

func TestHealth(t *testing.T) {
	h, _ := newRouter(&fakePipeline{}, nil)
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDEchoed(t *testing.T) {
	h, _ := newRouter(&fakePipeline{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestRequestScopedLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := NewRouter(NewHandlers(&fakePipeline{}, nil), nil, zap.New(core))

	req := httptest.NewRequest(http.MethodPost, "/scrape", strings.NewReader("{}"))
	req.Header.Set("X-Request-ID", "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	for _, msg := range []string{"starting scrape", "request"} {
		entries := logs.FilterMessage(msg).All()
		require.Len(t, entries, 1, msg)
		assert.Equal(t, "req-42", entries[0].ContextMap()["request_id"], msg)
		assert.Equal(t, "api", entries[0].LoggerName, msg)
	}
}

func TestScrapeDefaultsAndResult(t *testing.T) {
	fp := &fakePipeline{scrapeRes: pipeline.ScrapeResult{Message: pipeline.MsgNoJobs}}
	h, _ := newRouter(fp, nil)

	rec := do(t, h, http.MethodPost, "/scrape", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pipeline.DefaultScrapeRequest(), fp.scrapeReq)
	assert.JSONEq(t, `{"message":"Scraping finished. No new jobs found.","new_leads_count":0}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/scrape", `{"role":"Plumber","pages":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pipeline.ScrapeRequest{Role: "Plumber", Location: "Adelaide", Pages: 3}, fp.scrapeReq)
}

func TestScrapeBadRequests(t *testing.T) {
	h, _ := newRouter(&fakePipeline{}, nil)

	rec := do(t, h, http.MethodPost, "/scrape", `{"pages":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "pages must be at least 1", detail(t, rec))

	rec = do(t, h, http.MethodPost, "/scrape", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/scrape", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestScrapeErrors(t *testing.T) {
	fp := &fakePipeline{scrapeErr: fmt.Errorf("scrape page 1: %w", lead.ErrForbidden)}
	h, _ := newRouter(fp, nil)
	rec := do(t, h, http.MethodPost, "/scrape", "{}")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "scrape page 1: forbidden by remote site", detail(t, rec))

	fp.scrapeErr = fmt.Errorf("%w: role is required", lead.ErrInvalidInput)
	rec = do(t, h, http.MethodPost, "/scrape", `{"role":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoreRoutesWithoutStore(t *testing.T) {
	h, _ := newRouter(&fakePipeline{}, nil)
	for _, path := range []string{"/leads", "/metrics", "/leads/export"} {
		rec := do(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func seed(t *testing.T, st *store.SQLiteStore) {
	t.Helper()
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, l := range []lead.Lead{
		{Company: "Sparks", RolesAdvertised: "Electrician", Location: "Adelaide SA", Priority: 2, Email: "a@sparks.test", Qualified: true},
		{Company: "Volt", RolesAdvertised: "Senior Electrician", Location: "Melbourne VIC", Priority: 4, Qualified: true, DuplicateFlag: true},
		{Company: "Pipes", RolesAdvertised: "Plumber", Location: "Adelaide SA", Priority: 2, Qualified: true},
	} {
		l.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, st.Insert(context.Background(), &l))
	}
}

func TestLeadsFiltering(t *testing.T) {
	st := newTestStore(t)
	seed(t, st)
	h, _ := newRouter(&fakePipeline{}, st)

	rec := do(t, h, http.MethodGet, "/leads", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var leads []lead.Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &leads))
	require.Len(t, leads, 3)
	assert.Equal(t, "Pipes", leads[0].Company)

	rec = do(t, h, http.MethodGet, "/leads?role=electrician&town=adelaide", "")
	require.Equal(t, http.StatusOK, rec.Code)
	leads = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &leads))
	require.Len(t, leads, 1)
	assert.Equal(t, "Sparks", leads[0].Company)

	rec = do(t, h, http.MethodGet, "/leads?state=NSW", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	st := newTestStore(t)
	seed(t, st)
	h, _ := newRouter(&fakePipeline{}, st)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_leads":3,"unique_leads":2,"high_priority_leads":1,"duplicates_found":1,"contacts_found":1}`, rec.Body.String())
}

func TestExport(t *testing.T) {
	st := newTestStore(t)
	h, _ := newRouter(&fakePipeline{}, st)

	rec := do(t, h, http.MethodGet, "/leads/export", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	seed(t, st)
	rec = do(t, h, http.MethodGet, "/leads/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=leads_2025-08-17.csv", rec.Header().Get("Content-Disposition"))

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, lead.CSVHeader, records[0])
	assert.Equal(t, "Pipes", records[1][5])
}

func TestIngestRoute(t *testing.T) {
	fp := &fakePipeline{ingestRes: pipeline.IngestResult{Status: pipeline.StatusDuplicate, LeadID: 7}}
	h, _ := newRouter(fp, nil)

	rec := do(t, h, http.MethodPost, "/ingest", `{"subject":"s","from_addr":"f","email_received_iso":"2025-08-17","body_markdown":"b"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"duplicate","lead_id":7}`, rec.Body.String())
	assert.Equal(t, "s", fp.gotPayload.Subject)

	rec = do(t, h, http.MethodPost, "/ingest", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		detail string
	}{
		{lead.ErrIngestDisabled, http.StatusNotImplemented, "Email ingestion is not enabled in this build."},
		{fmt.Errorf("%w: missing subject", lead.ErrInvalidInput), http.StatusBadRequest, "invalid input: missing subject"},
		{fmt.Errorf("lead store: %w", lead.ErrNotConfigured), http.StatusServiceUnavailable, "lead store: not configured"},
		{errors.New("model down"), http.StatusInternalServerError, "Ingestion error: model down"},
	}
	for _, tt := range tests {
		t.Run(tt.detail, func(t *testing.T) {
			h, _ := newRouter(&fakePipeline{ingestErr: tt.err}, nil)
			rec := do(t, h, http.MethodPost, "/ingest", `{"subject":"s"}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.detail, detail(t, rec))
		})
	}
}

func TestCORS(t *testing.T) {
	h, _ := newRouter(&fakePipeline{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/scrape", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "POST", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORSRestrictedOrigins(t *testing.T) {
	h := NewRouter(NewHandlers(&fakePipeline{}, nil), []string{"https://ok.example"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://ok.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://ok.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverPanic(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		RecoverPanic(zapNop()), RequestID(nil))
	rec := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error.", detail(t, rec))
}

func TestRoutesAreRegistered(t *testing.T) {
	h, _ := newRouter(&fakePipeline{}, nil)
	for _, r := range Routes() {
		rec := do(t, h, r.Method, r.Path, "")
		assert.NotEqual(t, http.StatusNotFound, rec.Code, r.Pattern())
		assert.NotEqual(t, http.StatusMethodNotAllowed, rec.Code, r.Pattern())
	}
}

func TestServerRunAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	h, _ := newRouter(&fakePipeline{}, nil)
	srv := NewServer(ServerConfig{Addr: ln.Addr().String(), ShutdownTimeout: time.Second}, h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerRunBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewServer(ServerConfig{Addr: ln.Addr().String()}, http.NotFoundHandler(), nil)
	err = srv.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
}

func zapNop() *zap.Logger { return zap.NewNop() }
