// Package api exposes the lead pipeline over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"leadscout/internal/enrich"
	"leadscout/internal/lead"
	"leadscout/internal/logging"
	"leadscout/internal/pipeline"
	"leadscout/internal/store"
)

const maxBodyBytes = 1 << 20

// Pipeline is the part of pipeline.Service the handlers call.
type Pipeline interface {
	Scrape(ctx context.Context, req pipeline.ScrapeRequest) (pipeline.ScrapeResult, error)
	Ingest(ctx context.Context, p enrich.IngestPayload) (pipeline.IngestResult, error)
}

// Handlers serves the HTTP routes. Store may be nil. Handlers log through
// the request-scoped logger installed by RequestID.
type Handlers struct {
	pipeline Pipeline
	store    store.LeadStore
	now      func() time.Time
}

// NewHandlers creates Handlers.
func NewHandlers(p Pipeline, st store.LeadStore) *Handlers {
	return &Handlers{pipeline: p, store: st, now: time.Now}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Scrape runs the scrape pipeline. Omitted body fields take their defaults.
func (h *Handlers) Scrape(w http.ResponseWriter, r *http.Request) {
	req := pipeline.DefaultScrapeRequest()
	if err := decodeBody(w, r, &req, true); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Pages < 1 {
		writeDetail(w, http.StatusBadRequest, "pages must be at least 1")
		return
	}

	log := logging.FromContext(r.Context())
	log.Info("starting scrape",
		zap.String("role", req.Role), zap.String("location", req.Location), zap.Int("pages", req.Pages))
	res, err := h.pipeline.Scrape(r.Context(), req)
	if err != nil {
		log.Error("scrape failed", zap.Error(err))
		h.writeError(w, err, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Leads lists stored leads, newest first, filtered by role, town and state.
func (h *Handlers) Leads(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	q := r.URL.Query()
	leads, err := h.store.List(r.Context(), lead.Filter{
		Role:  q.Get("role"),
		Town:  q.Get("town"),
		State: q.Get("state"),
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("list leads failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to fetch leads from database.")
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

// Metrics summarises stored leads.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	m, err := h.store.Metrics(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("metrics failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to fetch metrics from database.")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Export streams every lead as a CSV attachment, or 204 when there are none.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	leads, err := h.store.All(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("export failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to export leads.")
		return
	}
	if len(leads) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var buf bytes.Buffer
	if err := lead.WriteCSV(&buf, leads); err != nil {
		logging.FromContext(r.Context()).Error("export failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to export leads.")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+lead.ExportFilename(h.now()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Ingest extracts and stores a lead from a forwarded email.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	var p enrich.IngestPayload
	if err := decodeBody(w, r, &p, false); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	log := logging.FromContext(r.Context())
	log.Info("ingestion request received")
	res, err := h.pipeline.Ingest(r.Context(), p)
	if err != nil {
		if !errors.Is(err, lead.ErrIngestDisabled) && !errors.Is(err, lead.ErrInvalidInput) {
			log.Error("ingestion failed", zap.Error(err))
		}
		h.writeError(w, err, "Ingestion error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) requireStore(w http.ResponseWriter) bool {
	if h.store == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Lead store is not configured.")
		return false
	}
	return true
}

// writeError maps sentinel errors to status codes; anything else is a 500
// carrying fallback as its detail.
func (h *Handlers) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, lead.ErrInvalidInput):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lead.ErrIngestDisabled):
		writeDetail(w, http.StatusNotImplemented, "Email ingestion is not enabled in this build.")
	case errors.Is(err, lead.ErrNotConfigured):
		writeDetail(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nobody is reading the response.
		w.WriteHeader(499)
	default:
		writeDetail(w, http.StatusInternalServerError, fallback)
	}
}

// decodeBody reads a JSON body into dst. An empty body is accepted only
// when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errors.New("request body too large or unreadable")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if allowEmpty {
			return nil
		}
		return errors.New("request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
