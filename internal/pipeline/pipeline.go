// Package pipeline orchestrates scraping, enrichment, deduplication and
// storage of leads, and the email ingestion path.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"leadscout/internal/enrich"
	"leadscout/internal/lead"
	"leadscout/internal/logging"
	"leadscout/internal/scraper"
	"leadscout/internal/store"
	"leadscout/internal/telemetry"
)

// Result messages.
const (
	MsgNoBackends      = "Scraping finished (no DB/AI configured)."
	MsgSkipDBProcessed = "Scraping finished (SKIP_DB). Processed jobs returned."
	MsgSkipDBRaw       = "Scraping finished (SKIP_DB) and no LLM configured. Returning raw scraped jobs."
	MsgNoDBProcessed   = "Scraping finished (no DB). Processed jobs returned."
	MsgNoJobs          = "Scraping finished. No new jobs found."
	MsgEnrichOnly      = "Scraping finished (enrich only). Processed jobs returned."
	msgStoredFmt       = "Scraping & processing complete. Added %d new leads."
)

// slowEnrichThreshold is the enrichment time above which a warning is logged.
const slowEnrichThreshold = 30 * time.Second

// Ingest statuses.
const (
	StatusStored    = "stored"
	StatusDuplicate = "duplicate"
	StatusSkipped   = "skipped"
)

// JobSource finds job cards for a query.
type JobSource interface {
	Scrape(ctx context.Context, q scraper.Query) ([]lead.Job, error)
}

// Extractor turns an email into an extracted lead.
type Extractor interface {
	Extract(ctx context.Context, p enrich.IngestPayload) (lead.Extracted, error)
}

// ScrapeRequest asks for a search to be scraped.
type ScrapeRequest struct {
	Role     string `json:"role"`
	Location string `json:"location"`
	Pages    int    `json:"pages"`

	// EnrichOnly returns enriched jobs without writing to the store.
	EnrichOnly bool `json:"-"`
}

// DefaultScrapeRequest returns the request used for omitted fields.
func DefaultScrapeRequest() ScrapeRequest {
	return ScrapeRequest{Role: "Electrician", Location: "Adelaide", Pages: 1}
}

// ScrapedJob is a job card, with its enrichment when one was computed.
type ScrapedJob struct {
	lead.Job
	*lead.Enrichment
}

// ScrapeResult is the outcome of Scrape. A nil Jobs is left out of the
// JSON form; an empty one encodes as [].
type ScrapeResult struct {
	Message       string
	Jobs          []ScrapedJob
	NewLeadsCount int
}

type scrapeResultJSON struct {
	Message       string        `json:"message"`
	Jobs          *[]ScrapedJob `json:"jobs,omitempty"`
	NewLeadsCount int           `json:"new_leads_count"`
}

// MarshalJSON implements json.Marshaler.
func (r ScrapeResult) MarshalJSON() ([]byte, error) {
	out := scrapeResultJSON{Message: r.Message, NewLeadsCount: r.NewLeadsCount}
	if r.Jobs != nil {
		out.Jobs = &r.Jobs
	}
	return json.Marshal(out)
}

// IngestResult is the outcome of Ingest.
type IngestResult struct {
	Status string     `json:"status"`
	LeadID int64      `json:"lead_id,omitempty"`
	Reason string     `json:"reason,omitempty"`
	Lead   *lead.Lead `json:"lead,omitempty"`
	Data   *lead.Lead `json:"data,omitempty"`
}

// Options wires a Service. Store and Extractor may be nil. SkipDB stops
// Scrape from writing; ingestion and reads still use Store.
type Options struct {
	Source        JobSource
	Processor     enrich.Processor
	LLMConfigured bool
	Store         store.LeadStore
	Extractor     Extractor
	SkipDB        bool
	Concurrency   int
	Logger        *zap.Logger
}

// Service runs the lead pipeline.
type Service struct {
	source        JobSource
	processor     enrich.Processor
	llmConfigured bool
	store         store.LeadStore
	extractor     Extractor
	skipDB        bool
	concurrency   int
	logger        *zap.Logger
	tracer        trace.Tracer

	writeMu sync.Mutex // dedupe check and insert happen as one step
}

// New creates a Service.
func New(opts Options) *Service {
	processor := opts.Processor
	if processor == nil {
		processor = enrich.HeuristicProcessor{}
	}
	return &Service{
		source:        opts.Source,
		processor:     processor,
		llmConfigured: opts.LLMConfigured,
		store:         opts.Store,
		extractor:     opts.Extractor,
		skipDB:        opts.SkipDB,
		concurrency:   max(opts.Concurrency, 1),
		logger:        opts.Logger,
		tracer:        telemetry.Tracer(),
	}
}

// Store returns the configured store, or nil.
func (s *Service) Store() store.LeadStore { return s.store }

// IngestEnabled reports whether email ingestion can run.
func (s *Service) IngestEnabled() bool { return s.extractor != nil }

// Scrape scrapes the job board and, depending on which backends are
// configured, returns raw jobs, enriched jobs, or stores new qualified leads.
func (s *Service) Scrape(ctx context.Context, req ScrapeRequest) (res ScrapeResult, err error) {
	log := logging.For(s.logger, logging.CategoryPipeline)
	ctx, span := s.tracer.Start(ctx, "pipeline.Scrape", trace.WithAttributes(
		attribute.String("role", req.Role),
		attribute.String("location", req.Location),
		attribute.Int("pages", req.Pages),
	))
	defer func() { endSpan(span, err) }()

	logging.Audit(s.logger, logging.AuditScrapeStart,
		zap.String("role", req.Role), zap.String("location", req.Location), zap.Int("pages", req.Pages))

	jobs, err := s.source.Scrape(ctx, scraper.Query{Role: req.Role, Location: req.Location, Pages: req.Pages})
	if err != nil {
		return ScrapeResult{}, err
	}
	span.SetAttributes(attribute.Int("jobs", len(jobs)))

	switch {
	case req.EnrichOnly:
		res, err = s.processedResult(ctx, MsgEnrichOnly, jobs)
	case s.store == nil && !s.llmConfigured:
		log.Info("no store and no LLM configured, returning scraped jobs", zap.Int("jobs", len(jobs)))
		res = rawResult(MsgNoBackends, jobs)
	case s.skipDB && s.llmConfigured:
		res, err = s.processedResult(ctx, MsgSkipDBProcessed, jobs)
	case s.skipDB:
		res = rawResult(MsgSkipDBRaw, jobs)
	case s.store == nil:
		res, err = s.processedResult(ctx, MsgNoDBProcessed, jobs)
	case len(jobs) == 0:
		res = ScrapeResult{Message: MsgNoJobs}
	default:
		var added int
		added, err = s.storeJobs(ctx, jobs)
		res = ScrapeResult{Message: fmt.Sprintf(msgStoredFmt, added), NewLeadsCount: added}
	}
	if err != nil {
		return ScrapeResult{}, err
	}

	logging.Audit(s.logger, logging.AuditScrapeComplete,
		zap.Int("jobs", len(jobs)), zap.Int("new_leads", res.NewLeadsCount))
	return res, nil
}

func rawResult(msg string, jobs []lead.Job) ScrapeResult {
	out := make([]ScrapedJob, len(jobs))
	for i, j := range jobs {
		out[i] = ScrapedJob{Job: j}
	}
	return ScrapeResult{Message: msg, Jobs: out, NewLeadsCount: len(jobs)}
}

func (s *Service) processedResult(ctx context.Context, msg string, jobs []lead.Job) (ScrapeResult, error) {
	enriched, err := s.enrich(ctx, jobs)
	if err != nil {
		return ScrapeResult{}, err
	}
	out := make([]ScrapedJob, len(jobs))
	for i, j := range jobs {
		out[i] = ScrapedJob{Job: j, Enrichment: &enriched[i]}
	}
	return ScrapeResult{Message: msg, Jobs: out, NewLeadsCount: len(jobs)}, nil
}

func (s *Service) enrich(ctx context.Context, jobs []lead.Job) (_ []lead.Enrichment, err error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.Enrich", trace.WithAttributes(attribute.Int("jobs", len(jobs))))
	defer func() { endSpan(span, err) }()

	timer := logging.StartTimer(logging.For(s.logger, logging.CategoryEnrich), "enrich")
	defer timer.StopWithThreshold(slowEnrichThreshold)
	return enrich.EnrichAll(ctx, s.processor, jobs, s.concurrency)
}

// storeJobs enriches jobs concurrently, then dedupes and inserts them one
// at a time in scrape order.
func (s *Service) storeJobs(ctx context.Context, jobs []lead.Job) (added int, err error) {
	enriched, err := s.enrich(ctx, jobs)
	if err != nil {
		return 0, err
	}

	ctx, span := s.tracer.Start(ctx, "pipeline.Store")
	defer func() {
		span.SetAttributes(attribute.Int("added", added))
		endSpan(span, err)
	}()

	for i, job := range jobs {
		l := lead.Merge(job, enriched[i])
		stored, err := s.save(ctx, &l)
		if err != nil {
			return added, err
		}
		if stored {
			added++
		}
	}
	return added, nil
}

// save dedupes, qualifies and inserts l. It reports whether l was inserted.
func (s *Service) save(ctx context.Context, l *lead.Lead) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	dup, err := s.markIfDuplicate(ctx, l)
	if err != nil || dup != nil {
		return false, err
	}

	lead.ApplyDefaults(l)
	if !l.Qualified {
		logging.Audit(s.logger, logging.AuditLeadSkipped,
			zap.String("company", l.Company), zap.String("reason", l.SkipReason))
		return false, nil
	}

	if err := s.store.Insert(ctx, l); err != nil {
		return false, err
	}
	logging.Audit(s.logger, logging.AuditLeadStored,
		zap.Int64("id", l.ID), zap.String("company", l.Company), zap.String("role", l.RolesAdvertised))
	return true, nil
}

// markIfDuplicate ensures l has a dedupe key and, when a lead with that key
// is already stored, flags the stored one and returns it.
func (s *Service) markIfDuplicate(ctx context.Context, l *lead.Lead) (*lead.Lead, error) {
	lead.EnsureDedupeKey(l)
	existing, err := s.store.FindByDedupeKey(ctx, l.DedupeKey)
	if errors.Is(err, lead.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !existing.DuplicateFlag {
		if err := s.store.MarkDuplicate(ctx, existing.ID); err != nil {
			return nil, err
		}
		existing.DuplicateFlag = true
	}
	logging.Audit(s.logger, logging.AuditLeadDuplicate,
		zap.Int64("id", existing.ID), zap.String("dedupe_key", l.DedupeKey))
	return &existing, nil
}

// Ingest extracts a lead from an email and stores it when it is new and
// qualified.
func (s *Service) Ingest(ctx context.Context, p enrich.IngestPayload) (res IngestResult, err error) {
	if s.extractor == nil {
		return IngestResult{}, lead.ErrIngestDisabled
	}
	if err := p.Validate(); err != nil {
		return IngestResult{}, err
	}
	if s.store == nil {
		return IngestResult{}, fmt.Errorf("lead store: %w", lead.ErrNotConfigured)
	}

	ctx, span := s.tracer.Start(ctx, "pipeline.Ingest")
	defer func() {
		span.SetAttributes(attribute.String("status", res.Status))
		endSpan(span, err)
	}()

	extracted, err := s.extractor.Extract(ctx, p)
	if err != nil {
		return IngestResult{}, err
	}
	l := extracted.ToLead(p.Subject, p.AdURL)
	lead.ApplyDefaults(&l)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	dup, err := s.markIfDuplicate(ctx, &l)
	if err != nil {
		return IngestResult{}, err
	}
	if dup != nil {
		return IngestResult{Status: StatusDuplicate, LeadID: dup.ID}, nil
	}

	if !l.Qualified {
		logging.Audit(s.logger, logging.AuditLeadSkipped,
			zap.String("company", l.Company), zap.String("reason", l.SkipReason))
		return IngestResult{Status: StatusSkipped, Reason: l.SkipReason, Data: &l}, nil
	}

	if err := s.store.Insert(ctx, &l); err != nil {
		return IngestResult{}, err
	}
	logging.Audit(s.logger, logging.AuditLeadStored,
		zap.Int64("id", l.ID), zap.String("company", l.Company), zap.String("source", "ingest"))
	return IngestResult{Status: StatusStored, Lead: &l}, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
