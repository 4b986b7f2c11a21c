// Package enrich turns scraped job cards into lead fields, either with an
// LLM provider or with deterministic title heuristics.
package enrich

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"leadscout/internal/lead"
)

// Processor derives lead fields from a job card.
type Processor interface {
	Process(ctx context.Context, job lead.Job) (lead.Enrichment, error)
}

// HeuristicProcessor derives fields from the job title alone.
type HeuristicProcessor struct{}

// Process implements Processor. It never fails.
func (HeuristicProcessor) Process(_ context.Context, job lead.Job) (lead.Enrichment, error) {
	return heuristic(job), nil
}

func heuristic(job lead.Job) lead.Enrichment {
	title := strings.TrimSpace(job.SourceSubject)
	return lead.Enrichment{
		Company:         lead.CompanyFromTitle(title),
		RolesAdvertised: lead.OrNA(title),
		Priority:        lead.TitlePriority(title),
		Qualified:       true,
		SkipReason:      lead.NotAvailable,
		DedupeKey:       lead.JobDedupeKey(job),
	}
}

// EnrichAll runs p over jobs with at most concurrency calls in flight.
// Results line up with jobs. The first error cancels the rest.
func EnrichAll(ctx context.Context, p Processor, jobs []lead.Job, concurrency int) ([]lead.Enrichment, error) {
	out := make([]lead.Enrichment, len(jobs))
	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			e, err := p.Process(gctx, job)
			if err != nil {
				return err
			}
			out[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
