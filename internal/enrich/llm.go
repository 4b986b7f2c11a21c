package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"leadscout/internal/lead"
	"leadscout/internal/logging"
)

// Completer sends a system and user prompt to a model that answers in JSON.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

const jobSystemPrompt = "You are a helpful assistant that extracts company and role from a short job title. " +
	"Output JSON with keys Company, Roles Advertised, Location, Email, Phone, Salary Info, Qualified, Skip Reason."

// LLMProcessor asks a model for lead fields and falls back to title
// heuristics whenever the model fails or answers with something unusable.
type LLMProcessor struct {
	completer Completer
	logger    *zap.Logger
}

// NewLLMProcessor creates an LLMProcessor.
func NewLLMProcessor(c Completer, logger *zap.Logger) *LLMProcessor {
	return &LLMProcessor{completer: c, logger: logger}
}

// Process implements Processor. Provider failures are logged, not returned.
func (p *LLMProcessor) Process(ctx context.Context, job lead.Job) (lead.Enrichment, error) {
	if err := ctx.Err(); err != nil {
		return lead.Enrichment{}, err
	}

	user := fmt.Sprintf("Title: %s\nAd URL: %s", job.SourceSubject, job.AdURL)
	raw, err := p.completer.CompleteJSON(ctx, jobSystemPrompt, user)
	if err == nil {
		var fields map[string]any
		if fields, err = parseJSONObject(raw); err == nil {
			return fromModel(job, fields), nil
		}
	}
	if ctx.Err() != nil {
		return lead.Enrichment{}, ctx.Err()
	}

	logging.For(p.logger, logging.CategoryEnrich).Warn("model enrichment failed, using heuristics",
		zap.String("ad_url", job.AdURL), zap.Error(err))
	logging.Audit(p.logger, logging.AuditLLMFallback, zap.String("ad_url", job.AdURL), zap.Error(err))
	return heuristic(job), nil
}

func fromModel(job lead.Job, m map[string]any) lead.Enrichment {
	title := strings.TrimSpace(job.SourceSubject)

	company := stringField(m, "Company")
	if company == "" {
		company = lead.CompanyFromTitle(title)
	}
	roles := stringField(m, "Roles Advertised")
	if roles == "" {
		roles = lead.OrNA(title)
	}
	qualified := boolField(m, "Qualified", true)
	skip := stringField(m, "Skip Reason")
	if skip == "" {
		skip = lead.NotAvailable
		if !qualified {
			skip = "unqualified"
		}
	}

	return lead.Enrichment{
		Company:         company,
		RolesAdvertised: roles,
		Location:        stringField(m, "Location"),
		Email:           stringField(m, "Email"),
		Phone:           stringField(m, "Phone"),
		SalaryInfo:      stringField(m, "Salary Info"),
		Priority:        lead.TitlePriority(roles),
		Qualified:       qualified,
		SkipReason:      skip,
		DedupeKey:       lead.JobDedupeKey(job),
	}
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// parseJSONObject decodes a model answer, digging the outermost {...} block
// out of any surrounding prose when the answer is not pure JSON.
func parseJSONObject(raw string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err == nil && m != nil {
		return m, nil
	}
	block := jsonObjectRe.FindString(raw)
	if block == "" {
		return nil, errors.New("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(block), &m); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}
	return m, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

func boolField(m map[string]any, key string, def bool) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return lead.ParseTruthy(v, def)
	case float64:
		return v != 0
	default:
		return def
	}
}
