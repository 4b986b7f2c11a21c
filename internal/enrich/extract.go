package enrich

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"leadscout/internal/lead"
	"leadscout/internal/logging"
)

// IngestPayload is a forwarded job advertisement email.
type IngestPayload struct {
	Subject          string `json:"subject"`
	FromAddr         string `json:"from_addr"`
	EmailReceivedISO string `json:"email_received_iso"`
	BodyMarkdown     string `json:"body_markdown"`
	AdURL            string `json:"ad_url,omitempty"`
}

// Validate checks the required fields are present.
func (p IngestPayload) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"subject":            p.Subject,
		"from_addr":          p.FromAddr,
		"email_received_iso": p.EmailReceivedISO,
		"body_markdown":      p.BodyMarkdown,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%w: missing %s", lead.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

const emailSystemPrompt = `You extract hiring leads from job advertisement emails.
Reply with a single JSON object with exactly these keys:
"First Name", "Email", "Phone", "Company", "Roles Advertised", "Sector",
"Employment Type", "Date Posted", "Entry Date", "Salary Info", "Location",
"Ad URL", "Skip", "Skip Reason".
Use "N/A" for anything the email does not state. Dates are DD/MM/YYYY.
"Skip" is "Yes" when the advertiser is a recruitment agency rather than the
employer, otherwise "No"; explain a "Yes" in "Skip Reason".`

// Extractor pulls a structured lead out of an email with a model.
type Extractor struct {
	completer Completer
	rules     lead.QualificationRules
	logger    *zap.Logger
	now       func() time.Time
}

// NewExtractor creates an Extractor.
func NewExtractor(c Completer, rules lead.QualificationRules, logger *zap.Logger) *Extractor {
	return &Extractor{
		completer: c,
		rules:     rules,
		logger:    logging.For(logger, logging.CategoryEnrich),
		now:       time.Now,
	}
}

// Extract asks the model for the lead and applies the qualification rules,
// contact scoring and dedupe keying.
func (x *Extractor) Extract(ctx context.Context, p IngestPayload) (lead.Extracted, error) {
	user := fmt.Sprintf("Subject: %s\nFrom: %s\nEmail Date: %s\nAd URL: %s\nBody (markdown):\n%s",
		p.Subject, p.FromAddr, p.EmailReceivedISO, lead.OrNA(p.AdURL), p.BodyMarkdown)

	raw, err := x.completer.CompleteJSON(ctx, emailSystemPrompt, user)
	if err != nil {
		return lead.Extracted{}, fmt.Errorf("extract lead: %w", err)
	}
	fields, err := parseJSONObject(raw)
	if err != nil {
		return lead.Extracted{}, fmt.Errorf("extract lead: %w", err)
	}

	e := extractedFrom(fields)
	x.rules.Finalize(&e, x.now())
	x.logger.Debug("lead extracted",
		zap.String("company", e.Company),
		zap.String("qualified", e.Qualified),
		zap.Int("priority", e.Priority))
	return e, nil
}

func extractedFrom(m map[string]any) lead.Extracted {
	e := lead.NewExtracted()
	set := func(dst *string, key string) {
		if v := stringField(m, key); v != "" {
			*dst = v
		}
	}
	set(&e.FirstName, "First Name")
	set(&e.Email, "Email")
	set(&e.Phone, "Phone")
	set(&e.Company, "Company")
	set(&e.RolesAdvertised, "Roles Advertised")
	set(&e.Sector, "Sector")
	set(&e.EmploymentType, "Employment Type")
	set(&e.DatePosted, "Date Posted")
	set(&e.EntryDate, "Entry Date")
	set(&e.SalaryInfo, "Salary Info")
	set(&e.Location, "Location")
	set(&e.AdURL, "Ad URL")
	set(&e.Skip, "Skip")
	set(&e.SkipReason, "Skip Reason")
	return e
}
