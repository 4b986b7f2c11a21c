package lead

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// HighPriorityThreshold is the minimum priority counted as high priority.
const HighPriorityThreshold = 4

// NotAvailable is the placeholder extraction models use for unknown values.
const NotAvailable = "N/A"

// Default priorities assigned from a job title.
const (
	PriorityDefault = 2
	PriorityHigh    = 4
)

var seniorityMarkers = []string{"senior", "lead", "manager"}

// Order matters: the first separator that yields two parts wins.
var titleSeparators = []string{" - ", " | ", " — ", "–", " —", " / "}

// lower applies Unicode lowercasing ("ß" stays "ß"). Casers are stateful;
// build one per call.
func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// normalizeKey normalises a dedupe key component.
func normalizeKey(s string) string {
	return lower(strings.TrimSpace(s))
}

// FallbackDedupeKey builds the key used when a processor did not supply one.
func FallbackDedupeKey(company, role, adURL string) string {
	return lower(company + "-" + role + "-" + adURL)
}

// ExtractionDedupeKey builds the key for leads extracted from emails.
func ExtractionDedupeKey(company, role string) string {
	return normalizeKey(company) + "|" + normalizeKey(role)
}

// JobDedupeKey keys a scraped job card by its ad URL, or its title when the
// card has no URL.
func JobDedupeKey(job Job) string {
	if u := strings.TrimSpace(job.AdURL); u != "" {
		return lower(u)
	}
	return normalizeKey(job.SourceSubject)
}

// EnsureDedupeKey fills l.DedupeKey from the fallback when it is empty.
func EnsureDedupeKey(l *Lead) {
	if strings.TrimSpace(l.DedupeKey) == "" {
		l.DedupeKey = FallbackDedupeKey(l.Company, l.RolesAdvertised, l.AdURL)
	}
}

// ParseTruthy interprets yes/no style flags. An empty value yields def.
func ParseTruthy(v string, def bool) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "true", "yes", "1":
		return true
	default:
		return false
	}
}

// ApplyDefaults sets the fields every stored lead must carry.
func ApplyDefaults(l *Lead) {
	if strings.TrimSpace(l.SkipReason) == "" {
		if l.Qualified {
			l.SkipReason = NotAvailable
		} else {
			l.SkipReason = "unqualified"
		}
	}
}

// TitlePriority ranks a job title: seniority markers raise the priority.
func TitlePriority(title string) int {
	lower := strings.ToLower(title)
	for _, m := range seniorityMarkers {
		if strings.Contains(lower, m) {
			return PriorityHigh
		}
	}
	return PriorityDefault
}

// CompanyFromTitle guesses the advertiser from titles like "Electrician - Acme".
// Most titles carry no company, in which case it returns "".
func CompanyFromTitle(title string) string {
	if title == "" {
		return ""
	}
	for _, sep := range titleSeparators {
		if !strings.Contains(title, sep) {
			continue
		}
		var parts []string
		for _, p := range strings.Split(title, sep) {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) >= 2 {
			return parts[len(parts)-1]
		}
	}
	return ""
}

// Present reports whether an extracted value carries information.
func Present(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != NotAvailable
}

// OrNA returns v, or NotAvailable when v is blank.
func OrNA(v string) string {
	if strings.TrimSpace(v) == "" {
		return NotAvailable
	}
	return v
}
