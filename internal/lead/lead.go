// Package lead holds the domain model shared by the scraper, the enrichment
// processors, the store and the HTTP API: scraped job cards, stored leads,
// and the normalisation rules applied before a lead is persisted.
package lead

import (
	"strconv"
	"time"
)

// Job is a single job card found on a search results page.
type Job struct {
	AdURL         string `json:"ad_url"`
	SourceSubject string `json:"source_subject"`
}

// Lead is a stored (or storable) hiring lead.
// Empty strings mean "unknown"; the store keeps them as NULL.
type Lead struct {
	ID              int64     `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	FirstName       string    `json:"first_name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	Company         string    `json:"company"`
	RolesAdvertised string    `json:"roles_advertised"`
	Sector          string    `json:"sector"`
	EmploymentType  string    `json:"employment_type"`
	DatePosted      string    `json:"date_posted"`
	EntryDate       string    `json:"entry_date"`
	SalaryInfo      string    `json:"salary_info"`
	Location        string    `json:"location"`
	AdURL           string    `json:"ad_url"`
	SourceSubject   string    `json:"source_subject"`
	SkipReason      string    `json:"skip_reason"`
	DedupeKey       string    `json:"dedupe_key"`
	DuplicateFlag   bool      `json:"duplicate_flag"`
	Priority        int       `json:"priority"`
	Qualified       bool      `json:"qualified"`
}

// Enrichment is what a processor derives from a job card.
type Enrichment struct {
	Company         string `json:"company"`
	RolesAdvertised string `json:"roles_advertised"`
	Location        string `json:"location"`
	FirstName       string `json:"first_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	SalaryInfo      string `json:"salary_info"`
	Priority        int    `json:"priority"`
	Qualified       bool   `json:"qualified"`
	SkipReason      string `json:"skip_reason"`
	DedupeKey       string `json:"dedupe_key"`
}

// Merge combines a job card with its enrichment. Enrichment fields win.
func Merge(job Job, e Enrichment) Lead {
	return Lead{
		AdURL:           job.AdURL,
		SourceSubject:   job.SourceSubject,
		Company:         e.Company,
		RolesAdvertised: e.RolesAdvertised,
		Location:        e.Location,
		FirstName:       e.FirstName,
		Email:           e.Email,
		Phone:           e.Phone,
		SalaryInfo:      e.SalaryInfo,
		Priority:        e.Priority,
		Qualified:       e.Qualified,
		SkipReason:      e.SkipReason,
		DedupeKey:       e.DedupeKey,
	}
}

// Filter narrows a lead listing. Matching is a case-insensitive substring match.
type Filter struct {
	Role  string
	Town  string
	State string
	Limit int
}

// DefaultListLimit caps listings when the filter does not set a limit.
const DefaultListLimit = 500

// EffectiveLimit returns the limit to apply for f.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Metrics summarises the stored leads.
type Metrics struct {
	TotalLeads        int `json:"total_leads"`
	UniqueLeads       int `json:"unique_leads"`
	HighPriorityLeads int `json:"high_priority_leads"`
	DuplicatesFound   int `json:"duplicates_found"`
	ContactsFound     int `json:"contacts_found"`
}

// CSVHeader is the column order used by CSV exports.
var CSVHeader = []string{
	"id", "created_at", "first_name", "email", "phone", "company",
	"roles_advertised", "sector", "employment_type", "date_posted",
	"entry_date", "salary_info", "location", "ad_url", "source_subject",
	"skip_reason", "dedupe_key", "duplicate_flag", "priority", "qualified",
}

// CSVRecord renders l in CSVHeader order.
func (l Lead) CSVRecord() []string {
	return []string{
		strconv.FormatInt(l.ID, 10),
		l.CreatedAt.UTC().Format(time.RFC3339),
		l.FirstName,
		l.Email,
		l.Phone,
		l.Company,
		l.RolesAdvertised,
		l.Sector,
		l.EmploymentType,
		l.DatePosted,
		l.EntryDate,
		l.SalaryInfo,
		l.Location,
		l.AdURL,
		l.SourceSubject,
		l.SkipReason,
		l.DedupeKey,
		strconv.FormatBool(l.DuplicateFlag),
		strconv.Itoa(l.Priority),
		strconv.FormatBool(l.Qualified),
	}
}
