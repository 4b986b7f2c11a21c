package lead

import (
	"fmt"
	"strings"
	"time"
)

// Extracted is a lead as returned by the email extraction model.
// Field names follow the model's output keys; every field defaults to "N/A".
type Extracted struct {
	FirstName       string `json:"First Name"`
	Email           string `json:"Email"`
	Phone           string `json:"Phone"`
	Company         string `json:"Company"`
	RolesAdvertised string `json:"Roles Advertised"`
	Sector          string `json:"Sector"`
	EmploymentType  string `json:"Employment Type"`
	DatePosted      string `json:"Date Posted"`
	EntryDate       string `json:"Entry Date"`
	SalaryInfo      string `json:"Salary Info"`
	Location        string `json:"Location"`
	AdURL           string `json:"Ad URL"`
	Skip            string `json:"Skip"`
	SkipReason      string `json:"Skip Reason"`

	// Computed by Finalize.
	Qualified string `json:"qualified"`
	Priority  int    `json:"priority"`
	DedupeKey string `json:"dedupe_key"`
}

// NewExtracted returns an Extracted with every model field set to "N/A".
func NewExtracted() Extracted {
	return Extracted{
		FirstName:       NotAvailable,
		Email:           NotAvailable,
		Phone:           NotAvailable,
		Company:         NotAvailable,
		RolesAdvertised: NotAvailable,
		Sector:          NotAvailable,
		EmploymentType:  NotAvailable,
		DatePosted:      NotAvailable,
		EntryDate:       NotAvailable,
		SalaryInfo:      NotAvailable,
		Location:        NotAvailable,
		AdURL:           NotAvailable,
		Skip:            NotAvailable,
		SkipReason:      NotAvailable,
		Qualified:       "No",
	}
}

// QualificationRules decide which extracted leads are worth keeping.
type QualificationRules struct {
	Sector           string `yaml:"sector"`
	EmploymentPrefix string `yaml:"employment_prefix"`
}

// DefaultQualificationRules targets full-time electrical roles.
func DefaultQualificationRules() QualificationRules {
	return QualificationRules{Sector: "Electrical", EmploymentPrefix: "full"}
}

// Qualify applies the business rules on top of the model's own Skip verdict.
func (r QualificationRules) Qualify(e *Extracted) {
	fullTime := strings.HasPrefix(strings.ToLower(e.EmploymentType), strings.ToLower(r.EmploymentPrefix))
	switch {
	case e.Skip == "No" && e.Sector == r.Sector && fullTime:
		e.Qualified = "Yes"
	case e.Skip == "No" && e.Sector != r.Sector:
		e.SkipReason = fmt.Sprintf("Not in %s sector (is %s)", r.Sector, e.Sector)
	case e.Skip == "No" && !fullTime:
		e.SkipReason = fmt.Sprintf("Not a full-time role (is %s)", e.EmploymentType)
	}
}

// ContactScore rewards leads that can actually be contacted.
func ContactScore(e Extracted) int {
	score := 0
	if Present(e.Email) {
		score += 2
	}
	if Present(e.Phone) {
		score++
	}
	if Present(e.SalaryInfo) {
		score++
	}
	return score
}

// Finalize safeguards dates, qualifies, scores and keys an extracted lead.
func (r QualificationRules) Finalize(e *Extracted, now time.Time) {
	e.EntryDate = SafeguardDate(e.EntryDate, now)
	e.DatePosted = SafeguardDate(e.DatePosted, now)
	r.Qualify(e)
	e.Priority = ContactScore(*e)
	e.DedupeKey = ExtractionDedupeKey(e.Company, e.RolesAdvertised)
}

// ToLead converts an extracted lead into a storable one. Dates become ISO
// (YYYY-MM-DD); "N/A" placeholders become empty.
func (e Extracted) ToLead(sourceSubject, adURL string) Lead {
	l := Lead{
		FirstName:       clean(e.FirstName),
		Email:           clean(e.Email),
		Phone:           clean(e.Phone),
		Company:         clean(e.Company),
		RolesAdvertised: clean(e.RolesAdvertised),
		Sector:          clean(e.Sector),
		EmploymentType:  clean(e.EmploymentType),
		DatePosted:      DDMMYYYYToISO(e.DatePosted),
		EntryDate:       DDMMYYYYToISO(e.EntryDate),
		SalaryInfo:      clean(e.SalaryInfo),
		Location:        clean(e.Location),
		AdURL:           clean(e.AdURL),
		SourceSubject:   sourceSubject,
		SkipReason:      e.SkipReason,
		DedupeKey:       e.DedupeKey,
		Priority:        e.Priority,
		Qualified:       ParseTruthy(e.Qualified, true),
	}
	if l.AdURL == "" {
		l.AdURL = adURL
	}
	return l
}

func clean(v string) string {
	if !Present(v) {
		return ""
	}
	return strings.TrimSpace(v)
}
