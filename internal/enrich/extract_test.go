package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscout/internal/lead"
)

func testPayload() IngestPayload {
	return IngestPayload{
		Subject:          "Electrician wanted",
		FromAddr:         "alerts@seek.test",
		EmailReceivedISO: "2025-08-17T09:00:00+09:30",
		BodyMarkdown:     "# Sparky Co is hiring",
		AdURL:            "https://www.seek.com.au/job/12345678",
	}
}

func TestIngestPayloadValidate(t *testing.T) {
	require.NoError(t, testPayload().Validate())

	err := IngestPayload{Subject: "x"}.Validate()
	require.ErrorIs(t, err, lead.ErrInvalidInput)
	assert.Contains(t, err.Error(), "body_markdown, email_received_iso, from_addr")
}

func TestExtractorQualifiedLead(t *testing.T) {
	fc := &fakeCompleter{answer: `{
	  "First Name": "N/A", "Email": "jobs@sparkyco.com.au", "Phone": "N/A",
	  "Company": "Sparky Co", "Roles Advertised": "Qualified Electrician",
	  "Sector": "Electrical", "Employment Type": "Full-time",
	  "Date Posted": "17/08/2025", "Entry Date": "not a date",
	  "Salary Info": "Great salary package", "Location": "Melbourne",
	  "Ad URL": "https://www.seek.com.au/job/12345678", "Skip": "No", "Skip Reason": "N/A"}`}
	x := NewExtractor(fc, lead.DefaultQualificationRules(), nil)
	x.now = func() time.Time { return time.Date(2025, 8, 20, 2, 0, 0, 0, time.UTC) }

	e, err := x.Extract(context.Background(), testPayload())
	require.NoError(t, err)

	assert.Equal(t, "Yes", e.Qualified)
	assert.Equal(t, 3, e.Priority)
	assert.Equal(t, "sparky co|qualified electrician", e.DedupeKey)
	assert.Equal(t, "17/08/2025", e.DatePosted)
	assert.Equal(t, "20/08/2025", e.EntryDate)

	require.Len(t, fc.users, 1)
	assert.Contains(t, fc.users[0], "Subject: Electrician wanted")
	assert.Contains(t, fc.users[0], "Ad URL: https://www.seek.com.au/job/12345678")
	assert.Contains(t, fc.systems[0], "Skip Reason")
}

func TestExtractorMissingKeysDefaultToNA(t *testing.T) {
	fc := &fakeCompleter{answer: `{"Company":"BuildCo","Skip":"No","Sector":"Plumbing","Employment Type":"Casual"}`}
	x := NewExtractor(fc, lead.DefaultQualificationRules(), nil)

	e, err := x.Extract(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, "No", e.Qualified)
	assert.Equal(t, "Not in Electrical sector (is Plumbing)", e.SkipReason)
	assert.Equal(t, lead.NotAvailable, e.Email)
	assert.Equal(t, 0, e.Priority)
}

func TestExtractorErrors(t *testing.T) {
	x := NewExtractor(&fakeCompleter{err: errors.New("down")}, lead.DefaultQualificationRules(), nil)
	_, err := x.Extract(context.Background(), testPayload())
	assert.ErrorContains(t, err, "extract lead: down")

	x = NewExtractor(&fakeCompleter{answer: "nope"}, lead.DefaultQualificationRules(), nil)
	_, err = x.Extract(context.Background(), testPayload())
	assert.Error(t, err)
}
