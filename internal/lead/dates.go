package lead

import (
	"strings"
	"time"
)

// DisplayDateLayout is the DD/MM/YYYY layout used by ad notification emails.
const DisplayDateLayout = "02/01/2006"

// parseDateLayout accepts one or two digit days and months.
const parseDateLayout = "2/1/2006"

// ISODateLayout is the layout stored in the database.
const ISODateLayout = "2006-01-02"

// Adelaide is the reference timezone for "today" in extracted dates.
var Adelaide = loadAdelaide()

func loadAdelaide() *time.Location {
	loc, err := time.LoadLocation("Australia/Adelaide")
	if err != nil {
		// ACST without daylight saving; close enough when tzdata is missing.
		return time.FixedZone("ACST", 9*3600+1800)
	}
	return loc
}

// TodayDisplay returns now's date in Adelaide as DD/MM/YYYY.
func TodayDisplay(now time.Time) string {
	return now.In(Adelaide).Format(DisplayDateLayout)
}

// SafeguardDate normalises a valid D/M/YYYY date to DD/MM/YYYY and otherwise
// returns today.
func SafeguardDate(s string, now time.Time) string {
	if t, err := parseDisplayDate(s); err == nil {
		return t.Format(DisplayDateLayout)
	}
	return TodayDisplay(now)
}

func parseDisplayDate(s string) (time.Time, error) {
	return time.Parse(parseDateLayout, strings.TrimSpace(s))
}

// DDMMYYYYToISO converts DD/MM/YYYY to YYYY-MM-DD. Invalid or "N/A" input
// yields "".
func DDMMYYYYToISO(s string) string {
	if s == "" || s == NotAvailable {
		return ""
	}
	t, err := parseDisplayDate(s)
	if err != nil {
		return ""
	}
	return t.Format(ISODateLayout)
}
