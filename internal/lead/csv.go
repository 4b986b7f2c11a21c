package lead

import (
	"encoding/csv"
	"io"
	"time"
)

// WriteCSV writes a header row followed by one row per lead.
func WriteCSV(w io.Writer, leads []Lead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, l := range leads {
		if err := cw.Write(l.CSVRecord()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFilename names a CSV export taken at now (Adelaide calendar date).
func ExportFilename(now time.Time) string {
	return "leads_" + now.In(Adelaide).Format(ISODateLayout) + ".csv"
}
