package workflow

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/mind-engage/safetytest/internal/attempt"
)

var resultsHeader = []string{
	"class_code", "id", "email", "first_name", "last_name", "external_id",
	"registered_at", "emailed_at", "link_clicked_at", "submitted_at", "score", "passed",
}

// WriteResultsCSV writes one row per record. Unset fields are empty.
func WriteResultsCSV(w io.Writer, recs []attempt.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(resultsHeader); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			r.ClassCode,
			strconv.Itoa(r.Index),
			r.Email,
			r.FirstName,
			r.LastName,
			r.ExternalID,
			r.RegisteredAt.UTC().Format(time.RFC3339),
			timeCell(r.EmailedAt),
			timeCell(r.LinkClickedAt),
			timeCell(r.SubmittedAt),
			"",
			"",
		}
		if r.Score != nil {
			row[10] = strconv.FormatFloat(*r.Score, 'f', 4, 64)
		}
		if r.Passed != nil {
			row[11] = strconv.FormatBool(*r.Passed)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
