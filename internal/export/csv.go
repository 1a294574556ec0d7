package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/pavelanni/reflector/internal/model"
)

// isoMillis matches JavaScript's Date.toISOString for UTC times.
const isoMillis = "2006-01-02T15:04:05.000Z"

var csvHeader = []string{
	"User ID",
	"Session ID",
	"Week",
	"Component",
	"Question",
	"Response",
	"Feedback",
	"Timestamp",
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// CSV renders one row per response under a fixed header. Fields containing
// commas, quotes or line breaks are quoted with inner quotes doubled.
func CSV(rec *model.ExportRecord) ([]byte, error) {
	if err := Validate(rec); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write CSV header: %w", err)
	}
	for _, r := range rec.Responses {
		row := []string{
			string(rec.UserID),
			rec.SessionID,
			strconv.Itoa(r.Week),
			string(r.Component),
			r.Question,
			r.Response,
			r.Feedback,
			formatTimestamp(r.Timestamp),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write CSV row for %s: %w", r.PromptID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}
