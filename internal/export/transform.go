// Package export turns session transcripts into export records and renders
// those records as JSON, CSV, prose reports, spreadsheets and PDFs.
package export

import (
	"fmt"
	"slices"
	"time"
	"unicode/utf16"

	"github.com/pavelanni/reflector/internal/catalog"
	"github.com/pavelanni/reflector/internal/model"
)

// normalizeTime pins t to UTC at millisecond precision so that the record
// survives a JSON round trip unchanged.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

type weekAccumulator struct {
	count      int
	totalChars int
	components []model.Component
}

// Transform derives the export record of session. Turns that reference an
// unknown prompt are skipped; a catalog failure aborts the whole export with
// ErrCatalogUnavailable. The session is not modified.
func Transform(session model.Session, prompts catalog.Lookup) (*model.ExportRecord, error) {
	// First feedback per prompt id, in transcript order.
	feedback := make(map[string]string)
	for _, t := range session.ChatHistory {
		if !t.IsPromptFeedback() {
			continue
		}
		if _, seen := feedback[t.PromptID]; !seen {
			feedback[t.PromptID] = t.Feedback
		}
	}

	rec := &model.ExportRecord{
		UserID:         session.UserID,
		SessionID:      session.ID,
		StartDate:      normalizeTime(session.CreatedAt),
		EndDate:        normalizeTime(session.LastActive),
		TotalMessages:  len(session.ChatHistory),
		Responses:      []model.ResponseRow{},
		WeeklyProgress: []model.WeeklyProgress{},
	}

	weeks := make(map[int]*weekAccumulator)
	for _, t := range session.ChatHistory {
		if !t.IsPromptResponse() {
			continue
		}
		p, ok, err := prompts.Lookup(t.PromptID)
		if err != nil {
			return nil, fmt.Errorf("%w: lookup %s: %v", ErrCatalogUnavailable, t.PromptID, err)
		}
		if !ok {
			continue
		}

		rec.Responses = append(rec.Responses, model.ResponseRow{
			PromptID:  t.PromptID,
			Week:      p.Week,
			Component: p.Component,
			Question:  p.Question,
			Response:  t.Response,
			Feedback:  feedback[t.PromptID],
			Timestamp: normalizeTime(t.Timestamp),
		})
		rec.ComponentStats.Inc(p.Component)

		w, ok := weeks[p.Week]
		if !ok {
			w = &weekAccumulator{}
			weeks[p.Week] = w
		}
		w.count++
		w.totalChars += responseLength(t.Response)
		if !slices.Contains(w.components, p.Component) {
			w.components = append(w.components, p.Component)
		}
	}

	weekNums := make([]int, 0, len(weeks))
	for n := range weeks {
		weekNums = append(weekNums, n)
	}
	slices.Sort(weekNums)
	for _, n := range weekNums {
		w := weeks[n]
		rec.WeeklyProgress = append(rec.WeeklyProgress, model.WeeklyProgress{
			Week:                  n,
			PromptsCompleted:      w.count,
			AverageResponseLength: float64(w.totalChars) / float64(w.count),
			ComponentsCovered:     w.components,
		})
	}

	return rec, nil
}

// responseLength counts UTF-16 code units, the unit historical exports used.
// Characters outside the Basic Multilingual Plane, such as emoji, count twice.
func responseLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
