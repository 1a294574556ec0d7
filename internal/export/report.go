package export

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pavelanni/reflector/internal/model"
)

const reportTitle = "SRL Learning Assistant - Session Report"

// Report renders rec as a plain-text summary. generatedAt only feeds the
// trailing "Generated on" line; everything above it depends on rec alone.
func Report(rec *model.ExportRecord, generatedAt time.Time) ([]byte, error) {
	if err := Validate(rec); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(reportTitle + "\n")
	sb.WriteString(strings.Repeat("=", len(reportTitle)) + "\n\n")

	fmt.Fprintf(&sb, "Student ID: %s\n", rec.UserID)
	fmt.Fprintf(&sb, "Session ID: %s\n", rec.SessionID)
	fmt.Fprintf(&sb, "Date: %s\n", rec.StartDate.UTC().Format(time.DateOnly))
	fmt.Fprintf(&sb, "Duration: %d minutes\n\n", durationMinutes(rec))

	sb.WriteString("Activity Summary:\n")
	fmt.Fprintf(&sb, "- Total Messages: %d\n", rec.TotalMessages)
	fmt.Fprintf(&sb, "- Prompts Completed: %d\n", len(rec.Responses))
	fmt.Fprintf(&sb, "- Weeks Active: %d\n", len(rec.WeeklyProgress))
	fmt.Fprintf(&sb, "- Average Response Length: %d characters\n", int(math.Round(averageLength(rec))))
	fmt.Fprintf(&sb, "- SRL Components Covered: %s\n\n", joinOrNone(coveredComponents(rec)))

	sb.WriteString("SRL Component Engagement:\n")
	for _, cc := range rec.ComponentStats.Ordered() {
		fmt.Fprintf(&sb, "- %s: %d responses\n", cc.Component, cc.Count)
	}
	fmt.Fprintf(&sb, "\nMost Active Component: %s\n\n", mostActive(rec.ComponentStats))

	sb.WriteString("Weekly Progress:\n")
	if len(rec.WeeklyProgress) == 0 {
		sb.WriteString("- none\n")
	}
	for _, wp := range rec.WeeklyProgress {
		comps := make([]string, 0, len(wp.ComponentsCovered))
		for _, c := range wp.ComponentsCovered {
			comps = append(comps, string(c))
		}
		fmt.Fprintf(&sb, "- Week %d: %d prompts (%s)\n", wp.Week, wp.PromptsCompleted, strings.Join(comps, ", "))
	}

	sb.WriteString("\nResponses:\n")
	if len(rec.Responses) == 0 {
		sb.WriteString("- none\n")
	}
	for i, r := range rec.Responses {
		fmt.Fprintf(&sb, "%d. Week %d - %s: %s — \"%s\"\n", i+1, r.Week, r.Component, r.Question, r.Response)
		if r.Feedback != "" {
			fmt.Fprintf(&sb, "   Feedback: %s\n", r.Feedback)
		}
	}

	sb.WriteString("\nRecommendations:\n")
	for _, line := range recommendations(rec) {
		sb.WriteString("- " + line + "\n")
	}

	fmt.Fprintf(&sb, "\nGenerated on: %s\n", generatedAt.UTC().Format(isoMillis))
	return []byte(sb.String()), nil
}

// durationMinutes rounds the session length to the nearest whole minute.
func durationMinutes(rec *model.ExportRecord) int {
	return int(math.Round(rec.EndDate.Sub(rec.StartDate).Minutes()))
}

func averageLength(rec *model.ExportRecord) float64 {
	if len(rec.Responses) == 0 {
		return 0
	}
	total := 0
	for _, r := range rec.Responses {
		total += responseLength(r.Response)
	}
	return float64(total) / float64(len(rec.Responses))
}

func coveredComponents(rec *model.ExportRecord) []string {
	var out []string
	for _, cc := range rec.ComponentStats.Ordered() {
		if cc.Count > 0 {
			out = append(out, string(cc.Component))
		}
	}
	return out
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

// mostActive returns the component with the highest count; ties go to the
// earlier component in canonical order.
func mostActive(stats model.ComponentCounts) string {
	best, bestCount := "none", 0
	for _, cc := range stats.Ordered() {
		if cc.Count > bestCount {
			best, bestCount = string(cc.Component), cc.Count
		}
	}
	return best
}

func recommendations(rec *model.ExportRecord) []string {
	var out []string

	minCount, maxCount := math.MaxInt, 0
	for _, cc := range rec.ComponentStats.Ordered() {
		minCount = min(minCount, cc.Count)
		maxCount = max(maxCount, cc.Count)
	}
	if maxCount-minCount > 2 {
		out = append(out, "Consider focusing more on components with fewer responses")
	}
	if len(rec.WeeklyProgress) < 4 {
		out = append(out, "Try to engage with prompts more consistently across weeks")
	}
	if len(rec.Responses) > 0 && averageLength(rec) < 50 {
		out = append(out, "Consider providing more detailed responses for better learning reflection")
	}
	if len(out) == 0 {
		out = append(out, "Excellent engagement! Continue with current learning practices")
	}
	return out
}
