package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/reflector/internal/model"
)

// Format names a download representation of an export record.
type Format string

const (
	FormatJSON   Format = "json"
	FormatCSV    Format = "csv"
	FormatReport Format = "report"
	FormatXLSX   Format = "xlsx"
	FormatPDF    Format = "pdf"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatCSV, FormatReport, FormatXLSX, FormatPDF}

type formatSpec struct {
	contentType string
	suffix      string
}

var formatSpecs = map[Format]formatSpec{
	FormatJSON:   {"application/json", ".json"},
	FormatCSV:    {"text/csv", ".csv"},
	FormatReport: {"text/plain; charset=utf-8", "_report.txt"},
	FormatXLSX:   {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ".xlsx"},
	FormatPDF:    {"application/pdf", "_report.pdf"},
}

// ParseFormat resolves a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := formatSpecs[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
	return f, nil
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	return formatSpecs[f].contentType
}

// Filename returns the download name "<userId>_<yyyy-mm-dd><suffix>".
func (f Format) Filename(userID model.LearnerID, date time.Time) string {
	return fmt.Sprintf("%s_%s%s", userID, date.UTC().Format(time.DateOnly), formatSpecs[f].suffix)
}

// Render serializes rec in format f. now is used only by the report-based formats.
func Render(rec *model.ExportRecord, f Format, now time.Time) ([]byte, error) {
	switch f {
	case FormatJSON:
		return JSON(rec)
	case FormatCSV:
		return CSV(rec)
	case FormatReport:
		return Report(rec, now)
	case FormatXLSX:
		return XLSX(rec)
	case FormatPDF:
		return PDF(rec, now)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}
