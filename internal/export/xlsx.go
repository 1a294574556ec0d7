package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/reflector/internal/model"
)

const (
	sheetResponses  = "Responses"
	sheetComponents = "Components"
	sheetWeeks      = "Weeks"
)

// XLSX renders rec as a workbook with one sheet each for responses,
// component counts and weekly progress.
func XLSX(rec *model.ExportRecord) ([]byte, error) {
	if err := Validate(rec); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetResponses); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{sheetComponents, sheetWeeks} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	header := make([]any, len(csvHeader))
	for i, h := range csvHeader {
		header[i] = h
	}
	rows := [][]any{header}
	for _, r := range rec.Responses {
		rows = append(rows, []any{
			string(rec.UserID), rec.SessionID, r.Week, string(r.Component),
			r.Question, r.Response, r.Feedback, formatTimestamp(r.Timestamp),
		})
	}
	if err := writeRows(f, sheetResponses, rows); err != nil {
		return nil, err
	}

	rows = [][]any{{"Component", "Responses"}}
	for _, cc := range rec.ComponentStats.Ordered() {
		rows = append(rows, []any{string(cc.Component), cc.Count})
	}
	if err := writeRows(f, sheetComponents, rows); err != nil {
		return nil, err
	}

	rows = [][]any{{"Week", "Prompts Completed", "Average Response Length", "Components Covered"}}
	for _, wp := range rec.WeeklyProgress {
		covered := ""
		for i, c := range wp.ComponentsCovered {
			if i > 0 {
				covered += ", "
			}
			covered += string(c)
		}
		rows = append(rows, []any{wp.Week, wp.PromptsCompleted, wp.AverageResponseLength, covered})
	}
	if err := writeRows(f, sheetWeeks, rows); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
