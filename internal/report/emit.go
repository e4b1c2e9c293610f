// Package report serializes batch outcomes into JSON and spreadsheet
// documents and fans out the aggregate notifications best-effort.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/provisioner/internal/pipeline"
)

// MIME types of the emitted documents.
const (
	JSONMimeType     = "application/json"
	WorkbookMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Report bundles the two serialized forms of one batch result.
type Report struct {
	JSON         []byte
	Workbook     []byte
	JSONName     string
	WorkbookName string
}

// jsonDocument is the structured report payload.
type jsonDocument struct {
	BatchID     string                `json:"batchId"`
	GeneratedAt time.Time             `json:"generatedAt"`
	Summary     pipeline.Summary      `json:"summary"`
	Outcomes    []pipeline.RowOutcome `json:"outcomes"`
}

// Emit serializes the batch result as an indented JSON document and an xlsx
// workbook with an Outcomes sheet and a Summary sheet.
func Emit(result *pipeline.Result) (*Report, error) {
	summary := result.Summary()

	doc := jsonDocument{
		BatchID:     result.BatchID,
		GeneratedAt: time.Now().UTC(),
		Summary:     summary,
		Outcomes:    result.Outcomes,
	}
	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	workbook, err := buildWorkbook(result.Outcomes, summary)
	if err != nil {
		return nil, err
	}

	return &Report{
		JSON:         jsonBytes,
		Workbook:     workbook,
		JSONName:     fmt.Sprintf("import-report-%s.json", result.BatchID),
		WorkbookName: fmt.Sprintf("import-report-%s.xlsx", result.BatchID),
	}, nil
}

func buildWorkbook(outcomes []pipeline.RowOutcome, summary pipeline.Summary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const outcomesSheet = "Outcomes"
	if err := f.SetSheetName("Sheet1", outcomesSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := []any{"row", "email", "status", "detail", "emailDelivered"}
	if err := f.SetSheetRow(outcomesSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write outcomes header: %w", err)
	}
	for i, o := range outcomes {
		delivered := ""
		if o.Status == pipeline.StatusSaved {
			delivered = "yes"
			if o.EmailDeliveryFailed {
				delivered = "no"
			}
		}
		row := []any{i + 1, o.Email, string(o.Status), o.Detail, delivered}
		if err := f.SetSheetRow(outcomesSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, fmt.Errorf("write outcome row %d: %w", i+1, err)
		}
	}

	const summarySheet = "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("add summary sheet: %w", err)
	}
	counters := [][]any{
		{"total", summary.Total},
		{"saved", summary.Saved},
		{"alreadyExists", summary.AlreadyExists},
		{"errors", summary.Errors},
		{"emailDeliveryFailures", summary.EmailDeliveryFailures},
	}
	for i, row := range counters {
		r := row
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &r); err != nil {
			return nil, fmt.Errorf("write summary row: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
