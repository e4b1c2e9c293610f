// Package ingest parses uploaded spreadsheet workbooks into loosely-typed
// rows and applies caller-supplied column mappings.
//
// The parser is forgiving about workbook shape: the first non-empty row of
// the first sheet is treated as the header, fully-empty rows are skipped,
// and every cell is carried as a string so downstream validation deals with
// a single representation.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrEmptyWorkbook is returned when the workbook has no sheets or the first
// sheet yields zero data rows.
var ErrEmptyWorkbook = errors.New("workbook has no data rows")

// maxSampleRows caps the number of rows returned in a preview.
const maxSampleRows = 5

// Target field vocabulary for column mappings.
const (
	FieldFirstName = "firstName"
	FieldLastName  = "lastName"
	FieldEmail     = "email"
	FieldRole      = "role"
	FieldPhone     = "phone"
	FieldDocument  = "document"
	FieldAddress   = "address"
	FieldCountry   = "country"
	FieldCity      = "city"
)

// TargetFields lists the fields a column may be mapped to, in template order.
var TargetFields = []string{
	FieldFirstName,
	FieldLastName,
	FieldEmail,
	FieldRole,
	FieldPhone,
	FieldDocument,
	FieldAddress,
	FieldCountry,
	FieldCity,
}

// Row maps target field names to trimmed string values.
// Absent fields map to the empty string, never to a missing key.
type Row map[string]string

// ColumnMapping binds one spreadsheet column to one target field.
type ColumnMapping struct {
	SourceColumn string `json:"sourceColumn"`
	TargetField  string `json:"targetField"`
}

// Preview describes a workbook without processing it.
type Preview struct {
	Columns    []string            `json:"columns"`
	RowCount   int                 `json:"rowCount"`
	SampleRows []map[string]string `json:"sampleRows"`
}

// ParsePreview reads the workbook and returns detected columns, the data row
// count, and up to five sample rows keyed by column name.
func ParsePreview(data []byte) (*Preview, error) {
	columns, rows, err := readSheet(data)
	if err != nil {
		return nil, err
	}

	p := &Preview{
		Columns:  columns,
		RowCount: len(rows),
	}

	for i := 0; i < len(rows) && i < maxSampleRows; i++ {
		sample := make(map[string]string, len(columns))
		for c, col := range columns {
			sample[col] = cellAt(rows[i], c)
		}
		p.SampleRows = append(p.SampleRows, sample)
	}

	return p, nil
}

// ParseAndMap reads the workbook and applies the column mapping, producing
// one normalized Row per data row. Every target field in the vocabulary is
// present in each row; unmapped or missing cells yield empty strings.
//
// If a source column appears in more than one mapping, the last one wins.
func ParseAndMap(data []byte, mappings []ColumnMapping) ([]Row, error) {
	columns, rawRows, err := readSheet(data)
	if err != nil {
		return nil, err
	}

	// source column -> target field, last write wins
	byColumn := make(map[string]string, len(mappings))
	for _, m := range mappings {
		if m.SourceColumn == "" || m.TargetField == "" {
			continue
		}
		byColumn[m.SourceColumn] = m.TargetField
	}

	// column position -> target field
	targets := make([]string, len(columns))
	for i, col := range columns {
		targets[i] = byColumn[col]
	}

	rows := make([]Row, 0, len(rawRows))
	for _, raw := range rawRows {
		row := make(Row, len(TargetFields))
		for _, f := range TargetFields {
			row[f] = ""
		}
		for c, target := range targets {
			if target == "" {
				continue
			}
			row[target] = cellAt(raw, c)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// readSheet opens the workbook and returns the header columns plus all
// non-empty data rows of the first sheet.
func readSheet(data []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrEmptyWorkbook
	}

	all, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	// First non-empty row is the header
	headerIdx := -1
	for i, r := range all {
		if !emptyRow(r) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, nil, ErrEmptyWorkbook
	}

	columns := make([]string, len(all[headerIdx]))
	for i, h := range all[headerIdx] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("col_%d", i+1)
		}
		columns[i] = h
	}

	var rows [][]string
	for _, r := range all[headerIdx+1:] {
		if emptyRow(r) {
			continue
		}
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		return nil, nil, ErrEmptyWorkbook
	}

	return columns, rows, nil
}

// cellAt returns the normalized cell value at position c, or "" past the
// row's end (trailing empty cells are not materialized by the reader).
func cellAt(row []string, c int) string {
	if c >= len(row) {
		return ""
	}
	return normalizeCell(row[c])
}

// normalizeCell trims a raw cell value and canonicalizes boolean spellings.
// Raw cell values are locale-independent already; spreadsheet booleans
// render as TRUE/FALSE and are lowered to match JSON conventions.
func normalizeCell(v string) string {
	v = strings.TrimSpace(v)
	switch v {
	case "TRUE", "True":
		return "true"
	case "FALSE", "False":
		return "false"
	}
	return v
}

// emptyRow reports whether every cell in the row is blank.
func emptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
