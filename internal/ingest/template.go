package ingest

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// TemplateFilename is the suggested download name for the template workbook.
const TemplateFilename = "user_import_template.xlsx"

// templateExample is the pre-filled example row on the Users sheet.
var templateExample = map[string]string{
	FieldFirstName: "Ana",
	FieldLastName:  "Ramírez",
	FieldEmail:     "ana.ramirez@example.com",
	FieldRole:      "student",
	FieldPhone:     "3001234567",
	FieldDocument:  "1234567890",
	FieldAddress:   "Calle 123 #45-67",
	FieldCountry:   "Colombia",
	FieldCity:      "Bogotá",
}

// fieldReference documents each target field on the Fields sheet.
var fieldReference = map[string][2]string{
	FieldFirstName: {"yes", "Given name"},
	FieldLastName:  {"yes", "Family name"},
	FieldEmail:     {"yes", "Login email, also the upsert key"},
	FieldRole:      {"no", "One of: student, educator, admin, super-admin (empty defaults to student)"},
	FieldPhone:     {"no", "Contact phone number"},
	FieldDocument:  {"no", "Identity document number"},
	FieldAddress:   {"no", "Street address"},
	FieldCountry:   {"no", "Country of residence"},
	FieldCity:      {"no", "City of residence"},
}

// Template builds the downloadable import template: a Users sheet with one
// example row, and a Fields sheet describing every accepted column.
func Template() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const usersSheet = "Users"
	if err := f.SetSheetName("Sheet1", usersSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(TargetFields))
	example := make([]any, len(TargetFields))
	for i, field := range TargetFields {
		header[i] = field
		example[i] = templateExample[field]
	}
	if err := f.SetSheetRow(usersSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetSheetRow(usersSheet, "A2", &example); err != nil {
		return nil, fmt.Errorf("write example row: %w", err)
	}

	const fieldsSheet = "Fields"
	if _, err := f.NewSheet(fieldsSheet); err != nil {
		return nil, fmt.Errorf("add fields sheet: %w", err)
	}
	ref := []any{"field", "required", "description"}
	if err := f.SetSheetRow(fieldsSheet, "A1", &ref); err != nil {
		return nil, fmt.Errorf("write fields header: %w", err)
	}
	for i, field := range TargetFields {
		doc := fieldReference[field]
		row := []any{field, doc[0], doc[1]}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(fieldsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write field row %q: %w", field, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("serialize template: %w", err)
	}
	return buf.Bytes(), nil
}
