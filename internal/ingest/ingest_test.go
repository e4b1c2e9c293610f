package ingest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
)

// buildWorkbook creates an xlsx in memory with the given rows on Sheet1.
func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row %d: %v", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestParsePreview(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"Nombres", "Apellidos", "Correo"},
		{"Juan", "Pérez", "juan@x.com"},
		{"Ana", "Gómez", "ana@x.com"},
	})

	p, err := ParsePreview(data)
	if err != nil {
		t.Fatalf("ParsePreview() error = %v", err)
	}

	want := []string{"Nombres", "Apellidos", "Correo"}
	if len(p.Columns) != len(want) {
		t.Fatalf("Columns = %v, want %v", p.Columns, want)
	}
	for i, col := range want {
		if p.Columns[i] != col {
			t.Errorf("Columns[%d] = %q, want %q", i, p.Columns[i], col)
		}
	}
	if p.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", p.RowCount)
	}
	if len(p.SampleRows) != 2 {
		t.Fatalf("SampleRows length = %d, want 2", len(p.SampleRows))
	}
	if p.SampleRows[0]["Correo"] != "juan@x.com" {
		t.Errorf("SampleRows[0][Correo] = %q, want %q", p.SampleRows[0]["Correo"], "juan@x.com")
	}
}

func TestParsePreview_SampleCap(t *testing.T) {
	rows := [][]any{{"email"}}
	for i := 0; i < 12; i++ {
		rows = append(rows, []any{"user@x.com"})
	}
	data := buildWorkbook(t, rows)

	p, err := ParsePreview(data)
	if err != nil {
		t.Fatalf("ParsePreview() error = %v", err)
	}
	if p.RowCount != 12 {
		t.Errorf("RowCount = %d, want 12", p.RowCount)
	}
	if len(p.SampleRows) != maxSampleRows {
		t.Errorf("SampleRows length = %d, want %d", len(p.SampleRows), maxSampleRows)
	}
}

func TestParsePreview_EmptyWorkbook(t *testing.T) {
	tests := []struct {
		name string
		rows [][]any
	}{
		{"no rows at all", nil},
		{"header only", [][]any{{"Nombres", "Correo"}}},
		{"header plus blank rows", [][]any{{"Nombres"}, {""}, {""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildWorkbook(t, tt.rows)
			_, err := ParsePreview(data)
			if !errors.Is(err, ErrEmptyWorkbook) {
				t.Errorf("ParsePreview() error = %v, want ErrEmptyWorkbook", err)
			}
		})
	}
}

func TestParsePreview_Garbage(t *testing.T) {
	_, err := ParsePreview([]byte("not a workbook"))
	if err == nil {
		t.Fatal("ParsePreview() expected error for non-xlsx bytes")
	}
}

func TestParseAndMap(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"Nombres", "Apellidos", "Correo", "Rol", "Ignorada"},
		{"Juan", "Pérez", "juan@x.com", "estudiante", "x"},
		{"Ana", "Gómez", "ana@x.com", "", "y"},
	})

	mappings := []ColumnMapping{
		{SourceColumn: "Nombres", TargetField: FieldFirstName},
		{SourceColumn: "Apellidos", TargetField: FieldLastName},
		{SourceColumn: "Correo", TargetField: FieldEmail},
		{SourceColumn: "Rol", TargetField: FieldRole},
	}

	rows, err := ParseAndMap(data, mappings)
	if err != nil {
		t.Fatalf("ParseAndMap() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows length = %d, want 2", len(rows))
	}

	if rows[0][FieldFirstName] != "Juan" {
		t.Errorf("rows[0][firstName] = %q, want %q", rows[0][FieldFirstName], "Juan")
	}
	if rows[0][FieldRole] != "estudiante" {
		t.Errorf("rows[0][role] = %q, want %q", rows[0][FieldRole], "estudiante")
	}
	// Unmapped target fields are present and empty
	if v, ok := rows[0][FieldPhone]; !ok || v != "" {
		t.Errorf("rows[0][phone] = %q (present=%v), want empty present", v, ok)
	}
	// Missing cell maps to empty string
	if rows[1][FieldRole] != "" {
		t.Errorf("rows[1][role] = %q, want empty", rows[1][FieldRole])
	}
}

func TestParseAndMap_LastMappingWins(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"Correo"},
		{"juan@x.com"},
	})

	mappings := []ColumnMapping{
		{SourceColumn: "Correo", TargetField: FieldPhone},
		{SourceColumn: "Correo", TargetField: FieldEmail},
	}

	rows, err := ParseAndMap(data, mappings)
	if err != nil {
		t.Fatalf("ParseAndMap() error = %v", err)
	}
	if rows[0][FieldEmail] != "juan@x.com" {
		t.Errorf("email = %q, want %q", rows[0][FieldEmail], "juan@x.com")
	}
	if rows[0][FieldPhone] != "" {
		t.Errorf("phone = %q, want empty (remapped)", rows[0][FieldPhone])
	}
}

func TestParseAndMap_NumericCells(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"Correo", "Telefono"},
		{"juan@x.com", 3001234567},
	})

	mappings := []ColumnMapping{
		{SourceColumn: "Correo", TargetField: FieldEmail},
		{SourceColumn: "Telefono", TargetField: FieldPhone},
	}

	rows, err := ParseAndMap(data, mappings)
	if err != nil {
		t.Fatalf("ParseAndMap() error = %v", err)
	}
	if rows[0][FieldPhone] != "3001234567" {
		t.Errorf("phone = %q, want %q", rows[0][FieldPhone], "3001234567")
	}
}

func TestNormalizeCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Juan  ", "Juan"},
		{"TRUE", "true"},
		{"FALSE", "false"},
		{"True", "true"},
		{"1234", "1234"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeCell(tt.in); got != tt.want {
			t.Errorf("normalizeCell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTemplate(t *testing.T) {
	data, err := Template()
	if err != nil {
		t.Fatalf("Template() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("template is not a readable workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 {
		t.Fatalf("sheets = %v, want Users and Fields", sheets)
	}

	rows, err := f.GetRows("Users")
	if err != nil {
		t.Fatalf("read Users sheet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Users rows = %d, want header + example", len(rows))
	}
	if rows[0][0] != FieldFirstName {
		t.Errorf("first header = %q, want %q", rows[0][0], FieldFirstName)
	}

	fields, err := f.GetRows("Fields")
	if err != nil {
		t.Fatalf("read Fields sheet: %v", err)
	}
	if len(fields) != len(TargetFields)+1 {
		t.Errorf("Fields rows = %d, want %d", len(fields), len(TargetFields)+1)
	}

	// Round-trip: the template itself parses as a valid upload
	p, err := ParsePreview(data)
	if err != nil {
		t.Fatalf("ParsePreview(template) error = %v", err)
	}
	if p.RowCount != 1 {
		t.Errorf("template RowCount = %d, want 1", p.RowCount)
	}
}
