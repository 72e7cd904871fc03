package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadCSV(t *testing.T) {
	path := writeCSV(t, "Source,Target\nhello,привіт\n  world  ,світ\n")

	entries, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Row != 2 || entries[0].Source != "hello" || entries[0].Target != "привіт" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Source != "world" {
		t.Errorf("expected trimmed source, got %q", entries[1].Source)
	}
}

func TestReadCSV_SkipsBlankRowsButKeepsNumbering(t *testing.T) {
	path := writeCSV(t, "Source,Target\nhello,привіт\n,\nworld,світ\n")

	entries, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected blank row skipped, got %d entries", len(entries))
	}
	// The blank row still occupies row 3 in the sheet.
	if entries[1].Row != 4 {
		t.Errorf("expected row 4 after the gap, got %d", entries[1].Row)
	}
}

func TestReadCSV_PartialRow(t *testing.T) {
	path := writeCSV(t, "Source,Target\nuntranslated\n")

	entries, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Source != "untranslated" || entries[0].Target != "" {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
}

func TestReadExcel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Source", "Target"},
		{"hello", "привіт"},
		{"world", "світ"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	entries, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Row != 2 || entries[0].Source != "hello" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Target != "світ" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
}

func TestReadFile_UnsupportedExtension(t *testing.T) {
	if _, err := ReadFile("notes.txt"); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestJobID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/data/report.xlsx", "report"},
		{"report.csv", "report"},
		{"./dir/sub/translations.xlsm", "translations"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		if got := JobID(tt.path); got != tt.want {
			t.Errorf("JobID(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
