// Package dataset loads source/target text pairs from Excel and CSV files.
// The first two columns hold the source text and its translation; row 1 is
// treated as a header and data starts at row 2.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/valpere/perevir/internal"
)

// ReadFile loads entries from the file at path, dispatching on extension.
// Supported formats are .xlsx, .xlsm and .csv.
func ReadFile(path string) ([]internal.Entry, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadExcel(path)
	case ".csv":
		return ReadCSV(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q (want .xlsx, .xlsm or .csv)", filepath.Ext(path))
	}
}

// ReadExcel loads entries from the first sheet of an Excel workbook.
func ReadExcel(path string) ([]internal.Entry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	entries := fromRows(rows)
	zap.S().Infow("loaded dataset", "file", path, "sheet", sheets[0], "rows", len(entries))
	return entries, nil
}

// ReadCSV loads entries from a CSV file.
func ReadCSV(path string) ([]internal.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	entries := fromRows(records)
	zap.S().Infow("loaded dataset", "file", path, "rows", len(entries))
	return entries, nil
}

// fromRows turns raw sheet rows into entries. Row numbers are 1-based sheet
// positions, so the first data row is row 2. Rows with both cells blank are
// skipped but keep their row number gap.
func fromRows(rows [][]string) []internal.Entry {
	var entries []internal.Entry
	for idx, row := range rows {
		if idx == 0 {
			continue // header
		}

		var source, target string
		if len(row) > 0 {
			source = strings.TrimSpace(row[0])
		}
		if len(row) > 1 {
			target = strings.TrimSpace(row[1])
		}
		if source == "" && target == "" {
			continue
		}

		entries = append(entries, internal.Entry{
			Row:    idx + 1,
			Source: source,
			Target: target,
		})
	}
	return entries
}

// JobID derives a checkpoint job id from an input path: the file name without
// its extension.
func JobID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
