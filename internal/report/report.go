// Package report writes assessment results back to Excel: either a
// standalone styled report or extra columns appended to the input workbook.
package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/valpere/perevir/internal"
)

const sheetName = "QA Report"

const (
	headerFillColor = "4472C4"
	lowScoreFill    = "FFC7CE" // score <= 5
	midScoreFill    = "FFEB9C" // score <= 7
)

var reportHeaders = []string{"Row", "Source", "Target", "Score", "Issues", "Suggestion", "Summary"}

// WriteReport generates a standalone report workbook at path. Rows with a
// score of 5 or below are filled red, 6-7 yellow.
func WriteReport(path string, results []internal.ProcessedItem) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create report sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headerStyle, err := newHeaderStyle(f)
	if err != nil {
		return err
	}
	cellStyle, err := newCellStyle(f, "")
	if err != nil {
		return err
	}
	lowStyle, err := newCellStyle(f, lowScoreFill)
	if err != nil {
		return err
	}
	midStyle, err := newCellStyle(f, midScoreFill)
	if err != nil {
		return err
	}

	headerRow := make([]any, len(reportHeaders))
	for i, h := range reportHeaders {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &headerRow); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(reportHeaders), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style header row: %w", err)
	}

	for i, item := range results {
		rowNum := i + 2
		row := []any{
			item.Row,
			item.Source,
			item.Target,
			item.Result.Score,
			strings.Join(item.Result.Issues, "\n"),
			item.Result.Suggestion,
			item.Result.Summary,
		}
		start, _ := excelize.CoordinatesToCellName(1, rowNum)
		if err := f.SetSheetRow(sheetName, start, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", item.Row, err)
		}

		style := cellStyle
		switch {
		case item.Result.Score <= 5:
			style = lowStyle
		case item.Result.Score <= 7:
			style = midStyle
		}
		end, _ := excelize.CoordinatesToCellName(len(reportHeaders), rowNum)
		if err := f.SetCellStyle(sheetName, start, end, style); err != nil {
			return fmt.Errorf("failed to style row %d: %w", item.Row, err)
		}
	}

	widths := []float64{6, 40, 40, 8, 30, 30, 30}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheetName, col, col, w); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header row: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	zap.S().Infow("report written", "file", path, "rows", len(results))
	return nil
}

// Annotate copies the input workbook to outputPath with four assessment
// columns appended after the last used column. Scores of 5 or below are
// rendered red and bold.
func Annotate(inputPath, outputPath string, results []internal.ProcessedItem) error {
	f, err := excelize.OpenFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Errorf("workbook has no sheets")
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	maxCol := 0
	for _, row := range rows {
		if len(row) > maxCol {
			maxCol = len(row)
		}
	}

	headerStyle, err := newHeaderStyle(f)
	if err != nil {
		return err
	}
	lowScoreFont, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FF0000"},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	headers := []string{"Score", "Issues", "Suggestion", "Summary"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(maxCol+1+i, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
	}

	for _, item := range results {
		values := []any{
			item.Result.Score,
			strings.Join(item.Result.Issues, "\n"),
			item.Result.Suggestion,
			item.Result.Summary,
		}
		for i, val := range values {
			cell, _ := excelize.CoordinatesToCellName(maxCol+1+i, item.Row)
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("failed to write row %d: %w", item.Row, err)
			}
		}
		if item.Result.Score <= 5 {
			cell, _ := excelize.CoordinatesToCellName(maxCol+1, item.Row)
			if err := f.SetCellStyle(sheet, cell, cell, lowScoreFont); err != nil {
				return fmt.Errorf("failed to style row %d: %w", item.Row, err)
			}
		}
	}

	scoreCol, _ := excelize.ColumnNumberToName(maxCol + 1)
	if err := f.SetColWidth(sheet, scoreCol, scoreCol, 8); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	firstText, _ := excelize.ColumnNumberToName(maxCol + 2)
	lastText, _ := excelize.ColumnNumberToName(maxCol + 4)
	if err := f.SetColWidth(sheet, firstText, lastText, 30); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save annotated workbook: %w", err)
	}

	zap.S().Infow("annotated workbook written", "file", outputPath, "rows", len(results))
	return nil
}

func newHeaderStyle(f *excelize.File) (int, error) {
	style, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFillColor}},
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create header style: %w", err)
	}
	return style, nil
}

func newCellStyle(f *excelize.File, fill string) (int, error) {
	s := &excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	}
	if fill != "" {
		s.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fill}}
	}
	style, err := f.NewStyle(s)
	if err != nil {
		return 0, fmt.Errorf("failed to create style: %w", err)
	}
	return style, nil
}
