package export

import (
	"fmt"
	"io"

	"github.com/shrimpsizemoose/trekker/logger"
	"github.com/xuri/excelize/v2"

	"github.com/shrimpsizemoose/exportprofiles/internal/models"
)

const maxSheetName = 31

type XLSXExporter struct{}

func (XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (XLSXExporter) Extension() string {
	return "xlsx"
}

func (XLSXExporter) Write(w io.Writer, sheet *Sheet, opts models.ExportOptions) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Error.Printf("Failed to close workbook: %v", err)
		}
	}()

	name := sheetName(sheet.Title)
	if err := f.SetSheetName("Sheet1", name); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(sheet.Header))
	for i, h := range sheet.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(name, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, row := range sheet.Rows {
		values := make([]interface{}, len(row))
		for j, c := range row {
			if c.Numeric {
				values[j] = c.Number
			} else {
				values[j] = c.Text
			}
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func sheetName(title string) string {
	if title == "" {
		return "Grades"
	}
	runes := []rune(filenameReplacer.Replace(title))
	if len(runes) > maxSheetName {
		runes = runes[:maxSheetName]
	}
	return string(runes)
}
