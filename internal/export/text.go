package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shrimpsizemoose/exportprofiles/internal/models"
)

// TextExporter writes delimited plain text, one header line and one line per
// user.
type TextExporter struct{}

func (TextExporter) ContentType() string {
	return "text/plain; charset=utf-8"
}

func (TextExporter) Extension() string {
	return "txt"
}

func (TextExporter) Write(w io.Writer, sheet *Sheet, opts models.ExportOptions) error {
	cw := csv.NewWriter(w)
	cw.Comma = opts.Separator.Rune()

	if err := cw.Write(sheet.Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, 0, len(sheet.Header))
	for _, row := range sheet.Rows {
		record = record[:0]
		for _, c := range row {
			record = append(record, c.Text)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
