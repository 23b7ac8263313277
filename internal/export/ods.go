package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/shrimpsizemoose/exportprofiles/internal/models"
)

const odsMimetype = "application/vnd.oasis.opendocument.spreadsheet"

const odsManifest = `<?xml version="1.0" encoding="UTF-8"?>
<manifest:manifest xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0" manifest:version="1.2">
 <manifest:file-entry manifest:full-path="/" manifest:media-type="application/vnd.oasis.opendocument.spreadsheet"/>
 <manifest:file-entry manifest:full-path="content.xml" manifest:media-type="text/xml"/>
</manifest:manifest>
`

const odsContentHead = `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" office:version="1.2">
<office:body><office:spreadsheet>`

const odsContentTail = `</office:spreadsheet></office:body></office:document-content>
`

// ODSExporter writes a single-table OpenDocument spreadsheet.
type ODSExporter struct{}

func (ODSExporter) ContentType() string {
	return odsMimetype
}

func (ODSExporter) Extension() string {
	return "ods"
}

func (ODSExporter) Write(w io.Writer, sheet *Sheet, opts models.ExportOptions) error {
	zw := zip.NewWriter(w)

	// mimetype must be the first entry and stored uncompressed
	mw, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return fmt.Errorf("failed to create mimetype entry: %w", err)
	}
	if _, err := io.WriteString(mw, odsMimetype); err != nil {
		return fmt.Errorf("failed to write mimetype: %w", err)
	}

	manifest, err := zw.Create("META-INF/manifest.xml")
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	if _, err := io.WriteString(manifest, odsManifest); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	content, err := zw.Create("content.xml")
	if err != nil {
		return fmt.Errorf("failed to create content: %w", err)
	}
	body, err := odsContent(sheet)
	if err != nil {
		return err
	}
	if _, err := content.Write(body); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

func odsContent(sheet *Sheet) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(odsContentHead)

	buf.WriteString(`<table:table table:name="`)
	if err := xml.EscapeText(&buf, []byte(sheetName(sheet.Title))); err != nil {
		return nil, fmt.Errorf("failed to escape sheet name: %w", err)
	}
	buf.WriteString(`">`)

	header := make([]Cell, len(sheet.Header))
	for i, h := range sheet.Header {
		header[i] = textCell(h)
	}
	if err := odsRow(&buf, header); err != nil {
		return nil, err
	}
	for _, row := range sheet.Rows {
		if err := odsRow(&buf, row); err != nil {
			return nil, err
		}
	}

	buf.WriteString(`</table:table>`)
	buf.WriteString(odsContentTail)
	return buf.Bytes(), nil
}

func odsRow(buf *bytes.Buffer, row []Cell) error {
	buf.WriteString(`<table:table-row>`)
	for _, c := range row {
		if c.Numeric {
			buf.WriteString(`<table:table-cell office:value-type="float" office:value="`)
			buf.WriteString(strconv.FormatFloat(c.Number, 'f', -1, 64))
			buf.WriteString(`">`)
		} else {
			buf.WriteString(`<table:table-cell office:value-type="string">`)
		}
		buf.WriteString(`<text:p>`)
		if err := xml.EscapeText(buf, []byte(c.Text)); err != nil {
			return fmt.Errorf("failed to escape cell: %w", err)
		}
		buf.WriteString(`</text:p></table:table-cell>`)
	}
	buf.WriteString(`</table:table-row>`)
	return nil
}
