package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shrimpsizemoose/exportprofiles/internal/models"
)

var ErrNoExporter = errors.New("no exporter for file format")

type Exporter interface {
	ContentType() string
	Extension() string
	Write(w io.Writer, sheet *Sheet, opts models.ExportOptions) error
}

type Registry map[models.FileFormat]Exporter

func NewRegistry() Registry {
	return Registry{
		models.FormatODS:   ODSExporter{},
		models.FormatExcel: XLSXExporter{},
		models.FormatText:  TextExporter{},
	}
}

func (r Registry) Get(format models.FileFormat) (Exporter, error) {
	e, ok := r[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoExporter, format)
	}
	return e, nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_",
	"<", "_", ">", "_", "|", "_", "[", "(", "]", ")",
)

// Filename follows the "<course> Grades.<ext>" convention of the gradebook.
func Filename(course *models.Course, e Exporter) string {
	return filenameReplacer.Replace(course.ShortName) + " Grades." + e.Extension()
}
