package models

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

type FileFormat int

const (
	FormatODS FileFormat = iota
	FormatExcel
	FormatText
)

func (f FileFormat) String() string {
	switch f {
	case FormatODS:
		return "ods"
	case FormatExcel:
		return "xlsx"
	case FormatText:
		return "txt"
	default:
		return "unknown"
	}
}

type Separator int

const (
	SeparatorTab Separator = iota
	SeparatorComma
	SeparatorColon
	SeparatorSemicolon
)

var separatorNames = []string{"tab", "comma", "colon", "semicolon"}

func ParseSeparator(name string) (Separator, bool) {
	for i, n := range separatorNames {
		if strings.EqualFold(n, name) {
			return Separator(i), true
		}
	}
	return SeparatorComma, false
}

func (s Separator) String() string {
	if s < 0 || int(s) >= len(separatorNames) {
		return "comma"
	}
	return separatorNames[s]
}

func (s Separator) Rune() rune {
	switch s {
	case SeparatorTab:
		return '\t'
	case SeparatorColon:
		return ':'
	case SeparatorSemicolon:
		return ';'
	default:
		return ','
	}
}

type DisplayType string

const (
	DisplayReal       DisplayType = "real"
	DisplayPercentage DisplayType = "percentage"
	DisplayLetter     DisplayType = "letter"
)

// Keys of the stored option rows.
const (
	OptFileFormat = "fileformat"
	OptFeedback   = "feedback"
	OptOnlyActive = "onlyactive"
	OptReal       = "real"
	OptPercentage = "percentage"
	OptLetter     = "letter"
	OptDecimals   = "decimals"
	OptSeparator  = "separator"
)

// ExportOptions is the resolved options bag handed to exporters.
type ExportOptions struct {
	FileFormat FileFormat `json:"fileformat" validate:"min=0,max=2"`
	Feedback   bool       `json:"feedback"`
	OnlyActive bool       `json:"onlyactive"`
	Real       bool       `json:"real"`
	Percentage bool       `json:"percentage"`
	Letter     bool       `json:"letter"`
	Decimals   int        `json:"decimals" validate:"min=0,max=5"`
	Separator  Separator  `json:"separator" validate:"min=0,max=3"`
}

func DefaultOptions(display DisplayType, decimals int, feedback bool) ExportOptions {
	opts := ExportOptions{
		FileFormat: FormatODS,
		Feedback:   feedback,
		OnlyActive: true,
		Decimals:   decimals,
		Separator:  SeparatorComma,
	}
	opts.setDisplay(display)
	return opts
}

func (o *ExportOptions) setDisplay(display DisplayType) {
	switch display {
	case DisplayPercentage:
		o.Percentage = true
	case DisplayLetter:
		o.Letter = true
	default:
		o.Real = true
	}
}

// EnsureDisplay turns the fallback display type on when none is selected,
// exporters expect at least one column per item.
func (o *ExportOptions) EnsureDisplay(fallback DisplayType) {
	if !o.Real && !o.Percentage && !o.Letter {
		o.setDisplay(fallback)
	}
}

func (o ExportOptions) DisplayTypes() []DisplayType {
	var types []DisplayType
	if o.Real {
		types = append(types, DisplayReal)
	}
	if o.Percentage {
		types = append(types, DisplayPercentage)
	}
	if o.Letter {
		types = append(types, DisplayLetter)
	}
	return types
}

var validate = validator.New()

func (o *ExportOptions) Validate() error {
	return validate.Struct(o)
}

// OptionMap flattens the options into the scalar rows the store persists.
func (o ExportOptions) OptionMap() map[string]string {
	return map[string]string{
		OptFileFormat: strconv.Itoa(int(o.FileFormat)),
		OptFeedback:   boolScalar(o.Feedback),
		OptOnlyActive: boolScalar(o.OnlyActive),
		OptReal:       boolScalar(o.Real),
		OptPercentage: boolScalar(o.Percentage),
		OptLetter:     boolScalar(o.Letter),
		OptDecimals:   strconv.Itoa(o.Decimals),
		OptSeparator:  strconv.Itoa(int(o.Separator)),
	}
}

// OptionsFromMap coerces stored scalars back into options. Keys that are
// missing or don't coerce keep the value from defaults.
func OptionsFromMap(stored map[string]string, defaults ExportOptions) ExportOptions {
	opts := defaults

	if v, ok := intOption(stored, OptFileFormat, 0, 2); ok {
		opts.FileFormat = FileFormat(v)
	}
	if v, ok := boolOption(stored, OptFeedback); ok {
		opts.Feedback = v
	}
	if v, ok := boolOption(stored, OptOnlyActive); ok {
		opts.OnlyActive = v
	}
	if v, ok := boolOption(stored, OptReal); ok {
		opts.Real = v
	}
	if v, ok := boolOption(stored, OptPercentage); ok {
		opts.Percentage = v
	}
	if v, ok := boolOption(stored, OptLetter); ok {
		opts.Letter = v
	}
	if v, ok := intOption(stored, OptDecimals, 0, 5); ok {
		opts.Decimals = v
	}
	if raw, ok := stored[OptSeparator]; ok {
		if v, ok := intOption(stored, OptSeparator, 0, 3); ok {
			opts.Separator = Separator(v)
		} else if sep, ok := ParseSeparator(raw); ok {
			opts.Separator = sep
		}
	}

	return opts
}

func boolScalar(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func intOption(stored map[string]string, key string, min, max int) (int, bool) {
	raw, ok := stored[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < min || v > max {
		return 0, false
	}
	return v, true
}

// display flags were historically stored as the display type constant
// (1, 2, 3) rather than 1, so anything non-zero counts as set
func boolOption(stored map[string]string, key string) (bool, bool) {
	raw, ok := stored[key]
	if !ok {
		return false, false
	}
	raw = strings.TrimSpace(raw)
	if v, err := strconv.Atoi(raw); err == nil {
		return v != 0, true
	}
	if v, err := strconv.ParseBool(raw); err == nil {
		return v, true
	}
	return false, false
}
