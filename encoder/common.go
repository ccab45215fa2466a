package encoder

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	ge "github.com/mimiro-io/grade-export"
)

const (
	FormatCSV      = "csv"
	FormatTSV      = "tsv"
	FormatJSON     = "json"
	FormatXLSX     = "xlsx"
	FormatParquet  = "parquet"
	FormatFlatFile = "flatfile"
	FormatEntities = "entities"
)

// Column is one output column. Key is used where the format has field names, Title
// where it has a header row.
type Column struct {
	Key   string
	Title string
}

type Item interface {
	GetValue(key string) any
	SetValue(key string, value any)
	GetPropertyNames() []string
	NativeItem() any
}

type ItemWriterCloser interface {
	Write(item Item) error
	Close() error
}

type ItemFactory interface {
	NewItem() Item
}

func NewItemWriter(format string, sourceConfig map[string]any, columns []Column, logger ge.Logger, data io.WriteCloser) (ItemWriterCloser, error) {
	if sourceConfig == nil {
		sourceConfig = map[string]any{}
	}
	var (
		writer ItemWriterCloser
		err    error
	)
	switch strings.ToLower(format) {
	case FormatCSV:
		writer, err = NewCSVItemWriter(sourceConfig, columns, data)
	case FormatTSV:
		conf := map[string]any{"separator": "\t"}
		for k, v := range sourceConfig {
			conf[k] = v
		}
		writer, err = NewCSVItemWriter(conf, columns, data)
	case FormatJSON:
		writer, err = NewJsonItemWriter(sourceConfig, columns, logger, data)
	case FormatXLSX:
		writer, err = NewXLSXItemWriter(sourceConfig, columns, data)
	case FormatParquet:
		writer, err = NewParquetItemWriter(sourceConfig, columns, data)
	case FormatFlatFile:
		writer, err = NewFlatFileItemWriter(sourceConfig, columns, data)
	case FormatEntities:
		writer, err = NewEntityItemWriter(sourceConfig, columns, data)
	default:
		return nil, ge.Errorf(ge.LayerNotSupported, "unsupported export format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return writer, nil
}

// Extension returns the file extension for the format, including the dot.
func Extension(format string) string {
	switch strings.ToLower(format) {
	case FormatTSV:
		return ".tsv"
	case FormatJSON, FormatEntities:
		return ".json"
	case FormatXLSX:
		return ".xlsx"
	case FormatParquet:
		return ".parquet"
	case FormatFlatFile:
		return ".txt"
	default:
		return ".csv"
	}
}

func ContentType(format string) string {
	switch strings.ToLower(format) {
	case FormatTSV:
		return "text/tab-separated-values; charset=utf-8"
	case FormatJSON, FormatEntities:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	case FormatFlatFile:
		return "text/plain; charset=utf-8"
	default:
		return "text/csv; charset=utf-8"
	}
}

// SanitizeKey turns a column key into an identifier made of letters, digits and underscores.
func SanitizeKey(key string) string {
	var b strings.Builder
	for i, r := range key {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || r == '_'):
			b.WriteRune(r)
		case r < unicode.MaxASCII && unicode.IsDigit(r):
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// stringValue renders a cell value as text, nil becomes empty.
func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

/******************************************************************************/

// RowItem is the Item produced for each exported user.
type RowItem struct {
	data map[string]any
}

type RowItemFactory struct{}

func (f *RowItemFactory) NewItem() Item {
	return &RowItem{data: make(map[string]any)}
}

func (item *RowItem) GetValue(key string) any {
	return item.data[key]
}

func (item *RowItem) SetValue(key string, value any) {
	item.data[key] = value
}

func (item *RowItem) GetPropertyNames() []string {
	keys := make([]string, 0, len(item.data))
	for k := range item.data {
		keys = append(keys, k)
	}
	return keys
}

func (item *RowItem) NativeItem() any {
	return item.data
}
