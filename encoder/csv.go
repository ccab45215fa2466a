package encoder

import (
	"encoding/csv"
	"io"
	"unicode/utf8"

	ge "github.com/mimiro-io/grade-export"
)

type CSVItemWriter struct {
	data          io.WriteCloser
	encoder       *csv.Writer
	columns       []Column
	hasHeader     bool
	headerWritten bool
}

// NewCSVItemWriter supports the source config keys separator (a single character,
// default comma), has_header (default true) and crlf.
func NewCSVItemWriter(sourceConfig map[string]any, columns []Column, data io.WriteCloser) (*CSVItemWriter, error) {
	enc := csv.NewWriter(data)
	writer := &CSVItemWriter{data: data, encoder: enc, columns: columns, hasHeader: true}

	if separator, ok := sourceConfig["separator"].(string); ok && separator != "" {
		r, size := utf8.DecodeRuneInString(separator)
		if size != len(separator) {
			return nil, ge.Errorf(ge.LayerErrorBadParameter, "separator must be a single character, got %q", separator)
		}
		enc.Comma = r
	}
	if hasHeader, ok := sourceConfig["has_header"].(bool); ok {
		writer.hasHeader = hasHeader
	}
	if crlf, ok := sourceConfig["crlf"].(bool); ok {
		enc.UseCRLF = crlf
	}
	return writer, nil
}

func (c *CSVItemWriter) writeHeader() error {
	c.headerWritten = true
	if !c.hasHeader {
		return nil
	}
	header := make([]string, len(c.columns))
	for i, col := range c.columns {
		header[i] = col.Title
	}
	return c.encoder.Write(header)
}

func (c *CSVItemWriter) Write(item Item) error {
	if !c.headerWritten {
		if err := c.writeHeader(); err != nil {
			return err
		}
	}
	record := make([]string, len(c.columns))
	for i, col := range c.columns {
		record[i] = stringValue(item.GetValue(col.Key))
	}
	return c.encoder.Write(record)
}

// Close writes the header for empty exports, flushes and closes the sink.
func (c *CSVItemWriter) Close() error {
	if !c.headerWritten {
		if err := c.writeHeader(); err != nil {
			_ = c.data.Close()
			return err
		}
	}
	c.encoder.Flush()
	if err := c.encoder.Error(); err != nil {
		_ = c.data.Close()
		return err
	}
	return c.data.Close()
}
