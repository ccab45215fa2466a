package encoder

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	ge "github.com/mimiro-io/grade-export"
)

type FlatFileItemWriter struct {
	writer io.WriteCloser
	config *FlatFileConfig
}

type FlatFileConfig struct {
	Fields []FlatFileField `json:"fields"`
}

// FlatFileField is one fixed width field, fields are written in list order.
type FlatFileField struct {
	Name      string `json:"name"`
	Length    int    `json:"length"`
	NumberPad bool   `json:"number_pad"`
}

func NewFlatFileItemWriter(sourceConfig map[string]any, columns []Column, data io.WriteCloser) (*FlatFileItemWriter, error) {
	config, err := NewFlatFileWriteConfig(sourceConfig, columns)
	if err != nil {
		return nil, err
	}
	return &FlatFileItemWriter{writer: data, config: config}, nil
}

// NewFlatFileWriteConfig reads the fields list from the source config. Every field must
// name an exported column key and have a positive length.
func NewFlatFileWriteConfig(sourceConfig map[string]any, columns []Column) (*FlatFileConfig, error) {
	var config FlatFileConfig
	jsonData, err := json.Marshal(sourceConfig)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, ge.Err(fmt.Errorf("invalid flat file config: %w", err), ge.LayerErrorBadParameter)
	}
	if len(config.Fields) == 0 {
		return nil, ge.Errorf(ge.LayerErrorBadParameter, "missing field config for flat file")
	}
	known := make(map[string]bool, len(columns))
	for _, col := range columns {
		known[col.Key] = true
	}
	for _, field := range config.Fields {
		if field.Length <= 0 {
			return nil, ge.Errorf(ge.LayerErrorBadParameter, "flat file field %q needs a positive length", field.Name)
		}
		if !known[field.Name] {
			return nil, ge.Errorf(ge.LayerErrorBadParameter, "flat file field %q is not an export column", field.Name)
		}
	}
	return &config, nil
}

func (c *FlatFileItemWriter) Close() error {
	return c.writer.Close()
}

func (c *FlatFileItemWriter) Write(item Item) error {
	var line strings.Builder
	for _, field := range c.config.Fields {
		line.WriteString(fit(stringValue(item.GetValue(field.Name)), field))
	}
	line.WriteByte('\n')
	_, err := io.WriteString(c.writer, line.String())
	return err
}

// fit cuts or pads value to the field length. Number fields are padded with leading zeros.
func fit(value string, field FlatFileField) string {
	runes := []rune(value)
	if len(runes) >= field.Length {
		return string(runes[:field.Length])
	}
	pad := field.Length - len(runes)
	if field.NumberPad {
		return strings.Repeat("0", pad) + value
	}
	return value + strings.Repeat(" ", pad)
}
