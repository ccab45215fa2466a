package encoder

import (
	"encoding/json"
	"io"

	ge "github.com/mimiro-io/grade-export"
)

type JsonItemWriter struct {
	data             io.WriteCloser
	encoder          *json.Encoder
	columns          []Column
	firstItemWritten bool
	written          int
	logger           ge.Logger
}

// NewJsonItemWriter writes a json array with one object per item, keyed by column key.
// Set the source config key indent to pretty print.
func NewJsonItemWriter(sourceConfig map[string]any, columns []Column, logger ge.Logger, data io.WriteCloser) (*JsonItemWriter, error) {
	enc := json.NewEncoder(data)
	enc.SetEscapeHTML(false)
	if indent, ok := sourceConfig["indent"].(bool); ok && indent {
		enc.SetIndent("", "  ")
	}
	writer := &JsonItemWriter{data: data, encoder: enc, columns: columns, logger: logger}

	_, err := data.Write([]byte("[")) // write the start of the array
	if err != nil {
		return nil, err
	}
	return writer, nil
}

func (j *JsonItemWriter) Close() error {
	_, err := j.data.Write([]byte("]")) // write the end of the array
	if err != nil {
		_ = j.data.Close()
		return err
	}
	j.logger.Debug("json array closed", "items", j.written)
	return j.data.Close()
}

func (j *JsonItemWriter) Write(item Item) error {
	// if first item written, write a comma
	if j.firstItemWritten {
		_, err := j.data.Write([]byte(","))
		if err != nil {
			return err
		}
	} else {
		j.firstItemWritten = true
	}

	obj := make(map[string]any, len(j.columns))
	for _, col := range j.columns {
		obj[col.Key] = item.GetValue(col.Key)
	}
	j.written++
	return j.encoder.Encode(obj)
}
