package encoder

import (
	"fmt"
	"io"
	"strings"

	goparquet "github.com/fraugster/parquet-go"
	"github.com/fraugster/parquet-go/parquet"
	"github.com/fraugster/parquet-go/parquetschema"
	"go.uber.org/multierr"

	ge "github.com/mimiro-io/grade-export"
)

const defaultFlushThreshold = 1 * 1024 * 1024

type ParquetEncoderConfig struct {
	SchemaDef      *parquetschema.SchemaDefinition
	MessageName    string
	FlushThreshold int64
}

// NewParquetEncoderConfig derives an all optional string schema from the columns. Source
// config keys: parquet_name (message name, default grades) and flush_threshold in bytes.
func NewParquetEncoderConfig(sourceConfig map[string]any, columns []Column) (*ParquetEncoderConfig, error) {
	config := &ParquetEncoderConfig{MessageName: "grades", FlushThreshold: defaultFlushThreshold}
	if name, ok := sourceConfig["parquet_name"].(string); ok && name != "" {
		config.MessageName = SanitizeKey(name)
	}
	switch v := sourceConfig["flush_threshold"].(type) {
	case float64:
		config.FlushThreshold = int64(v)
	case int64:
		config.FlushThreshold = v
	case int:
		config.FlushThreshold = int64(v)
	}

	schema, err := createParquetSchema(config.MessageName, columns)
	if err != nil {
		return nil, err
	}
	config.SchemaDef, err = parquetschema.ParseSchemaDefinition(schema)
	if err != nil {
		return nil, ge.Err(fmt.Errorf("invalid parquet schema: %w", err), ge.LayerErrorBadParameter)
	}
	return config, nil
}

func createParquetSchema(messageName string, columns []Column) (string, error) {
	seen := make(map[string]bool, len(columns))
	var b strings.Builder
	fmt.Fprintf(&b, "message %s {\n", messageName)
	for _, col := range columns {
		name := SanitizeKey(col.Key)
		if name == "" || seen[name] {
			return "", ge.Errorf(ge.LayerErrorBadParameter, "column key %q is not unique as parquet field", col.Key)
		}
		seen[name] = true
		fmt.Fprintf(&b, "  optional binary %s (STRING);\n", name)
	}
	b.WriteString("}\n")
	return b.String(), nil
}

type ParquetItemWriter struct {
	data    io.WriteCloser
	writer  *goparquet.FileWriter
	columns []Column
	config  *ParquetEncoderConfig
}

func NewParquetItemWriter(sourceConfig map[string]any, columns []Column, data io.WriteCloser) (*ParquetItemWriter, error) {
	config, err := NewParquetEncoderConfig(sourceConfig, columns)
	if err != nil {
		return nil, err
	}

	enc := goparquet.NewFileWriter(data,
		goparquet.WithCompressionCodec(parquet.CompressionCodec_SNAPPY),
		goparquet.WithSchemaDefinition(config.SchemaDef),
		goparquet.WithCreator("grade-export"))
	return &ParquetItemWriter{data: data, writer: enc, columns: columns, config: config}, nil
}

func (c *ParquetItemWriter) Write(item Item) error {
	row := make(map[string]any, len(c.columns))
	for _, col := range c.columns {
		val := item.GetValue(col.Key)
		if val == nil {
			continue
		}
		row[SanitizeKey(col.Key)] = []byte(stringValue(val))
	}
	if err := c.writer.AddData(row); err != nil {
		return err
	}
	if c.writer.CurrentRowGroupSize() > c.config.FlushThreshold {
		return c.writer.FlushRowGroup()
	}
	return nil
}

func (c *ParquetItemWriter) Close() error {
	err := c.writer.Close()
	return multierr.Append(err, c.data.Close())
}
