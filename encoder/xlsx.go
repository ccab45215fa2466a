package encoder

import (
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
	"go.uber.org/multierr"
)

const defaultSheetName = "Grades"

// XLSXItemWriter streams rows into a single worksheet. The workbook is written to the
// sink on Close. Numeric values become number cells.
type XLSXItemWriter struct {
	data    io.WriteCloser
	file    *excelize.File
	stream  *excelize.StreamWriter
	columns []Column
	row     int
}

func NewXLSXItemWriter(sourceConfig map[string]any, columns []Column, data io.WriteCloser) (*XLSXItemWriter, error) {
	sheet := defaultSheetName
	if name, ok := sourceConfig["sheet_name"].(string); ok && name != "" {
		sheet = name
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, multierr.Append(err, f.Close())
	}
	stream, err := f.NewStreamWriter(sheet)
	if err != nil {
		return nil, multierr.Append(err, f.Close())
	}

	writer := &XLSXItemWriter{data: data, file: f, stream: stream, columns: columns}
	header := make([]any, len(columns))
	for i, col := range columns {
		header[i] = col.Title
	}
	if err := writer.writeRow(header); err != nil {
		return nil, multierr.Append(err, f.Close())
	}
	return writer, nil
}

func (x *XLSXItemWriter) writeRow(values []any) error {
	x.row++
	cell, err := excelize.CoordinatesToCellName(1, x.row)
	if err != nil {
		return err
	}
	return x.stream.SetRow(cell, values)
}

func (x *XLSXItemWriter) Write(item Item) error {
	values := make([]any, len(x.columns))
	for i, col := range x.columns {
		values[i] = cellValue(item.GetValue(col.Key))
	}
	return x.writeRow(values)
}

func (x *XLSXItemWriter) Close() error {
	err := x.stream.Flush()
	if err == nil {
		err = x.file.Write(x.data)
	}
	err = multierr.Append(err, x.file.Close())
	return multierr.Append(err, x.data.Close())
}

func cellValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
