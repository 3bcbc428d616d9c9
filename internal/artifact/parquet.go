// Package artifact stores result tables as Parquet so an answer can be
// redisplayed after the turn that produced it.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/medinsight/medinsight/internal/query"
)

const ContentType = "application/vnd.apache.parquet"

// Tables have arbitrary columns, so they are written in long format: a
// metadata record, one header record per column, then one record per cell.
const (
	metaRow   int64 = -2
	headerRow int64 = -1
)

const (
	valueNull  = "null"
	valueInt   = "int"
	valueFloat = "float"
	valueText  = "text"
	valueBool  = "bool"
	valueTime  = "time"
)

type record struct {
	Row          int64    `parquet:"row"`
	Column       int32    `parquet:"column"`
	Name         string   `parquet:"name"`
	Kind         string   `parquet:"kind"`
	DatabaseType string   `parquet:"database_type"`
	ValueType    string   `parquet:"value_type"`
	Int          *int64   `parquet:"int,optional"`
	Float        *float64 `parquet:"float,optional"`
	Text         *string  `parquet:"text,optional"`
	Bool         *bool    `parquet:"bool,optional"`
	// Times are split into seconds and nanoseconds so dates outside the
	// int64 nanosecond range (1678 to 2262), such as 9999-12-31, survive.
	TimeUnix  *int64 `parquet:"time_unix,optional"`
	TimeNanos *int32 `parquet:"time_nanos,optional"`
}

func Encode(table query.Table) ([]byte, error) {
	records := make([]record, 0, 1+len(table.Columns)*(1+len(table.Rows)))

	capped := table.Capped
	durationNanos := int64(table.Duration)
	rowCount := int64(len(table.Rows))
	records = append(records, record{
		Row:       metaRow,
		Column:    int32(len(table.Columns)),
		ValueType: "meta",
		Bool:      &capped,
		Int:       &rowCount,
		Float:     ptr(float64(durationNanos)),
	})

	for i, column := range table.Columns {
		records = append(records, record{
			Row:          headerRow,
			Column:       int32(i),
			Name:         column.Name,
			Kind:         string(column.Kind),
			DatabaseType: column.DatabaseType,
			ValueType:    valueNull,
		})
	}
	for r, row := range table.Rows {
		if len(row) != len(table.Columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", r, len(row), len(table.Columns))
		}
		for c, value := range row {
			records = append(records, cellRecord(int64(r), int32(c), value))
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[record](buf)
	if _, err := writer.Write(records); err != nil {
		return nil, fmt.Errorf("write parquet records: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func Decode(data []byte) (query.Table, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return query.Table{}, fmt.Errorf("open parquet artifact: %w", err)
	}
	reader := parquet.NewGenericReader[record](file)
	defer func() { _ = reader.Close() }()

	records := make([]record, reader.NumRows())
	count, err := reader.Read(records)
	if err != nil && !errors.Is(err, io.EOF) {
		return query.Table{}, fmt.Errorf("read parquet records: %w", err)
	}
	records = records[:count]
	if len(records) == 0 || records[0].Row != metaRow {
		return query.Table{}, fmt.Errorf("artifact has no metadata record")
	}

	meta := records[0]
	columnCount := int(meta.Column)
	rowCount := 0
	if meta.Int != nil {
		rowCount = int(*meta.Int)
	}
	table := query.Table{
		Columns: make([]query.Column, columnCount),
		Rows:    make([][]any, rowCount),
	}
	if meta.Bool != nil {
		table.Capped = *meta.Bool
	}
	if meta.Float != nil {
		table.Duration = time.Duration(*meta.Float)
	}
	for i := range table.Rows {
		table.Rows[i] = make([]any, columnCount)
	}

	for _, rec := range records[1:] {
		column := int(rec.Column)
		if column < 0 || column >= columnCount {
			return query.Table{}, fmt.Errorf("record column %d out of range", column)
		}
		if rec.Row == headerRow {
			table.Columns[column] = query.Column{
				Name:         rec.Name,
				DatabaseType: rec.DatabaseType,
				Kind:         query.Kind(rec.Kind),
			}
			continue
		}
		if rec.Row < 0 || rec.Row >= int64(rowCount) {
			return query.Table{}, fmt.Errorf("record row %d out of range", rec.Row)
		}
		value, err := cellValue(rec)
		if err != nil {
			return query.Table{}, err
		}
		table.Rows[rec.Row][column] = value
	}
	return table, nil
}

func cellRecord(row int64, column int32, value any) record {
	rec := record{Row: row, Column: column}
	switch v := value.(type) {
	case nil:
		rec.ValueType = valueNull
	case int64:
		rec.ValueType, rec.Int = valueInt, ptr(v)
	case int:
		rec.ValueType, rec.Int = valueInt, ptr(int64(v))
	case int32:
		rec.ValueType, rec.Int = valueInt, ptr(int64(v))
	case float64:
		rec.ValueType, rec.Float = valueFloat, ptr(v)
	case float32:
		rec.ValueType, rec.Float = valueFloat, ptr(float64(v))
	case string:
		rec.ValueType, rec.Text = valueText, ptr(v)
	case bool:
		rec.ValueType, rec.Bool = valueBool, ptr(v)
	case time.Time:
		rec.ValueType, rec.TimeUnix, rec.TimeNanos = valueTime, ptr(v.Unix()), ptr(int32(v.Nanosecond()))
	default:
		rec.ValueType, rec.Text = valueText, ptr(fmt.Sprint(v))
	}
	return rec
}

func cellValue(rec record) (any, error) {
	switch rec.ValueType {
	case valueNull:
		return nil, nil
	case valueInt:
		return deref(rec.Int, rec)
	case valueFloat:
		return deref(rec.Float, rec)
	case valueText:
		return deref(rec.Text, rec)
	case valueBool:
		return deref(rec.Bool, rec)
	case valueTime:
		seconds, err := deref(rec.TimeUnix, rec)
		if err != nil {
			return nil, err
		}
		nanos, err := deref(rec.TimeNanos, rec)
		if err != nil {
			return nil, err
		}
		return time.Unix(seconds, int64(nanos)).UTC(), nil
	default:
		return nil, fmt.Errorf("cell %d/%d has unknown value type %q", rec.Row, rec.Column, rec.ValueType)
	}
}

func deref[T any](value *T, rec record) (T, error) {
	if value == nil {
		var zero T
		return zero, fmt.Errorf("cell %d/%d is missing its %s value", rec.Row, rec.Column, rec.ValueType)
	}
	return *value, nil
}

func ptr[T any](value T) *T {
	return &value
}
