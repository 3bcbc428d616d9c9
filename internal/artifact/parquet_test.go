package artifact

import (
	"testing"
	"time"

	"github.com/medinsight/medinsight/internal/query"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	day := time.Date(2024, time.October, 1, 0, 0, 0, 0, time.UTC)
	table := query.Table{
		Columns: []query.Column{
			{Name: "month", DatabaseType: "DATE", Kind: query.KindTemporal},
			{Name: "район", DatabaseType: "VARCHAR", Kind: query.KindText},
			{Name: "prescriptions", DatabaseType: "BIGINT", Kind: query.KindNumeric},
			{Name: "avg_cost", DatabaseType: "DOUBLE", Kind: query.KindNumeric},
			{Name: "chronic", DatabaseType: "BOOLEAN", Kind: query.KindText},
		},
		Rows: [][]any{
			{day, "Центральный", int64(120), 15.75, true},
			{day.AddDate(0, 1, 0), nil, int64(98), nil, false},
		},
		Capped:   true,
		Duration: 42 * time.Millisecond,
	}

	data, err := Encode(table)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty parquet payload")
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got.Columns) != len(table.Columns) {
		t.Fatalf("columns = %+v", got.Columns)
	}
	for i, column := range table.Columns {
		if got.Columns[i] != column {
			t.Fatalf("column %d = %+v, want %+v", i, got.Columns[i], column)
		}
	}
	if len(got.Rows) != 2 {
		t.Fatalf("rows = %d", len(got.Rows))
	}
	if !got.Rows[0][0].(time.Time).Equal(day) {
		t.Fatalf("time value = %v", got.Rows[0][0])
	}
	if got.Rows[0][1] != "Центральный" || got.Rows[0][2] != int64(120) || got.Rows[0][3] != 15.75 || got.Rows[0][4] != true {
		t.Fatalf("row 0 = %#v", got.Rows[0])
	}
	if got.Rows[1][1] != nil || got.Rows[1][3] != nil || got.Rows[1][4] != false {
		t.Fatalf("row 1 = %#v", got.Rows[1])
	}
	if !got.Capped || got.Duration != table.Duration {
		t.Fatalf("capped/duration = %v/%s", got.Capped, got.Duration)
	}
}

func TestEncodeDecodeKeepsDatesOutsideNanosecondRange(t *testing.T) {
	values := []time.Time{
		time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC),
		time.Date(1600, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.October, 1, 9, 30, 15, 123456789, time.UTC),
	}
	table := query.Table{Columns: []query.Column{{Name: "valid_until", DatabaseType: "DATE", Kind: query.KindTemporal}}}
	for _, value := range values {
		table.Rows = append(table.Rows, []any{value})
	}

	data, err := Encode(table)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	for i, want := range values {
		value, ok := got.Rows[i][0].(time.Time)
		if !ok || !value.Equal(want) {
			t.Fatalf("row %d = %v, want %v", i, got.Rows[i][0], want)
		}
	}
}

func TestEncodeKeepsColumnsOfEmptyTable(t *testing.T) {
	table := query.Table{Columns: []query.Column{{Name: "trade_name", DatabaseType: "VARCHAR", Kind: query.KindText}}}
	data, err := Encode(table)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got.Columns) != 1 || got.Columns[0].Name != "trade_name" || len(got.Rows) != 0 {
		t.Fatalf("Decode() = %+v", got)
	}
}

func TestEncodeRejectsRaggedRows(t *testing.T) {
	table := query.Table{
		Columns: []query.Column{{Name: "a"}, {Name: "b"}},
		Rows:    [][]any{{int64(1)}},
	}
	if _, err := Encode(table); err == nil {
		t.Fatal("expected ragged row error")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not parquet")); err == nil {
		t.Fatal("expected decode error")
	}
}
