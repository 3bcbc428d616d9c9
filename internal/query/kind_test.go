package query

import (
	"testing"
	"time"
)

func TestKindForDatabaseType(t *testing.T) {
	tests := map[string]Kind{
		"BIGINT":        KindNumeric,
		"DECIMAL(18,3)": KindNumeric,
		"double":        KindNumeric,
		"DATE":          KindTemporal,
		"TIMESTAMP":     KindTemporal,
		"VARCHAR":       KindText,
		"STRUCT(a INT)": "",
		"":              "",
	}
	for in, want := range tests {
		if got := KindForDatabaseType(in); got != want {
			t.Fatalf("KindForDatabaseType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveKindsInfersFromValues(t *testing.T) {
	table := Table{
		Columns: []Column{{Name: "n"}, {Name: "d"}, {Name: "s"}, {Name: "nulls"}, {Name: "typed", Kind: KindText}},
		Rows: [][]any{
			{int64(1), time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), "a", nil, int64(7)},
			{2.5, nil, int64(3), nil, int64(8)},
		},
	}
	table.ResolveKinds()
	want := []Kind{KindNumeric, KindTemporal, KindText, KindText, KindText}
	for i, column := range table.Columns {
		if column.Kind != want[i] {
			t.Fatalf("column %q kind = %q, want %q", column.Name, column.Kind, want[i])
		}
	}
}

func TestHeadLimitsRowsWithoutTouchingColumns(t *testing.T) {
	table := Table{Columns: []Column{{Name: "x"}}, Rows: [][]any{{1}, {2}, {3}}}
	head := table.Head(2)
	if len(head.Rows) != 2 || len(head.Columns) != 1 {
		t.Fatalf("Head() = %+v", head)
	}
	if len(table.Head(10).Rows) != 3 {
		t.Fatal("Head() beyond length should return all rows")
	}
}
