package query

import (
	"strings"
	"time"
)

// KindForDatabaseType classifies a DuckDB type name. It returns an empty kind
// for types it does not know so callers can fall back to InferKind.
func KindForDatabaseType(databaseType string) Kind {
	name := strings.ToUpper(strings.TrimSpace(databaseType))
	if name == "" {
		return ""
	}
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	switch name {
	case "TINYINT", "SMALLINT", "INTEGER", "INT", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT", "UHUGEINT",
		"FLOAT", "REAL", "DOUBLE", "DECIMAL", "NUMERIC":
		return KindNumeric
	case "DATE", "TIME", "TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE",
		"TIMESTAMP_S", "TIMESTAMP_MS", "TIMESTAMP_NS", "TIME WITH TIME ZONE", "TIMETZ":
		return KindTemporal
	case "VARCHAR", "TEXT", "STRING", "CHAR", "BPCHAR", "UUID", "BOOLEAN", "BOOL",
		"INTERVAL", "BLOB", "ENUM", "JSON":
		return KindText
	}
	return ""
}

// InferKind classifies a column from its non-null values: all numbers is
// numeric, all times is temporal, anything else is text.
func InferKind(values []any) Kind {
	numeric, temporal, seen := true, true, 0
	for _, value := range values {
		if value == nil {
			continue
		}
		seen++
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			temporal = false
		case time.Time:
			numeric = false
		default:
			numeric, temporal = false, false
		}
	}
	switch {
	case seen == 0:
		return KindText
	case numeric:
		return KindNumeric
	case temporal:
		return KindTemporal
	default:
		return KindText
	}
}
