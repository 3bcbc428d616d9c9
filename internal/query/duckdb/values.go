package duckdb

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	goduckdb "github.com/marcboeker/go-duckdb/v2"

	"github.com/medinsight/medinsight/internal/query"
)

func normalizeValues(columns []query.Column, values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		databaseType := ""
		if i < len(columns) {
			databaseType = columns[i].DatabaseType
		}
		normalized[i] = normalizeValue(databaseType, value)
	}
	return normalized
}

func normalizeValue(databaseType string, value any) any {
	switch typed := value.(type) {
	case nil, string, bool, int64, float64, time.Time:
		return typed
	case []byte:
		if strings.EqualFold(databaseType, "UUID") && len(typed) == 16 {
			if id, err := uuid.FromBytes(typed); err == nil {
				return id.String()
			}
		}
		return string(typed)
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case uint64:
		if typed <= 1<<63-1 {
			return int64(typed)
		}
		return float64(typed)
	case float32:
		return float64(typed)
	case *big.Int:
		if typed.IsInt64() {
			return typed.Int64()
		}
		f, _ := new(big.Float).SetInt(typed).Float64()
		return f
	case goduckdb.Decimal:
		return typed.Float64()
	case goduckdb.Interval:
		return fmt.Sprintf("%d months %d days %dus", typed.Months, typed.Days, typed.Micros)
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}
