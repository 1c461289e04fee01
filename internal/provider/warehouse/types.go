package warehouse

import (
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// arrowType maps a DuckDB column type name (as reported by database/sql) to
// the Arrow type the stream carries. Unrecognized types fall back to VARCHAR
// so the row still round-trips.
func arrowType(dbType string) arrow.DataType {
	base := strings.ToUpper(dbType)
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = base[:i]
	}
	switch base {
	case "BOOLEAN", "BOOL":
		return arrow.FixedWidthTypes.Boolean
	case "TINYINT":
		return arrow.PrimitiveTypes.Int8
	case "SMALLINT":
		return arrow.PrimitiveTypes.Int16
	case "INTEGER", "INT":
		return arrow.PrimitiveTypes.Int32
	case "BIGINT", "HUGEINT":
		return arrow.PrimitiveTypes.Int64
	case "UTINYINT":
		return arrow.PrimitiveTypes.Uint8
	case "USMALLINT":
		return arrow.PrimitiveTypes.Uint16
	case "UINTEGER":
		return arrow.PrimitiveTypes.Uint32
	case "UBIGINT":
		return arrow.PrimitiveTypes.Uint64
	case "FLOAT", "REAL":
		return arrow.PrimitiveTypes.Float32
	case "DOUBLE", "DECIMAL", "NUMERIC":
		return arrow.PrimitiveTypes.Float64
	case "DATE":
		return arrow.FixedWidthTypes.Date32
	case "TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE", "DATETIME":
		return arrow.FixedWidthTypes.Timestamp_us
	case "BLOB", "BYTEA":
		return arrow.BinaryTypes.Binary
	default:
		return arrow.BinaryTypes.String
	}
}

// appendValue appends one scanned SQL value to the matching arrow builder.
// nil scans append null.
func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch fb := b.(type) {
	case *array.BooleanBuilder:
		fb.Append(v.(bool))
	case *array.Int8Builder:
		fb.Append(int8(asInt64(v)))
	case *array.Int16Builder:
		fb.Append(int16(asInt64(v)))
	case *array.Int32Builder:
		fb.Append(int32(asInt64(v)))
	case *array.Int64Builder:
		fb.Append(asInt64(v))
	case *array.Uint8Builder:
		fb.Append(uint8(asInt64(v)))
	case *array.Uint16Builder:
		fb.Append(uint16(asInt64(v)))
	case *array.Uint32Builder:
		fb.Append(uint32(asInt64(v)))
	case *array.Uint64Builder:
		fb.Append(uint64(asInt64(v)))
	case *array.Float32Builder:
		fb.Append(float32(asFloat64(v)))
	case *array.Float64Builder:
		fb.Append(asFloat64(v))
	case *array.Date32Builder:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time for DATE column, got %T", v)
		}
		fb.Append(arrow.Date32FromTime(t))
	case *array.TimestampBuilder:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time for TIMESTAMP column, got %T", v)
		}
		ts, err := arrow.TimestampFromTime(t, arrow.Microsecond)
		if err != nil {
			return err
		}
		fb.Append(ts)
	case *array.BinaryBuilder:
		fb.Append(v.([]byte))
	case *array.StringBuilder:
		fb.Append(asString(v))
	default:
		return fmt.Errorf("no builder mapping for %T", b)
	}
	return nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	case int8:
		return int64(t)
	case int:
		return int64(t)
	case uint64:
		return int64(t)
	case uint32:
		return int64(t)
	case uint16:
		return int64(t)
	case uint8:
		return int64(t)
	case uint:
		return int64(t)
	default:
		return 0
	}
}

func asFloat64(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	default:
		return float64(asInt64(v))
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
