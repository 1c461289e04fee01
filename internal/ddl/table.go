package ddl

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"flightgate/internal/domain"
)

// SQLType maps an Arrow column type to its DuckDB column type. Types with no
// sensible SQL equivalent report UnsupportedDataFormatError.
func SQLType(dt arrow.DataType) (string, error) {
	switch t := dt.(type) {
	case *arrow.BooleanType:
		return "BOOLEAN", nil
	case *arrow.Int8Type:
		return "TINYINT", nil
	case *arrow.Int16Type:
		return "SMALLINT", nil
	case *arrow.Int32Type:
		return "INTEGER", nil
	case *arrow.Int64Type:
		return "BIGINT", nil
	case *arrow.Uint8Type:
		return "UTINYINT", nil
	case *arrow.Uint16Type:
		return "USMALLINT", nil
	case *arrow.Uint32Type:
		return "UINTEGER", nil
	case *arrow.Uint64Type:
		return "UBIGINT", nil
	case *arrow.Float32Type:
		return "FLOAT", nil
	case *arrow.Float64Type:
		return "DOUBLE", nil
	case *arrow.StringType, *arrow.LargeStringType:
		return "VARCHAR", nil
	case *arrow.BinaryType, *arrow.LargeBinaryType:
		return "BLOB", nil
	case *arrow.Date32Type, *arrow.Date64Type:
		return "DATE", nil
	case *arrow.TimestampType:
		return "TIMESTAMP", nil
	case *arrow.Time32Type, *arrow.Time64Type:
		return "TIME", nil
	case *arrow.Decimal128Type:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale), nil
	case *arrow.ListType:
		inner, err := SQLType(t.Elem())
		if err != nil {
			return "", err
		}
		return inner + "[]", nil
	default:
		return "", domain.ErrUnsupportedDataFormat("arrow type %s has no SQL column type", dt)
	}
}

// CreateTable returns CREATE TABLE "<table>" ("<col>" TYPE, ...) for the
// given Arrow schema.
func CreateTable(table string, schema *arrow.Schema) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if schema == nil || schema.NumFields() == 0 {
		return "", fmt.Errorf("at least one column is required")
	}

	var colDefs []string
	for _, f := range schema.Fields() {
		if err := ValidateIdentifier(f.Name); err != nil {
			return "", fmt.Errorf("invalid column name %q: %w", f.Name, err)
		}
		sqlType, err := SQLType(f.Type)
		if err != nil {
			return "", fmt.Errorf("column %q: %w", f.Name, err)
		}
		if !f.Nullable {
			sqlType += " NOT NULL"
		}
		colDefs = append(colDefs, fmt.Sprintf("%s %s", QuoteIdentifier(f.Name), sqlType))
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)",
		QuoteIdentifier(table),
		strings.Join(colDefs, ", "),
	), nil
}

// DropTableIfExists returns DROP TABLE IF EXISTS "<table>".
func DropTableIfExists(table string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", QuoteIdentifier(table)), nil
}

// SelectAll returns SELECT * FROM "<table>".
func SelectAll(table string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	return fmt.Sprintf("SELECT * FROM %s", QuoteIdentifier(table)), nil
}

// DescribeTable returns a zero-row probe used to discover a table's schema:
// SELECT * FROM "<table>" LIMIT 0.
func DescribeTable(table string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	return fmt.Sprintf("SELECT * FROM %s LIMIT 0", QuoteIdentifier(table)), nil
}

// ListTables returns the query enumerating user tables from DuckDB's catalog.
func ListTables() string {
	return "SELECT table_name FROM duckdb_tables() ORDER BY table_name"
}
