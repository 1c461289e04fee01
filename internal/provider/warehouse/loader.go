package warehouse

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/duckdb/duckdb-go/v2"
)

// BulkLoader moves one materialized batch into a table. The first batch of a
// stream arrives with create and overwrite set; later batches append.
type BulkLoader interface {
	Load(ctx context.Context, db *sql.DB, table string, batch arrow.RecordBatch, create, overwrite bool) error
}

// appenderLoader feeds rows through DuckDB's native appender, which batches
// inserts far more efficiently than prepared INSERT statements. The appender
// has no create path of its own; the table already exists by the time the
// create flag is set, so the flags are not consulted here.
type appenderLoader struct{}

func (appenderLoader) Load(ctx context.Context, db *sql.DB, table string, batch arrow.RecordBatch, _, _ bool) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type %T", driverConn)
		}
		app, err := duckdb.NewAppenderFromConn(dc, "", table)
		if err != nil {
			return fmt.Errorf("open appender for %q: %w", table, err)
		}
		for row := int64(0); row < batch.NumRows(); row++ {
			if err := ctx.Err(); err != nil {
				app.Close()
				return err
			}
			vals := make([]driver.Value, batch.NumCols())
			for col := 0; col < int(batch.NumCols()); col++ {
				v, err := cellValue(batch.Column(col), int(row))
				if err != nil {
					app.Close()
					return fmt.Errorf("table %q column %q: %w", table, batch.ColumnName(col), err)
				}
				vals[col] = v
			}
			if err := app.AppendRow(vals...); err != nil {
				app.Close()
				return fmt.Errorf("append to %q: %w", table, err)
			}
		}
		// Close flushes, so each batch is durable before the next arrives.
		if err := app.Close(); err != nil {
			return fmt.Errorf("flush %q: %w", table, err)
		}
		return nil
	})
}

// cellValue extracts one cell as a driver value the appender accepts.
func cellValue(col arrow.Array, row int) (driver.Value, error) {
	if col.IsNull(row) {
		return nil, nil
	}
	switch c := col.(type) {
	case *array.Boolean:
		return c.Value(row), nil
	case *array.Int8:
		return c.Value(row), nil
	case *array.Int16:
		return c.Value(row), nil
	case *array.Int32:
		return c.Value(row), nil
	case *array.Int64:
		return c.Value(row), nil
	case *array.Uint8:
		return c.Value(row), nil
	case *array.Uint16:
		return c.Value(row), nil
	case *array.Uint32:
		return c.Value(row), nil
	case *array.Uint64:
		return c.Value(row), nil
	case *array.Float32:
		return c.Value(row), nil
	case *array.Float64:
		return c.Value(row), nil
	case *array.String:
		return c.Value(row), nil
	case *array.LargeString:
		return c.Value(row), nil
	case *array.Binary:
		return c.Value(row), nil
	case *array.LargeBinary:
		return c.Value(row), nil
	case *array.Date32:
		return c.Value(row).ToTime(), nil
	case *array.Date64:
		return c.Value(row).ToTime(), nil
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		return c.Value(row).ToTime(unit), nil
	default:
		return nil, fmt.Errorf("unsupported arrow array type %T", col)
	}
}
