package warehouse

import (
	"database/sql"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// rowBatchSize bounds the rows buffered into one record batch.
const rowBatchSize = 1024

// rowReader adapts *sql.Rows into an arrow record stream. Batches are built
// lazily, at most rowBatchSize rows at a time.
type rowReader struct {
	refCount atomic.Int64
	rows     *sql.Rows
	schema   *arrow.Schema
	cur      arrow.RecordBatch
	err      error
	done     bool
}

// schemaFromRows infers the arrow schema for a result set from its driver
// column types.
func schemaFromRows(rows *sql.Rows) (*arrow.Schema, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	fields := make([]arrow.Field, len(cols))
	for i, col := range cols {
		dbType := "VARCHAR"
		if i < len(colTypes) && colTypes[i] != nil {
			dbType = colTypes[i].DatabaseTypeName()
		}
		fields[i] = arrow.Field{Name: col, Type: arrowType(dbType), Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

// newRowReader takes ownership of rows; Release closes them.
func newRowReader(rows *sql.Rows) (*rowReader, error) {
	schema, err := schemaFromRows(rows)
	if err != nil {
		rows.Close()
		return nil, err
	}
	r := &rowReader{rows: rows, schema: schema}
	r.refCount.Store(1)
	return r, nil
}

func (r *rowReader) Retain() { r.refCount.Add(1) }

func (r *rowReader) Release() {
	if r.refCount.Add(-1) == 0 {
		if r.cur != nil {
			r.cur.Release()
			r.cur = nil
		}
		r.rows.Close()
	}
}

func (r *rowReader) Schema() *arrow.Schema { return r.schema }

func (r *rowReader) Next() bool {
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	if r.done || r.err != nil {
		return false
	}

	builder := array.NewRecordBuilder(memory.DefaultAllocator, r.schema)
	defer builder.Release()

	numFields := r.schema.NumFields()
	count := 0
	for count < rowBatchSize && r.rows.Next() {
		values := make([]any, numFields)
		ptrs := make([]any, numFields)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := r.rows.Scan(ptrs...); err != nil {
			r.err = err
			return false
		}
		for i, val := range values {
			if err := appendValue(builder.Field(i), val); err != nil {
				r.err = err
				return false
			}
		}
		count++
	}
	if count < rowBatchSize {
		r.done = true
		if err := r.rows.Err(); err != nil {
			r.err = err
			return false
		}
	}
	if count == 0 {
		return false
	}
	r.cur = builder.NewRecordBatch()
	return true
}

func (r *rowReader) RecordBatch() arrow.RecordBatch { return r.cur }

func (r *rowReader) Record() arrow.Record { return r.cur }

func (r *rowReader) Err() error { return r.err }
