// Package warehouse implements the SQL-backed storage provider on DuckDB.
// Each table path addresses one warehouse table; streams in become bulk
// loads and streams out become full-table scans.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"flightgate/internal/ddl"
	"flightgate/internal/domain"
	"flightgate/internal/provider"
)

// Kind is the provider kind this package registers under.
const Kind = "warehouse"

// Provider serves tables out of a single DuckDB database. The database is
// opened lazily on first use.
type Provider struct {
	dsn    string
	loader BulkLoader

	once    sync.Once
	db      *sql.DB
	openErr error
}

// New builds a warehouse provider from profile params.
//
// Recognized params:
//
//	database   path to the DuckDB database file; empty runs in-memory
func New(params map[string]string) (provider.Provider, error) {
	return &Provider{dsn: params["database"], loader: appenderLoader{}}, nil
}

func (p *Provider) conn() (*sql.DB, error) {
	p.once.Do(func() {
		p.db, p.openErr = sql.Open("duckdb", p.dsn)
	})
	return p.db, p.openErr
}

// PackPath accepts exactly one component, a plain table name, and normalizes
// it to upper case the way the warehouse stores identifiers.
func (p *Provider) PackPath(parts ...string) (string, error) {
	if len(parts) != 1 {
		return "", domain.ErrValidation("warehouse paths have exactly one component, got %d", len(parts))
	}
	if err := ddl.ValidateIdentifier(parts[0]); err != nil {
		return "", domain.ErrValidation("invalid table name %q: %v", parts[0], err)
	}
	return strings.ToUpper(parts[0]), nil
}

func (p *Provider) UnpackPath(path string) ([]string, error) {
	if err := ddl.ValidateIdentifier(path); err != nil {
		return nil, domain.ErrValidation("invalid table path %q: %v", path, err)
	}
	return []string{strings.ToUpper(path)}, nil
}

func (p *Provider) ReadFrom(ctx context.Context, path string, query *provider.Query) (array.RecordReader, error) {
	if query != nil {
		return nil, domain.ErrUnsupportedCriteria("warehouse provider does not support query pushdown")
	}
	db, err := p.conn()
	if err != nil {
		return nil, err
	}
	stmt, err := ddl.SelectAll(path)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		if isMissingTable(err) {
			return nil, domain.ErrNotFound("table %q not found", path)
		}
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	return newRowReader(rows)
}

// WriteTo replaces the table with the stream's contents. The table is
// recreated when the first batch arrives and later batches append, with no
// transaction spanning the stream: a stream that fails midway leaves the
// batches that already loaded, and an empty stream leaves any existing
// table untouched.
func (p *Provider) WriteTo(ctx context.Context, path string, stream array.RecordReader) error {
	db, err := p.conn()
	if err != nil {
		return err
	}
	idx := 0
	for stream.Next() {
		batch := stream.RecordBatch()
		if idx == 0 {
			if err := p.recreate(ctx, db, path, batch.Schema()); err != nil {
				return err
			}
		}
		if err := p.loader.Load(ctx, db, path, batch, idx == 0, idx == 0); err != nil {
			return err
		}
		idx++
	}
	return stream.Err()
}

func (p *Provider) recreate(ctx context.Context, db *sql.DB, path string, schema *arrow.Schema) error {
	drop, err := ddl.DropTableIfExists(path)
	if err != nil {
		return err
	}
	create, err := ddl.CreateTable(path, schema)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, drop); err != nil {
		return fmt.Errorf("drop %q: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	return nil
}

func (p *Provider) Info(ctx context.Context, path string) (*provider.TableInfo, error) {
	db, err := p.conn()
	if err != nil {
		return nil, err
	}
	probe, err := ddl.DescribeTable(path)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, probe)
	if err != nil {
		if isMissingTable(err) {
			return nil, domain.ErrNotFound("table %q not found", path)
		}
		return nil, fmt.Errorf("describe %q: %w", path, err)
	}
	schema, err := schemaFromRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	// The zero-row probe gives schema only. Counting would scan the table,
	// so sizes stay unknown.
	return &provider.TableInfo{
		Schema:       schema,
		Path:         path,
		TotalRecords: -1,
		TotalBytes:   -1,
	}, nil
}

func (p *Provider) List(ctx context.Context) iter.Seq2[*provider.TableInfo, error] {
	return func(yield func(*provider.TableInfo, error) bool) {
		db, err := p.conn()
		if err != nil {
			yield(nil, err)
			return
		}
		rows, err := db.QueryContext(ctx, ddl.ListTables())
		if err != nil {
			yield(nil, fmt.Errorf("list tables: %w", err))
			return
		}
		var names []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				yield(nil, err)
				return
			}
			names = append(names, name)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			yield(nil, err)
			return
		}
		rows.Close()

		for _, name := range names {
			info, infoErr := p.Info(ctx, name)
			if !yield(info, infoErr) || infoErr != nil {
				return
			}
		}
	}
}

func (p *Provider) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// isMissingTable detects DuckDB's catalog errors for absent tables. The
// driver does not expose a typed error for this.
func isMissingTable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "not found")
}
