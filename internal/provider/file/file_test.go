package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"flightgate/internal/domain"
	"flightgate/internal/provider"
)

var fruitsSchema = arrow.NewSchema([]arrow.Field{
	{Name: "name", Type: arrow.BinaryTypes.String},
	{Name: "price", Type: arrow.PrimitiveTypes.Int64},
}, nil)

func fruitsRecord(t *testing.T) arrow.Record {
	t.Helper()
	b := array.NewRecordBuilder(memory.DefaultAllocator, fruitsSchema)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).AppendValues([]string{"apple", "banana", "cherry"}, nil)
	b.Field(1).(*array.Int64Builder).AppendValues([]int64{3, 1, 8}, nil)
	return b.NewRecord()
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(map[string]string{"root_path": t.TempDir()})
	require.NoError(t, err)
	return p.(*Provider)
}

func writeFruits(t *testing.T, p *Provider, path string) arrow.Record {
	t.Helper()
	rec := fruitsRecord(t)
	rdr, err := array.NewRecordReader(fruitsSchema, []arrow.RecordBatch{rec})
	require.NoError(t, err)
	defer rdr.Release()
	require.NoError(t, p.WriteTo(context.Background(), path, rdr))
	return rec
}

func TestNewValidation(t *testing.T) {
	_, err := New(map[string]string{})
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))

	_, err = New(map[string]string{"filesystem": "tape", "root_path": "/x"})
	require.True(t, errors.As(err, &vErr))
}

func TestPackUnpackPath(t *testing.T) {
	p := newTestProvider(t)

	path, err := p.PackPath("teams", "fruits")
	require.NoError(t, err)
	require.Equal(t, "teams/fruits", path)

	parts, err := p.UnpackPath(path)
	require.NoError(t, err)
	require.Equal(t, []string{"teams", "fruits"}, parts)

	for _, bad := range [][]string{
		{},
		{""},
		{"."},
		{".."},
		{"a/b"},
		{`a\b`},
	} {
		_, err := p.PackPath(bad...)
		var vErr *domain.ValidationError
		require.True(t, errors.As(err, &vErr), "parts %v", bad)
	}
}

func TestUnpackPathWithPrefix(t *testing.T) {
	p := &Provider{prefix: "warm"}

	parts, err := p.UnpackPath("warm/teams/fruits")
	require.NoError(t, err)
	require.Equal(t, []string{"teams", "fruits"}, parts)

	_, err = p.UnpackPath("cold/teams/fruits")
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))

	packed, err := p.PackPath("teams", "fruits")
	require.NoError(t, err)
	require.Equal(t, "warm/teams/fruits", packed)
}

func TestWriteReadRoundtrip(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	want := writeFruits(t, p, "teams/fruits")
	defer want.Release()

	rdr, err := p.ReadFrom(ctx, "teams/fruits", nil)
	require.NoError(t, err)
	defer rdr.Release()

	require.True(t, fruitsSchema.Equal(rdr.Schema()))
	require.True(t, rdr.Next())
	got := rdr.Record()
	require.Equal(t, int64(3), got.NumRows())

	names := got.Column(0).(*array.String)
	require.Equal(t, "apple", names.Value(0))
	require.Equal(t, "cherry", names.Value(2))
	require.False(t, rdr.Next())
	require.NoError(t, rdr.Err())
}

func TestReadMissingTable(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.ReadFrom(context.Background(), "absent", nil)
	var nfErr *domain.NotFoundError
	require.True(t, errors.As(err, &nfErr))

	_, err = p.Info(context.Background(), "absent")
	require.True(t, errors.As(err, &nfErr))
}

func TestReadRejectsCriteria(t *testing.T) {
	p := newTestProvider(t)
	writeFruits(t, p, "fruits").Release()

	_, err := p.ReadFrom(context.Background(), "fruits", &provider.Query{})
	var critErr *domain.UnsupportedCriteriaError
	require.True(t, errors.As(err, &critErr))
}

func TestInfo(t *testing.T) {
	p := newTestProvider(t)
	writeFruits(t, p, "teams/fruits").Release()

	info, err := p.Info(context.Background(), "teams/fruits")
	require.NoError(t, err)
	require.Equal(t, "teams/fruits", info.Path)
	require.Equal(t, int64(3), info.TotalRecords)
	require.Positive(t, info.TotalBytes)
	require.True(t, fruitsSchema.Equal(info.Schema))
}

func TestList(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	writeFruits(t, p, "a/one").Release()
	writeFruits(t, p, "b/two").Release()

	var paths []string
	for info, err := range p.List(ctx) {
		require.NoError(t, err)
		paths = append(paths, info.Path)
		require.Equal(t, int64(3), info.TotalRecords)
	}
	require.ElementsMatch(t, []string{"a/one", "b/two"}, paths)
}

func TestListEndsAtUndescribableObject(t *testing.T) {
	dir := t.TempDir()
	p, err := New(map[string]string{"root_path": dir})
	require.NoError(t, err)
	prov := p.(*Provider)

	// Sorts before the valid table, so the walk hits it first.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aaa_junk"), []byte("not a table"), 0o644))
	writeFruits(t, prov, "zzz").Release()

	var infos, failures int
	for _, err := range prov.List(context.Background()) {
		if err != nil {
			failures++
			continue
		}
		infos++
	}
	require.Equal(t, 1, failures)
	require.Zero(t, infos)
}

func TestListEmpty(t *testing.T) {
	p := newTestProvider(t)
	for range p.List(context.Background()) {
		t.Fatal("expected no tables")
	}
}

func TestOverwrite(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	writeFruits(t, p, "fruits").Release()

	b := array.NewRecordBuilder(memory.DefaultAllocator, fruitsSchema)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).Append("durian")
	b.Field(1).(*array.Int64Builder).Append(12)
	rec := b.NewRecord()
	defer rec.Release()

	rdr, err := array.NewRecordReader(fruitsSchema, []arrow.RecordBatch{rec})
	require.NoError(t, err)
	defer rdr.Release()
	require.NoError(t, p.WriteTo(ctx, "fruits", rdr))

	info, err := p.Info(ctx, "fruits")
	require.NoError(t, err)
	require.Equal(t, int64(1), info.TotalRecords)
}
