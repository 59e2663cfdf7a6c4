package reader

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileingest/internal/catalog"
	pipeerr "fileingest/internal/errors"
)

type parquetOrderRow struct {
	OrderID int64   `parquet:"order_id"`
	Amount  float64 `parquet:"amount"`
}

func buildParquetFile(t *testing.T, rows []parquetOrderRow) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, parquet.Write(&buf, rows))
	return io.NopCloser(bytes.NewReader(buf.Bytes()))
}

var parquetSchema = []catalog.SchemaField{
	{Name: "order_id", Type: catalog.FieldInt},
	{Name: "amount", Type: catalog.FieldFloat},
}

func TestParquetReaderReadsAllRows(t *testing.T) {
	body := buildParquetFile(t, []parquetOrderRow{
		{OrderID: 1, Amount: 9.99},
		{OrderID: 2, Amount: 4.50},
	})
	r, err := New(catalog.ReaderParquet, parquetSchema, body, Options{})
	require.NoError(t, err)
	defer r.Close()

	batch, ok, err := r.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, batch.Records, 2)
	assert.Equal(t, 1, batch.FirstRowNumber)

	_, ok, err = r.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, r.RowsRead())
}

func TestParquetReaderBatchesAcrossMultipleCalls(t *testing.T) {
	body := buildParquetFile(t, []parquetOrderRow{
		{OrderID: 1, Amount: 1},
		{OrderID: 2, Amount: 2},
		{OrderID: 3, Amount: 3},
	})
	r, err := New(catalog.ReaderParquet, parquetSchema, body, Options{BatchSize: 2})
	require.NoError(t, err)
	defer r.Close()

	batch1, ok, err := r.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, batch1.Records, 2)

	batch2, ok, err := r.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, batch2.Records, 1)
}

func TestParquetReaderRejectsMissingColumns(t *testing.T) {
	type onlyOrderID struct {
		OrderID int64 `parquet:"order_id"`
	}
	body := buildParquetFile(t, []onlyOrderID{{OrderID: 1}})

	_, err := New(catalog.ReaderParquet, parquetSchema, body, Options{})
	require.Error(t, err)

	var pe *pipeerr.PipelineError
	require.True(t, pipeerr.As(err, &pe))
	assert.Equal(t, pipeerr.KindMissingColumns, pe.Kind)
}

func TestParquetReaderRejectsEmptyFile(t *testing.T) {
	_, err := New(catalog.ReaderParquet, parquetSchema, io.NopCloser(bytes.NewReader(nil)), Options{})
	require.Error(t, err)

	var pe *pipeerr.PipelineError
	require.True(t, pipeerr.As(err, &pe))
	assert.Equal(t, pipeerr.KindNoDataInFile, pe.Kind)
}
