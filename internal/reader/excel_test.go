package reader

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fileingest/internal/catalog"
	pipeerr "fileingest/internal/errors"
)

func buildWorkbook(t *testing.T, sheet string, rows [][]any) io.ReadCloser {
	t.Helper()
	f := excelize.NewFile()
	if sheet != "" && sheet != "Sheet1" {
		idx, err := f.NewSheet(sheet)
		require.NoError(t, err)
		f.SetActiveSheet(idx)
		f.DeleteSheet("Sheet1")
	}
	if sheet == "" {
		sheet = "Sheet1"
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return io.NopCloser(&buf)
}

var excelSchema = []catalog.SchemaField{
	{Name: "order_id", Type: catalog.FieldInt},
	{Name: "amount", Type: catalog.FieldDecimal},
}

func TestExcelReaderReadsDefaultSheet(t *testing.T) {
	body := buildWorkbook(t, "", [][]any{
		{"order_id", "amount"},
		{1, 9.99},
		{2, 4.50},
	})
	r, err := New(catalog.ReaderExcel, excelSchema, body, Options{})
	require.NoError(t, err)
	defer r.Close()

	batch, ok, err := r.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, batch.Records, 2)
	assert.Equal(t, 1, batch.FirstRowNumber)
	assert.Equal(t, 2, r.StartingRowNumber())

	_, ok, err = r.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, r.RowsRead())
}

func TestExcelReaderHonorsNamedSheet(t *testing.T) {
	body := buildWorkbook(t, "Orders", [][]any{
		{"order_id", "amount"},
		{1, 1.23},
	})
	r, err := New(catalog.ReaderExcel, excelSchema, body, Options{SheetName: "Orders"})
	require.NoError(t, err)
	defer r.Close()

	batch, ok, err := r.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, batch.Records, 1)
}

func TestExcelReaderHonorsSkipRows(t *testing.T) {
	body := buildWorkbook(t, "", [][]any{
		{"generated report"},
		{"order_id", "amount"},
		{1, 5.00},
	})
	r, err := New(catalog.ReaderExcel, excelSchema, body, Options{SkipRows: 1})
	require.NoError(t, err)
	defer r.Close()

	batch, ok, err := r.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, batch.Records, 1)
	assert.Equal(t, 3, batch.FirstRowNumber)
}

func TestExcelReaderRejectsMissingColumns(t *testing.T) {
	body := buildWorkbook(t, "", [][]any{
		{"order_id"},
		{1},
	})
	_, err := New(catalog.ReaderExcel, excelSchema, body, Options{})
	require.Error(t, err)

	var pe *pipeerr.PipelineError
	require.True(t, pipeerr.As(err, &pe))
	assert.Equal(t, pipeerr.KindMissingColumns, pe.Kind)
}

func TestExcelReaderRejectsHeaderWithNoDataRows(t *testing.T) {
	body := buildWorkbook(t, "", [][]any{
		{"order_id", "amount"},
	})
	r, err := New(catalog.ReaderExcel, excelSchema, body, Options{})
	require.NoError(t, err)
	defer r.Close()

	_, ok, err := r.Next(context.Background())
	require.Error(t, err)
	assert.False(t, ok)

	var pe *pipeerr.PipelineError
	require.True(t, pipeerr.As(err, &pe))
	assert.Equal(t, pipeerr.KindNoDataInFile, pe.Kind)
}

func TestExcelReaderBatchesAcrossMultipleCalls(t *testing.T) {
	body := buildWorkbook(t, "", [][]any{
		{"order_id", "amount"},
		{1, 1},
		{2, 2},
		{3, 3},
	})
	r, err := New(catalog.ReaderExcel, excelSchema, body, Options{BatchSize: 2})
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
