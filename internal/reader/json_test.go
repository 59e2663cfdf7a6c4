package reader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileingest/internal/catalog"
	pipeerr "fileingest/internal/errors"
)

func jsonSchema() []catalog.SchemaField {
	return []catalog.SchemaField{
		{Name: "order_id", Type: catalog.FieldInt},
		{Name: "amount", Type: catalog.FieldFloat},
	}
}

func TestJSONReaderFlattensTopLevelArray(t *testing.T) {
	body := `[{"order_id": 1, "amount": 10.5}, {"order_id": 2, "amount": 20.5}]`
	rd, err := New(catalog.ReaderJSON, jsonSchema(), nopCloser(body), Options{})
	require.NoError(t, err)
	defer rd.Close()

	batch, ok, err := rd.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, batch.Records, 2)
	assert.Equal(t, 1, batch.FirstRowNumber)

	_, ok, err = rd.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, rd.RowsRead())
}

func TestJSONReaderFlattensNestedObjectsAndArrays(t *testing.T) {
	body := `[{"order_id": 1, "amount": 10.5, "meta": {"tags": ["a", "b"]}}]`
	rd, err := New(catalog.ReaderJSON, jsonSchema(), nopCloser(body), Options{})
	require.NoError(t, err)
	defer rd.Close()

	batch, ok, err := rd.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "a", batch.Records[0]["meta_tags_0"])
	assert.Equal(t, "b", batch.Records[0]["meta_tags_1"])
}

func TestJSONReaderHonorsJSONPath(t *testing.T) {
	body := `{"result": {"rows": [{"order_id": 1, "amount": 1.0}]}}`
	rd, err := New(catalog.ReaderJSON, jsonSchema(), nopCloser(body), Options{JSONPath: "result.rows"})
	require.NoError(t, err)
	defer rd.Close()

	batch, ok, err := rd.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, batch.Records, 1)
}

func TestJSONReaderRejectsEmptyArray(t *testing.T) {
	_, err := New(catalog.ReaderJSON, jsonSchema(), nopCloser(`[]`), Options{})
	require.Error(t, err)
	var pe *pipeerr.PipelineError
	require.True(t, pipeerr.As(err, &pe))
	assert.Equal(t, pipeerr.KindNoDataInFile, pe.Kind)
}

func TestJSONReaderRejectsMissingColumns(t *testing.T) {
	body := `[{"order_id": 1}]`
	_, err := New(catalog.ReaderJSON, jsonSchema(), nopCloser(body), Options{})
	require.Error(t, err)
	var pe *pipeerr.PipelineError
	require.True(t, pipeerr.As(err, &pe))
	assert.Equal(t, pipeerr.KindMissingColumns, pe.Kind)
}

func TestJSONReaderRejectsBadJSONPathSegment(t *testing.T) {
	body := `{"result": {"rows": []}}`
	_, err := New(catalog.ReaderJSON, jsonSchema(), nopCloser(body), Options{JSONPath: "result.missing"})
	require.Error(t, err)
}
