package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileBuildsRegistry(t *testing.T) {
	body := `{
		"sources": [
			{
				"name": "sales",
				"file_pattern": "sales_*.csv",
				"reader_kind": "csv",
				"table_name": "sales_fact",
				"grain": ["order_id"],
				"validation_error_threshold": 0.05,
				"notification_recipients": ["data-team@example.com"],
				"record_schema": [
					{"name": "order_id", "type": "int"},
					{"name": "amount", "type": "decimal"}
				]
			}
		]
	}`
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	reg, err := LoadFile(path)
	require.NoError(t, err)

	src, err := reg.Resolve("sales_2026.csv")
	require.NoError(t, err)
	assert.Equal(t, "sales_fact", src.TableName)
	assert.Equal(t, []string{"order_id"}, src.Grain)
	assert.Equal(t, 0.05, src.ValidationErrorThreshold)
}

func TestLoadFileRejectsUnknownReaderKind(t *testing.T) {
	body := `{"sources": [{"name": "x", "file_pattern": "*.csv", "reader_kind": "xml", "grain": ["a"], "record_schema": [{"name": "a", "type": "string"}]}]}`
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileRejectsUnknownFieldType(t *testing.T) {
	body := `{"sources": [{"name": "x", "file_pattern": "*.csv", "reader_kind": "csv", "grain": ["a"], "record_schema": [{"name": "a", "type": "bignum"}]}]}`
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileMissingPath(t *testing.T) {
	_, err := LoadFile("/nonexistent/catalog.json")
	require.Error(t, err)
}
