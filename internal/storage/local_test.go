package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) (*Local, string) {
	t.Helper()
	root := t.TempDir()
	source := filepath.Join(root, "source")
	require.NoError(t, os.MkdirAll(source, 0o755))
	local, err := NewLocal(filepath.Join(root, "archive"), filepath.Join(root, "duplicates"))
	require.NoError(t, err)
	return local, source
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLocalListSkipsDotfilesAndDirs(t *testing.T) {
	local, source := newTestLocal(t)
	writeFile(t, source, "a.csv", "x")
	writeFile(t, source, ".hidden.csv", "x")
	require.NoError(t, os.MkdirAll(filepath.Join(source, "subdir"), 0o755))

	names, err := local.List(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv"}, names)
}

func TestLocalCopyToArchivePreservesOriginal(t *testing.T) {
	local, source := newTestLocal(t)
	path := writeFile(t, source, "a.csv", "hello")

	require.NoError(t, local.CopyToArchive(context.Background(), path))

	archived, err := os.ReadFile(filepath.Join(local.ArchiveDir, "a.csv"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(archived))

	_, err = os.Stat(path)
	assert.NoError(t, err, "original file must still exist after archiving")
}

func TestLocalMoveToDuplicatesRemovesOriginal(t *testing.T) {
	local, source := newTestLocal(t)
	path := writeFile(t, source, "a.csv", "hello")

	require.NoError(t, local.MoveToDuplicates(context.Background(), path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	dup, err := os.ReadFile(filepath.Join(local.DuplicateDir, "a.csv"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(dup))
}

func TestLocalMoveToDuplicatesDisambiguatesCollision(t *testing.T) {
	local, source := newTestLocal(t)
	writeFile(t, local.DuplicateDir, "a.csv", "already here")
	path := writeFile(t, source, "a.csv", "new copy")

	require.NoError(t, local.MoveToDuplicates(context.Background(), path))

	entries, err := os.ReadDir(local.DuplicateDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLocalDeleteIsIdempotent(t *testing.T) {
	local, source := newTestLocal(t)
	path := writeFile(t, source, "a.csv", "hello")

	require.NoError(t, local.Delete(context.Background(), path))
	require.NoError(t, local.Delete(context.Background(), path))
}

func TestLocalStreamReturnsContent(t *testing.T) {
	local, source := newTestLocal(t)
	path := writeFile(t, source, "a.csv", "hello")

	rc, err := local.Stream(context.Background(), path)
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}
