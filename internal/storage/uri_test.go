package storage

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct{}

func (stubAdapter) List(context.Context, string) ([]string, error)       { return nil, nil }
func (stubAdapter) Stream(context.Context, string) (io.ReadCloser, error) { return nil, nil }
func (stubAdapter) CopyToArchive(context.Context, string) error           { return nil }
func (stubAdapter) MoveToDuplicates(context.Context, string) error        { return nil }
func (stubAdapter) Delete(context.Context, string) error                  { return nil }

func TestSchemeOfClassifiesKnownPrefixes(t *testing.T) {
	assert.Equal(t, SchemeS3, SchemeOf("s3://bucket/key"))
	assert.Equal(t, SchemeGCS, SchemeOf("gs://bucket/key"))
	assert.Equal(t, SchemeAzure, SchemeOf("azure://container/blob"))
	assert.Equal(t, SchemeHTTPS, SchemeOf("https://example.com/file.csv"))
	assert.Equal(t, SchemeLocal, SchemeOf("/var/data/file.csv"))
}

func TestRouterResolveReturnsConfiguredAdapter(t *testing.T) {
	local := stubAdapter{}
	router := NewRouter(map[Scheme]Adapter{SchemeLocal: local})

	adapter, err := router.Resolve("/var/data/file.csv")
	require.NoError(t, err)
	assert.Equal(t, local, adapter)
}

func TestRouterResolveUnconfiguredSchemeErrors(t *testing.T) {
	router := NewRouter(map[Scheme]Adapter{SchemeLocal: stubAdapter{}})

	_, err := router.Resolve("s3://bucket/key")
	require.Error(t, err)
	var notConfigured *ErrAdapterNotConfigured
	require.ErrorAs(t, err, &notConfigured)
	assert.Equal(t, SchemeS3, notConfigured.Scheme)
}
