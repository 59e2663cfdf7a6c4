package workerpool

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileingest/internal/lineage"
)

type fakeRunner struct {
	concurrent int32
	maxSeen    int32
	fail       map[string]bool
}

func (f *fakeRunner) Run(ctx context.Context, filename string) (lineage.OutcomeCategory, error) {
	n := atomic.AddInt32(&f.concurrent, 1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, n) {
			break
		}
	}
	defer atomic.AddInt32(&f.concurrent, -1)

	if f.fail[filename] {
		return lineage.OutcomeUnhandledFailure, fmt.Errorf("boom: %s", filename)
	}
	return lineage.OutcomeSuccess, nil
}

func TestPoolRunProcessesEveryFile(t *testing.T) {
	runner := &fakeRunner{}
	pool := New(runner, 4)

	files := []string{"a.csv", "b.csv", "c.csv", "d.csv"}
	summary := pool.Run(context.Background(), files)

	require.Equal(t, len(files), summary.Total)
	assert.Equal(t, len(files), summary.Counts[lineage.OutcomeSuccess])
	assert.False(t, summary.AnyUnhandled())
}

func TestPoolRunRespectsConcurrencyLimit(t *testing.T) {
	runner := &fakeRunner{}
	pool := New(runner, 2)

	var files []string
	for i := 0; i < 20; i++ {
		files = append(files, fmt.Sprintf("file_%d.csv", i))
	}
	pool.Run(context.Background(), files)

	assert.LessOrEqual(t, runner.maxSeen, int32(2))
}

func TestPoolRunIsolatesPerFileFailures(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"bad.csv": true}}
	pool := New(runner, 3)

	summary := pool.Run(context.Background(), []string{"good1.csv", "bad.csv", "good2.csv"})

	require.Equal(t, 3, summary.Total)
	assert.True(t, summary.AnyUnhandled())
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "bad.csv", summary.Failed[0].Filename)
	assert.Equal(t, 2, summary.Counts[lineage.OutcomeSuccess])
}

func TestNewDefaultsToNumCPU(t *testing.T) {
	pool := New(&fakeRunner{}, 0)
	assert.Greater(t, pool.n, 0)
}
