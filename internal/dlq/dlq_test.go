package dlq

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileingest/internal/dialect"
)

type fakeQuerier struct {
	remaining int
	batchSize int
	execErr   error
	calls     int
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls++
	if f.execErr != nil {
		return nil, f.execErr
	}
	n := f.remaining
	if n > f.batchSize {
		n = f.batchSize
	}
	f.remaining -= n
	return pgconn.CommandTag(fmt.Sprintf("DELETE %d", n)), nil
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (f *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func TestCleanupSupersededDeletesUntilEmpty(t *testing.T) {
	q := &fakeQuerier{remaining: 7, batchSize: 3}
	c := New(q, dialect.Postgres{}, 3)

	err := c.CleanupSuperseded(context.Background(), "sales.csv", 42)
	require.NoError(t, err)
	assert.Equal(t, 0, q.remaining)
	assert.Equal(t, 4, q.calls) // batches of 3, 3, 1, then a 0-row terminator
}

func TestCleanupSupersededNoOpWhenNothingToDelete(t *testing.T) {
	q := &fakeQuerier{remaining: 0, batchSize: 100}
	c := New(q, dialect.Postgres{}, 100)

	err := c.CleanupSuperseded(context.Background(), "sales.csv", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, q.calls)
}

func TestCleanupSupersededPropagatesDatabaseError(t *testing.T) {
	q := &fakeQuerier{remaining: 5, batchSize: 5, execErr: errors.New("connection lost")}
	c := New(q, dialect.Postgres{}, 5)

	err := c.CleanupSuperseded(context.Background(), "sales.csv", 1)
	require.Error(t, err)
}

func TestNewDefaultsBatchSize(t *testing.T) {
	c := New(&fakeQuerier{}, dialect.Postgres{}, 0)
	assert.Equal(t, 10000, c.batchSize)
}
