package lineage

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	id int64
}

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.id
	return nil
}

type fakeQuerier struct {
	execSQL []string
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	return pgconn.CommandTag("UPDATE 1"), nil
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (f *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{id: 7}
}

func TestOpenAssignsID(t *testing.T) {
	q := &fakeQuerier{}
	log := New(q, nil)

	require.NoError(t, log.Open(context.Background(), "sales.csv"))
	assert.Equal(t, int64(7), log.ID)
	assert.Equal(t, "sales.csv", log.Filename)
}

func TestPhaseStartAndEndIssueExpectedColumns(t *testing.T) {
	q := &fakeQuerier{}
	log := New(q, nil)
	require.NoError(t, log.Open(context.Background(), "sales.csv"))

	require.NoError(t, log.PhaseStart(context.Background(), PhaseValidate))
	require.NoError(t, log.PhaseEnd(context.Background(), PhaseValidate, true))

	require.Len(t, q.execSQL, 2)
	assert.True(t, strings.Contains(q.execSQL[0], "validate_started_at"))
	assert.True(t, strings.Contains(q.execSQL[1], "validate_ended_at"))
	assert.True(t, strings.Contains(q.execSQL[1], "validate_success"))
}

func TestCloseEmitsEventWithOutcome(t *testing.T) {
	q := &fakeQuerier{}
	events := make(chan Event, 4)
	log := New(q, events)
	require.NoError(t, log.Open(context.Background(), "sales.csv"))

	success := true
	require.NoError(t, log.Close(context.Background(), OutcomeSuccess, false, &success, ""))

	<-events // open event
	closeEvt := <-events
	assert.Equal(t, OutcomeSuccess, closeEvt.Outcome)
	assert.Equal(t, int64(7), closeEvt.LogID)
}

func TestEmitDropsOnFullChannelInsteadOfBlocking(t *testing.T) {
	q := &fakeQuerier{}
	events := make(chan Event) // unbuffered, no receiver
	log := New(q, events)

	require.NoError(t, log.Open(context.Background(), "sales.csv"))
}
