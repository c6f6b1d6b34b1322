package journal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igsync/pkg/ingest"
)

func newTestJournal(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("IGSYNC_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("IGSYNC_TEST_DATABASE_URL not set, skipping")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	j, err := Open(ctx, url)
	if err != nil {
		t.Skip("Postgres not available for testing")
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordsCycleAndOutcomes(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	cycleID := uuid.NewString()
	started := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, j.RecordAccount(ctx, cycleID, ingest.AccountOutcome{
		RecordID: "rec1", Username: "healthy", Status: ingest.OutcomeOK,
		PostsFetched: 3, PostsCreated: 2, Duration: 1500 * time.Millisecond,
	}))
	require.NoError(t, j.RecordAccount(ctx, cycleID, ingest.AccountOutcome{
		RecordID: "rec2", Username: "broken", Status: ingest.OutcomeFailed,
		ErrorKind: "fetch", HTTPStatus: 500, Error: "server error",
	}))

	report := &ingest.CycleReport{CycleID: cycleID, StartedAt: started, Listed: 2}
	require.NoError(t, j.RecordCycle(ctx, report))

	// A second write for the same run updates its row
	report.FinishedAt = started.Add(time.Minute)
	report.Succeeded, report.Failed = 1, 1
	require.NoError(t, j.RecordCycle(ctx, report))

	outcomes, err := j.Outcomes(ctx, cycleID)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "healthy", outcomes[0].Username)
	assert.Equal(t, int64(1500), outcomes[0].DurationMS)
	assert.Equal(t, "fetch", outcomes[1].ErrorKind)
	assert.Equal(t, 500, outcomes[1].HTTPStatus)

	runs := cycleRuns(t, j, cycleID)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Succeeded)
	assert.Equal(t, 1, runs[0].Failed)
	assert.True(t, runs[0].FinishedAt.Valid)

	recent, err := j.RecentCycles(ctx, 50)
	require.NoError(t, err)
	found := false
	for _, c := range recent {
		if c.CycleID == cycleID {
			found = true
		}
	}
	assert.True(t, found, "recent cycles should include %s", cycleID)
}

func cycleRuns(t *testing.T, j *Postgres, cycleID string) []Cycle {
	t.Helper()
	var runs []Cycle
	require.NoError(t, j.db.SelectContext(context.Background(), &runs,
		`SELECT * FROM sync_cycle_runs WHERE cycle_id = $1 ORDER BY started_at`, cycleID))
	return runs
}

func TestJournal_ResumedRunKeepsEarlierTotals(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	cycleID := uuid.NewString()
	started := time.Now().UTC().Truncate(time.Millisecond)

	first := &ingest.CycleReport{
		CycleID: cycleID, StartedAt: started, FinishedAt: started.Add(time.Minute),
		Listed: 3, Succeeded: 2, Error: "context canceled",
	}
	require.NoError(t, j.RecordCycle(ctx, first))

	resumed := &ingest.CycleReport{
		CycleID: cycleID, StartedAt: started.Add(time.Hour), FinishedAt: started.Add(time.Hour + time.Minute),
		Resumed: true, Listed: 3, Succeeded: 1, Skipped: 2,
	}
	require.NoError(t, j.RecordCycle(ctx, resumed))

	runs := cycleRuns(t, j, cycleID)
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].Succeeded)
	assert.Equal(t, "context canceled", runs[0].Error)
	assert.False(t, runs[0].Resumed)
	assert.Equal(t, 1, runs[1].Succeeded)
	assert.Equal(t, 2, runs[1].Skipped)
	assert.True(t, runs[1].Resumed)
}

func TestJournal_MigrateIsIdempotent(t *testing.T) {
	j := newTestJournal(t)
	require.NoError(t, j.Migrate(context.Background()))
}

func TestOpen_BadURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Open(ctx, "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1")
	assert.Error(t, err)
}
