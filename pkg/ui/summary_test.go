package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"igsync/pkg/ingest"
	"igsync/pkg/instagram"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetNoColor(true)
	t.Cleanup(func() {
		SetOutput(nil)
		SetNoColor(false)
		SetQuietMode(false)
	})
	return &buf
}

func TestBar(t *testing.T) {
	assert.Equal(t, "[██░░]", Bar(1, 2, 4))
	assert.Equal(t, "[████]", Bar(5, 2, 4))
	assert.Equal(t, "[░░░░]", Bar(0, 0, 4))
}

func TestPrintCycleReport(t *testing.T) {
	buf := capture(t)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	PrintCycleReport(&ingest.CycleReport{
		CycleID: "c-1", StartedAt: start, FinishedAt: start.Add(90 * time.Second),
		Listed: 3, Succeeded: 2, Failed: 1,
		Outcomes: []ingest.AccountOutcome{
			{Username: "alice", Status: ingest.OutcomeOK},
			{Username: "broken", Status: ingest.OutcomeFailed, ErrorKind: "fetch", HTTPStatus: 500, Error: "server error"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "[SYNC CYCLE c-1]")
	assert.Contains(t, out, "Accounts: [████████████████████] 3/3")
	assert.Contains(t, out, "Duration: 1m30s")
	assert.Contains(t, out, "@broken (fetch 500): server error")
	assert.NotContains(t, out, "@alice")
}

func TestPrintAccountResult(t *testing.T) {
	buf := capture(t)

	PrintAccountResult(&ingest.AccountResult{
		Outcome: ingest.AccountOutcome{Username: "alice", Status: ingest.OutcomeDryRun, PostsFetched: 1},
		Profile: &instagram.Profile{Username: "alice", FullName: "Alice A", FollowerCount: 1200},
		Posts: []instagram.Post{{
			Code: "Cabc", MediaType: "Reel", LikeCount: 7, PlayCount: 99,
			TakenAt: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC),
		}},
	})

	out := buf.String()
	assert.Contains(t, out, "[@alice] DRY_RUN")
	assert.Contains(t, out, "Followers: 1200")
	assert.Contains(t, out, "2024-04-30  Reel")
	assert.Contains(t, out, "instagram.com/p/Cabc")
	assert.NotContains(t, out, "Posts created")
}

func TestQuietModeKeepsErrors(t *testing.T) {
	buf := capture(t)
	SetQuietMode(true)

	PrintSuccess("hidden")
	PrintError("shown", "boom")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown: boom")
}
