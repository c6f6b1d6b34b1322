// Package journal persists cycle reports and per-account outcomes to
// Postgres so runs can be audited after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"igsync/pkg/ingest"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_cycle_runs (
	cycle_id    TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	resumed     BOOLEAN NOT NULL DEFAULT FALSE,
	listed      INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (cycle_id, started_at)
);

CREATE TABLE IF NOT EXISTS sync_account_outcomes (
	id            BIGSERIAL PRIMARY KEY,
	cycle_id      TEXT NOT NULL,
	record_id     TEXT NOT NULL DEFAULT '',
	username      TEXT NOT NULL,
	status        TEXT NOT NULL,
	error_kind    TEXT NOT NULL DEFAULT '',
	http_status   INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	posts_fetched INTEGER NOT NULL DEFAULT 0,
	posts_created INTEGER NOT NULL DEFAULT 0,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	recorded_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS sync_account_outcomes_cycle_idx ON sync_account_outcomes (cycle_id);
`

// Cycle is one run of a cycle. A resumed cycle has one row per run.
type Cycle struct {
	CycleID    string       `db:"cycle_id" json:"cycle_id"`
	StartedAt  time.Time    `db:"started_at" json:"started_at"`
	FinishedAt sql.NullTime `db:"finished_at" json:"-"`
	Resumed    bool         `db:"resumed" json:"resumed"`
	Listed     int          `db:"listed" json:"listed"`
	Succeeded  int          `db:"succeeded" json:"succeeded"`
	Failed     int          `db:"failed" json:"failed"`
	Skipped    int          `db:"skipped" json:"skipped"`
	Error      string       `db:"error" json:"error,omitempty"`
}

// Outcome is one row of sync_account_outcomes
type Outcome struct {
	ID           int64     `db:"id" json:"id"`
	CycleID      string    `db:"cycle_id" json:"cycle_id"`
	RecordID     string    `db:"record_id" json:"record_id"`
	Username     string    `db:"username" json:"username"`
	Status       string    `db:"status" json:"status"`
	ErrorKind    string    `db:"error_kind" json:"error_kind,omitempty"`
	HTTPStatus   int       `db:"http_status" json:"http_status,omitempty"`
	Error        string    `db:"error" json:"error,omitempty"`
	PostsFetched int       `db:"posts_fetched" json:"posts_fetched"`
	PostsCreated int       `db:"posts_created" json:"posts_created"`
	DurationMS   int64     `db:"duration_ms" json:"duration_ms"`
	RecordedAt   time.Time `db:"recorded_at" json:"recorded_at"`
}

// Postgres implements ingest.Journal
type Postgres struct {
	db *sqlx.DB
}

var _ ingest.Journal = (*Postgres)(nil)

// Open connects to databaseURL and applies the schema
func Open(ctx context.Context, databaseURL string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect journal database: %w", err)
	}
	j := New(db)
	if err := j.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// New wraps an existing connection
func New(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the journal tables if they do not exist
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate journal schema: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) RecordAccount(ctx context.Context, cycleID string, o ingest.AccountOutcome) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sync_account_outcomes
			(cycle_id, record_id, username, status, error_kind, http_status, error,
			 posts_fetched, posts_created, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, cycleID, o.RecordID, o.Username, o.Status, o.ErrorKind, o.HTTPStatus, o.Error,
		o.PostsFetched, o.PostsCreated, o.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record account outcome: %w", err)
	}
	return nil
}

// RecordCycle writes the row for this run of the cycle. A resumed run gets
// its own row, so earlier runs keep their totals.
func (p *Postgres) RecordCycle(ctx context.Context, r *ingest.CycleReport) error {
	var finished sql.NullTime
	if !r.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: r.FinishedAt, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sync_cycle_runs
			(cycle_id, started_at, finished_at, resumed, listed, succeeded, failed, skipped, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cycle_id, started_at) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			resumed     = EXCLUDED.resumed,
			listed      = EXCLUDED.listed,
			succeeded   = EXCLUDED.succeeded,
			failed      = EXCLUDED.failed,
			skipped     = EXCLUDED.skipped,
			error       = EXCLUDED.error
	`, r.CycleID, r.StartedAt, finished, r.Resumed, r.Listed, r.Succeeded, r.Failed, r.Skipped, r.Error)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	return nil
}

// RecentCycles returns the newest cycle runs first
func (p *Postgres) RecentCycles(ctx context.Context, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 20
	}
	var cycles []Cycle
	err := p.db.SelectContext(ctx, &cycles, `
		SELECT cycle_id, started_at, finished_at, resumed, listed, succeeded, failed, skipped, error
		FROM sync_cycle_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	return cycles, nil
}

// Outcomes returns the account outcomes of one cycle in recording order
func (p *Postgres) Outcomes(ctx context.Context, cycleID string) ([]Outcome, error) {
	var outcomes []Outcome
	err := p.db.SelectContext(ctx, &outcomes, `
		SELECT id, cycle_id, record_id, username, status, error_kind, http_status, error,
		       posts_fetched, posts_created, duration_ms, recorded_at
		FROM sync_account_outcomes
		WHERE cycle_id = $1
		ORDER BY id
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	return outcomes, nil
}
