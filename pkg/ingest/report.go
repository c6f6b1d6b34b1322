package ingest

import "time"

// State is where the orchestrator is within a cycle
type State string

const (
	StateIdle       State = "idle"
	StateListing    State = "listing"
	StateProcessing State = "processing"
)

// Outcome statuses
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
	OutcomeDryRun  = "dry_run"
)

// AccountOutcome is what happened to one account in a cycle
type AccountOutcome struct {
	RecordID     string        `json:"record_id"`
	Username     string        `json:"username"`
	Status       string        `json:"status"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	HTTPStatus   int           `json:"http_status,omitempty"`
	Error        string        `json:"error,omitempty"`
	PostsFetched int           `json:"posts_fetched"`
	PostsCreated int           `json:"posts_created"`
	Duration     time.Duration `json:"duration"`
}

// CycleReport summarizes one pass over the active accounts
type CycleReport struct {
	CycleID    string           `json:"cycle_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Resumed    bool             `json:"resumed"`
	Listed     int              `json:"listed"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Skipped    int              `json:"skipped"`
	Error      string           `json:"error,omitempty"`
	Outcomes   []AccountOutcome `json:"outcomes"`
}

func (r *CycleReport) add(o AccountOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case OutcomeOK:
		r.Succeeded++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// Copy returns a deep copy safe to hand to other goroutines
func (r *CycleReport) Copy() *CycleReport {
	if r == nil {
		return nil
	}
	c := *r
	c.Outcomes = append([]AccountOutcome(nil), r.Outcomes...)
	return &c
}
