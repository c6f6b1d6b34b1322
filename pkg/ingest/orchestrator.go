package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"igsync/pkg/checkpoint"
	errs "igsync/pkg/errors"
	"igsync/pkg/instagram"
	"igsync/pkg/logger"
	"igsync/pkg/store"
)

// ErrCheckpointExists is returned when an unfinished cycle is on disk and
// neither resume nor force restart was requested.
var ErrCheckpointExists = errors.New("checkpoint exists - use --resume to continue or --force-restart to start fresh")

// Options controls what a cycle does
type Options struct {
	ScrapeContent bool
	MaxRecords    int
	MaxPostPages  int
	Resume        bool
	ForceRestart  bool
	BaseID        string
}

// Orchestrator runs sync cycles: list the active accounts, then fetch,
// normalize and write each one in turn.
type Orchestrator struct {
	fetcher     Fetcher
	store       Store
	journal     Journal
	checkpoints *checkpoint.Manager
	logger      logger.Logger
	opts        Options
	now         func() time.Time
	newID       func() string

	mu      sync.Mutex
	state   State
	current string
	last    *CycleReport
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithJournal sends outcomes to j
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithCheckpoints enables resumable cycles
func WithCheckpoints(m *checkpoint.Manager) Option {
	return func(o *Orchestrator) { o.checkpoints = m }
}

// WithLogger sets the orchestrator logger
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces the time source used in reports
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator replaces the cycle ID generator
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// New creates an orchestrator
func New(fetcher Fetcher, st Store, opts Options, extra ...Option) *Orchestrator {
	if opts.MaxPostPages <= 0 {
		opts.MaxPostPages = 1
	}
	o := &Orchestrator{
		fetcher: fetcher,
		store:   st,
		journal: NopJournal{},
		logger:  logger.GetLogger(),
		opts:    opts,
		now:     time.Now,
		newID:   uuid.NewString,
		state:   StateIdle,
	}
	for _, opt := range extra {
		opt(o)
	}
	return o
}

// State returns the current cycle state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Current returns the username being processed, if any
func (o *Orchestrator) Current() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// LastReport returns a copy of the most recent cycle report
func (o *Orchestrator) LastReport() *CycleReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last.Copy()
}

func (o *Orchestrator) setState(s State, current string) {
	o.mu.Lock()
	o.state = s
	o.current = current
	o.mu.Unlock()
}

// RunCycle performs one pass over the active accounts.
//
// Failures of a single account are logged, recorded on its row and do not
// stop the cycle. Listing failures, rejected credentials and governor
// assertions abort it. ctx is only consulted between accounts: the account in
// flight always finishes its write or its failure.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &CycleReport{CycleID: o.newID(), StartedAt: o.now()}
	defer func() {
		report.FinishedAt = o.now()
		o.setState(StateIdle, "")
		o.mu.Lock()
		o.last = report.Copy()
		o.mu.Unlock()
		if err := o.journal.RecordCycle(context.WithoutCancel(ctx), report); err != nil {
			o.logger.WithError(err).Warn("Failed to journal cycle report")
		}
	}()

	o.setState(StateListing, "")

	cp, err := o.resumeCheckpoint(report)
	if err != nil {
		report.Error = err.Error()
		return report, err
	}

	log := o.logger.WithField("cycle_id", report.CycleID)
	log.InfoWithFields("Starting sync cycle", map[string]interface{}{
		"resumed":        report.Resumed,
		"scrape_content": o.opts.ScrapeContent,
	})

	// snapshots run once per cycle: a resumed cycle repeats them only if they
	// never completed
	snapshotted := cp != nil && cp.Snapshotted
	if o.opts.ScrapeContent && !snapshotted {
		if err := o.store.History(ctx); err != nil {
			err = fmt.Errorf("update history: %w", err)
			report.Error = err.Error()
			return report, err
		}
		snapshotted = true
		if cp != nil {
			o.markSnapshotted(cp)
		}
	}

	accounts, err := o.store.ListActiveAccounts(ctx, o.opts.MaxRecords)
	if err != nil {
		log.WithError(err).Error("Failed to list active accounts")
		report.Error = err.Error()
		return report, err
	}

	report.Listed = len(accounts)
	log.InfoWithFields("Listed active accounts", map[string]interface{}{
		"accounts": len(accounts),
	})

	// a new checkpoint only exists once there is something to resume
	fresh := false
	if cp == nil {
		cp = o.startCheckpoint(report.CycleID)
		fresh = cp != nil
		if fresh && snapshotted {
			o.markSnapshotted(cp)
		}
	}

	for i, acct := range accounts {
		if err := ctx.Err(); err != nil {
			log.InfoWithFields("Cycle interrupted between accounts", map[string]interface{}{
				"processed": i,
				"remaining": len(accounts) - i,
			})
			o.abandonCheckpoint(cp, fresh)
			report.Error = err.Error()
			return report, err
		}

		if cp != nil && cp.IsCompleted(acct.RecordID) {
			report.add(AccountOutcome{RecordID: acct.RecordID, Username: acct.Username, Status: OutcomeSkipped})
			continue
		}

		o.setState(StateProcessing, acct.Username)
		log.InfoWithFields("Processing account", map[string]interface{}{
			"account":  acct.Username,
			"position": fmt.Sprintf("%d/%d", i+1, len(accounts)),
		})

		// the account in flight is not interrupted by cancellation
		accountCtx := context.WithoutCancel(ctx)
		result, err := o.syncListed(accountCtx, acct)
		outcome := result.Outcome
		report.add(outcome)
		o.journalAccount(accountCtx, report.CycleID, outcome)

		if err != nil && isFatal(err) {
			log.WithError(err).WithFields(map[string]interface{}{
				"account":    acct.Username,
				"error_kind": errs.Kind(err),
				"status":     errs.StatusOf(err),
			}).Error("Aborting cycle")
			o.abandonCheckpoint(cp, fresh)
			report.Error = err.Error()
			return report, err
		}
		o.markCheckpoint(cp, acct.RecordID, outcome)
	}

	if o.checkpoints != nil {
		if err := o.checkpoints.Delete(); err != nil {
			log.WithError(err).Warn("Failed to delete checkpoint")
		}
	}

	log.InfoWithFields("Sync cycle complete", map[string]interface{}{
		"listed":    report.Listed,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
	})
	return report, nil
}

// syncListed runs one listed account and records a failure on its row.
func (o *Orchestrator) syncListed(ctx context.Context, acct store.Account) (*AccountResult, error) {
	result, err := o.syncAccount(ctx, acct, true)
	if err == nil {
		return result, nil
	}

	o.logger.WithError(err).WithFields(map[string]interface{}{
		"account":    acct.Username,
		"record_id":  acct.RecordID,
		"error_kind": errs.Kind(err),
		"status":     errs.StatusOf(err),
	}).Error("Account sync failed")

	if !isFatal(err) {
		if recErr := o.store.RecordError(ctx, acct, err.Error()); recErr != nil {
			o.logger.WithError(recErr).WithField("account", acct.Username).Warn("Failed to record error on account row")
		}
	}
	return result, err
}

// AccountResult is the data fetched for one account and what was done with it
type AccountResult struct {
	Outcome AccountOutcome
	Profile *instagram.Profile
	Posts   []instagram.Post
}

func (o *Orchestrator) syncAccount(ctx context.Context, acct store.Account, write bool) (*AccountResult, error) {
	start := o.now()
	result := &AccountResult{Outcome: AccountOutcome{
		RecordID: acct.RecordID,
		Username: acct.Username,
		Status:   OutcomeOK,
	}}
	if !write {
		result.Outcome.Status = OutcomeDryRun
	}

	fail := func(err error) (*AccountResult, error) {
		result.Outcome.Status = OutcomeFailed
		result.Outcome.ErrorKind = errs.Kind(err)
		result.Outcome.HTTPStatus = errs.StatusOf(err)
		result.Outcome.Error = err.Error()
		result.Outcome.Duration = o.now().Sub(start)
		return result, err
	}

	profile, err := o.fetcher.FetchProfile(ctx, acct.Username)
	if err != nil {
		return fail(err)
	}
	result.Profile = profile

	if o.opts.ScrapeContent {
		posts, err := o.fetchPosts(ctx, acct.Username)
		if err != nil {
			return fail(err)
		}
		result.Posts = posts
		result.Outcome.PostsFetched = len(posts)
	}

	if write {
		if err := o.store.WriteResult(ctx, acct, store.ProfileFields(profile)); err != nil {
			return fail(err)
		}
		for _, post := range result.Posts {
			created, err := o.store.UpsertContent(ctx, acct, post)
			if err != nil {
				return fail(err)
			}
			if created {
				result.Outcome.PostsCreated++
			}
		}
	}

	result.Outcome.Duration = o.now().Sub(start)
	return result, nil
}

// fetchPosts follows the pagination cursor until the API reports no more
// pages or MaxPostPages pages were read.
func (o *Orchestrator) fetchPosts(ctx context.Context, username string) ([]instagram.Post, error) {
	var posts []instagram.Post
	cursor := ""
	for page := 0; page < o.opts.MaxPostPages; page++ {
		p, err := o.fetcher.FetchPosts(ctx, username, cursor)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p.Items...)
		if p.Done() {
			break
		}
		cursor = p.NextCursor
	}
	return posts, nil
}

// SyncAccount runs the account pipeline for a single handle without listing.
// With dryRun nothing is written and the row need not exist.
func (o *Orchestrator) SyncAccount(ctx context.Context, username string, dryRun bool) (*AccountResult, error) {
	username = instagram.SanitizeUsername(username)
	if !instagram.IsValidUsername(username) {
		return nil, fmt.Errorf("invalid username %q", username)
	}

	acct := store.Account{Username: username}
	if !dryRun {
		found, ok, err := o.store.FindAccount(ctx, username)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("account %q not found in accounts table", username)
		}
		acct = found
	}

	o.setState(StateProcessing, username)
	defer o.setState(StateIdle, "")

	if dryRun {
		return o.syncAccount(ctx, acct, false)
	}
	return o.syncListed(ctx, acct)
}

// resumeCheckpoint loads the interrupted cycle's checkpoint when resuming.
// It returns nil when the cycle starts fresh.
func (o *Orchestrator) resumeCheckpoint(report *CycleReport) (*checkpoint.Checkpoint, error) {
	if o.checkpoints == nil {
		return nil, nil
	}

	if o.opts.ForceRestart && o.checkpoints.Exists() {
		if err := o.checkpoints.Delete(); err != nil {
			o.logger.WithError(err).Warn("Failed to delete existing checkpoint")
		}
	}

	if !o.checkpoints.Exists() {
		return nil, nil
	}
	if !o.opts.Resume {
		return nil, ErrCheckpointExists
	}
	cp, err := o.checkpoints.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp != nil {
		report.CycleID = cp.CycleID
		report.Resumed = true
		o.logger.InfoWithFields("Resuming from checkpoint", map[string]interface{}{
			"cycle_id":    cp.CycleID,
			"completed":   len(cp.Completed),
			"snapshotted": cp.Snapshotted,
		})
	}
	return cp, nil
}

func (o *Orchestrator) startCheckpoint(cycleID string) *checkpoint.Checkpoint {
	if o.checkpoints == nil {
		return nil
	}
	cp, err := o.checkpoints.Create(cycleID, o.opts.BaseID)
	if err != nil {
		// continue without resume support
		o.logger.WithError(err).Warn("Failed to create checkpoint")
		return nil
	}
	return cp
}

func (o *Orchestrator) markSnapshotted(cp *checkpoint.Checkpoint) {
	if err := o.checkpoints.MarkSnapshotted(cp); err != nil {
		o.logger.WithError(err).Warn("Failed to update checkpoint")
	}
}

// abandonCheckpoint drops a checkpoint this cycle created when the cycle
// stops before any account finished, so the next run is not refused.
func (o *Orchestrator) abandonCheckpoint(cp *checkpoint.Checkpoint, fresh bool) {
	if cp == nil || !fresh || len(cp.Completed) > 0 || len(cp.Failed) > 0 {
		return
	}
	if err := o.checkpoints.Delete(); err != nil {
		o.logger.WithError(err).Warn("Failed to delete empty checkpoint")
	}
}

func (o *Orchestrator) markCheckpoint(cp *checkpoint.Checkpoint, recordID string, outcome AccountOutcome) {
	if cp == nil {
		return
	}
	var err error
	if outcome.Status == OutcomeOK {
		err = o.checkpoints.MarkCompleted(cp, recordID)
	} else {
		err = o.checkpoints.MarkFailed(cp, recordID, outcome.ErrorKind)
	}
	if err != nil {
		o.logger.WithError(err).Warn("Failed to update checkpoint")
	}
}

func (o *Orchestrator) journalAccount(ctx context.Context, cycleID string, outcome AccountOutcome) {
	if err := o.journal.RecordAccount(ctx, cycleID, outcome); err != nil {
		o.logger.WithError(err).WithField("account", outcome.Username).Warn("Failed to journal account outcome")
	}
}

// isFatal reports errors that end the whole cycle
func isFatal(err error) bool {
	var timeout *errs.GovernorTimeout
	return errs.IsAuth(err) || errors.As(err, &timeout)
}
