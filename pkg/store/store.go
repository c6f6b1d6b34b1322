package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"igsync/pkg/airtable"
	"igsync/pkg/config"
	errs "igsync/pkg/errors"
	"igsync/pkg/instagram"
	"igsync/pkg/logger"
)

// Field names in the accounts and content tables
const (
	FieldUsername          = "Username"
	FieldStatus            = "Status"
	FieldFollowers         = "Followers"
	FieldPreviousFollowers = "Previous Followers"
	FieldLastSynced        = "Last Synced"
	FieldAPIError          = "API Error"
	FieldScraped           = "Scraped"

	FieldContentID     = "ID"
	FieldViews         = "Views"
	FieldViewCount     = "View Count"
	FieldPreviousViews = "Previous Views"

	// StatusActive marks accounts that take part in a cycle
	StatusActive = "Active"
)

// Records is the subset of the Airtable client the adapter needs
type Records interface {
	ListRecords(ctx context.Context, table string, opts airtable.ListOptions) ([]airtable.Record, error)
	UpdateRecords(ctx context.Context, table string, records []airtable.Record) ([]airtable.Record, error)
	CreateRecords(ctx context.Context, table string, fields []map[string]interface{}) ([]airtable.Record, error)
}

// Account is one managed Instagram identity from the accounts table
type Account struct {
	RecordID   string
	Username   string
	Status     string
	Followers  int64
	LastSynced time.Time
}

// Adapter maps accounts, profiles and posts onto Airtable rows.
type Adapter struct {
	records       Records
	accountsTable string
	contentTable  string
	logger        logger.Logger
	now           func() time.Time
}

// Option configures an Adapter
type Option func(*Adapter)

// WithLogger sets the adapter logger
func WithLogger(l logger.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithNow replaces the clock used for Last Synced stamps
func WithNow(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// New creates an adapter over records using the table names in cfg
func New(records Records, cfg config.AirtableConfig, opts ...Option) *Adapter {
	a := &Adapter{
		records:       records,
		accountsTable: cfg.ActiveAccountsTable,
		contentTable:  cfg.ContentTable,
		logger:        logger.GetLogger(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ListActiveAccounts returns the accounts whose Status is Active, in table
// order. It always queries the table; nothing is cached. maxRecords <= 0
// means no limit.
func (a *Adapter) ListActiveAccounts(ctx context.Context, maxRecords int) ([]Account, error) {
	records, err := a.records.ListRecords(ctx, a.accountsTable, airtable.ListOptions{
		Formula:    fmt.Sprintf(`{%s}="%s"`, FieldStatus, StatusActive),
		Fields:     []string{FieldUsername, FieldFollowers, FieldStatus, FieldLastSynced},
		MaxRecords: maxRecords,
	})
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}

	accounts := make([]Account, 0, len(records))
	for _, r := range records {
		username := strings.TrimSpace(stringField(r.Fields, FieldUsername))
		if username == "" {
			a.logger.WarnWithFields("skipping account row without username", map[string]interface{}{
				"record_id": r.ID,
			})
			continue
		}
		acct := Account{
			RecordID:  r.ID,
			Username:  username,
			Status:    stringField(r.Fields, FieldStatus),
			Followers: intField(r.Fields, FieldFollowers),
		}
		if ts := stringField(r.Fields, FieldLastSynced); ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				acct.LastSynced = t
			}
		}
		accounts = append(accounts, acct)
	}

	a.logger.InfoWithFields("listed active accounts", map[string]interface{}{
		"table":    a.accountsTable,
		"accounts": len(accounts),
		"skipped":  len(records) - len(accounts),
	})
	return accounts, nil
}

// FindAccount looks up an account row by username regardless of status.
func (a *Adapter) FindAccount(ctx context.Context, username string) (Account, bool, error) {
	records, err := a.records.ListRecords(ctx, a.accountsTable, airtable.ListOptions{
		Formula:    fmt.Sprintf(`{%s}="%s"`, FieldUsername, strings.ReplaceAll(username, `"`, `\"`)),
		Fields:     []string{FieldUsername, FieldFollowers, FieldStatus},
		MaxRecords: 1,
	})
	if err != nil {
		return Account{}, false, withAccount(err, username)
	}
	if len(records) == 0 {
		return Account{}, false, nil
	}
	r := records[0]
	return Account{
		RecordID:  r.ID,
		Username:  stringField(r.Fields, FieldUsername),
		Status:    stringField(r.Fields, FieldStatus),
		Followers: intField(r.Fields, FieldFollowers),
	}, true, nil
}

// WriteResult writes fields to the account's own row, stamping Last Synced
// and clearing API Error. Writing the same result twice leaves one row.
func (a *Adapter) WriteResult(ctx context.Context, account Account, fields map[string]interface{}) error {
	out := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out[FieldLastSynced] = a.now().UTC().Format(time.RFC3339)
	out[FieldAPIError] = ""

	_, err := a.records.UpdateRecords(ctx, a.accountsTable, []airtable.Record{{ID: account.RecordID, Fields: out}})
	if err != nil {
		return withAccount(err, account.Username)
	}
	return nil
}

// RecordError stores message in the account's API Error field
func (a *Adapter) RecordError(ctx context.Context, account Account, message string) error {
	_, err := a.records.UpdateRecords(ctx, a.accountsTable, []airtable.Record{{
		ID: account.RecordID,
		Fields: map[string]interface{}{
			FieldAPIError: message,
			FieldScraped:  true,
		},
	}})
	if err != nil {
		return withAccount(err, account.Username)
	}
	return nil
}

// UpsertContent writes post to the content table, updating the row with the
// same post ID if there is one. It reports whether a row was created.
func (a *Adapter) UpsertContent(ctx context.Context, account Account, post instagram.Post) (bool, error) {
	if post.ID == "" {
		return false, withAccount(&errs.StoreError{Table: a.contentTable, Err: errors.New("post has no id")}, account.Username)
	}
	fields := ContentFields(account, post)

	existing, err := a.records.ListRecords(ctx, a.contentTable, airtable.ListOptions{
		Formula:    fmt.Sprintf("{%s}='%s'", FieldContentID, escapeFormula(post.ID)),
		Fields:     []string{FieldContentID},
		MaxRecords: 1,
	})
	if err != nil {
		return false, withAccount(err, account.Username)
	}

	if len(existing) > 0 {
		_, err = a.records.UpdateRecords(ctx, a.contentTable, []airtable.Record{{ID: existing[0].ID, Fields: fields}})
		if err != nil {
			return false, withAccount(err, account.Username)
		}
		return false, nil
	}

	if _, err := a.records.CreateRecords(ctx, a.contentTable, []map[string]interface{}{fields}); err != nil {
		return false, withAccount(err, account.Username)
	}
	return true, nil
}

// SnapshotViews copies Views (or View Count) into Previous Views on every
// content row. It returns the number of rows updated.
func (a *Adapter) SnapshotViews(ctx context.Context) (int, error) {
	records, err := a.records.ListRecords(ctx, a.contentTable, airtable.ListOptions{
		Fields: []string{FieldViews, FieldViewCount},
	})
	if err != nil {
		return 0, fmt.Errorf("snapshot views: %w", err)
	}

	var updates []airtable.Record
	for _, r := range records {
		views, ok := r.Fields[FieldViews]
		if !ok || views == nil {
			views, ok = r.Fields[FieldViewCount]
		}
		if !ok || views == nil {
			continue
		}
		updates = append(updates, airtable.Record{ID: r.ID, Fields: map[string]interface{}{FieldPreviousViews: views}})
	}
	return a.applySnapshot(ctx, a.contentTable, "views", updates)
}

// SnapshotFollowers copies Followers into Previous Followers on every active
// account row.
func (a *Adapter) SnapshotFollowers(ctx context.Context) (int, error) {
	records, err := a.records.ListRecords(ctx, a.accountsTable, airtable.ListOptions{
		Formula: fmt.Sprintf(`{%s}="%s"`, FieldStatus, StatusActive),
		Fields:  []string{FieldFollowers},
	})
	if err != nil {
		return 0, fmt.Errorf("snapshot followers: %w", err)
	}

	var updates []airtable.Record
	for _, r := range records {
		followers, ok := r.Fields[FieldFollowers]
		if !ok || followers == nil {
			continue
		}
		updates = append(updates, airtable.Record{ID: r.ID, Fields: map[string]interface{}{FieldPreviousFollowers: followers}})
	}
	return a.applySnapshot(ctx, a.accountsTable, "followers", updates)
}

// History runs both snapshots
func (a *Adapter) History(ctx context.Context) error {
	if _, err := a.SnapshotViews(ctx); err != nil {
		return err
	}
	_, err := a.SnapshotFollowers(ctx)
	return err
}

func (a *Adapter) applySnapshot(ctx context.Context, table, what string, updates []airtable.Record) (int, error) {
	if len(updates) > 0 {
		if _, err := a.records.UpdateRecords(ctx, table, updates); err != nil {
			return 0, fmt.Errorf("snapshot %s: %w", what, err)
		}
	}
	a.logger.InfoWithFields("snapshot complete", map[string]interface{}{
		"table":   table,
		"field":   what,
		"updated": len(updates),
	})
	return len(updates), nil
}

// withAccount tags a StoreError with the account it concerns
func withAccount(err error, account string) error {
	var storeErr *errs.StoreError
	if errors.As(err, &storeErr) && storeErr.AccountID == "" {
		storeErr.AccountID = account
	}
	return err
}

func escapeFormula(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func stringField(fields map[string]interface{}, name string) string {
	switch v := fields[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intField(fields map[string]interface{}, name string) int64 {
	switch v := fields[name].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}
