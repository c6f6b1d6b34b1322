package ingest

import (
	"context"

	"igsync/pkg/instagram"
	"igsync/pkg/store"
)

// Fetcher defines the external API operations a cycle needs
type Fetcher interface {
	FetchProfile(ctx context.Context, account string) (*instagram.Profile, error)
	FetchPosts(ctx context.Context, account, cursor string) (*instagram.PostsPage, error)
}

// Store defines the record store operations a cycle needs
type Store interface {
	ListActiveAccounts(ctx context.Context, maxRecords int) ([]store.Account, error)
	FindAccount(ctx context.Context, username string) (store.Account, bool, error)
	WriteResult(ctx context.Context, account store.Account, fields map[string]interface{}) error
	RecordError(ctx context.Context, account store.Account, message string) error
	UpsertContent(ctx context.Context, account store.Account, post instagram.Post) (bool, error)
	History(ctx context.Context) error
}

// Journal receives account outcomes and cycle reports as they happen
type Journal interface {
	RecordAccount(ctx context.Context, cycleID string, outcome AccountOutcome) error
	RecordCycle(ctx context.Context, report *CycleReport) error
}

// NopJournal discards everything
type NopJournal struct{}

func (NopJournal) RecordAccount(ctx context.Context, cycleID string, outcome AccountOutcome) error {
	return nil
}

func (NopJournal) RecordCycle(ctx context.Context, report *CycleReport) error { return nil }
