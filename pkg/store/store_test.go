package store

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igsync/pkg/airtable"
	"igsync/pkg/airtable/airtabletest"
	"igsync/pkg/config"
	errs "igsync/pkg/errors"
	"igsync/pkg/instagram"
	"igsync/pkg/logger"
	"igsync/pkg/ratelimit"
	"igsync/pkg/retry"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestAdapter(t *testing.T) (*Adapter, *airtabletest.Server, *logger.TestLogger) {
	t.Helper()
	server := airtabletest.NewServer("appTEST", "key")
	t.Cleanup(server.Close)

	cfg := config.AirtableConfig{
		APIKey:              "key",
		BaseID:              "appTEST",
		ActiveAccountsTable: "Accounts",
		ContentTable:        "Content",
		BaseURL:             server.URL,
	}
	log := logger.NewTestLogger()
	client := airtable.NewClient(cfg, config.RetryConfig{MaxAttempts: 2},
		airtable.WithLimiter(ratelimit.NewTokenBucket(1000, 1000, nil)),
		airtable.WithBackoff(&retry.ConstantBackoff{}),
		airtable.WithLogger(log),
	)
	return New(client, cfg, WithLogger(log), WithNow(func() time.Time { return fixedNow })), server, log
}

func TestListActiveAccounts(t *testing.T) {
	adapter, server, log := newTestAdapter(t)
	server.Seed("Accounts", map[string]interface{}{"Username": "alpha", "Status": "Active", "Followers": 10})
	server.Seed("Accounts", map[string]interface{}{"Username": "beta", "Status": "Inactive", "Followers": 20})
	server.Seed("Accounts", map[string]interface{}{"Status": "Active"})
	server.Seed("Accounts", map[string]interface{}{"Username": "gamma", "Status": "Active", "Last Synced": "2026-02-28T10:00:00Z"})

	accounts, err := adapter.ListActiveAccounts(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "alpha", accounts[0].Username)
	assert.Equal(t, int64(10), accounts[0].Followers)
	assert.Equal(t, "Active", accounts[0].Status)
	assert.Equal(t, "gamma", accounts[1].Username)
	assert.Equal(t, time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC), accounts[1].LastSynced)
	assert.True(t, log.HasMessage("skipping account row without username"))

	t.Run("reads fresh each call", func(t *testing.T) {
		server.Seed("Accounts", map[string]interface{}{"Username": "delta", "Status": "Active"})
		accounts, err := adapter.ListActiveAccounts(context.Background(), 0)
		require.NoError(t, err)
		assert.Len(t, accounts, 3)
	})

	t.Run("max records", func(t *testing.T) {
		accounts, err := adapter.ListActiveAccounts(context.Background(), 1)
		require.NoError(t, err)
		assert.Len(t, accounts, 1)
	})
}

func TestListActiveAccountsFailure(t *testing.T) {
	adapter, server, _ := newTestAdapter(t)
	server.FailNext("", "", http.StatusInternalServerError, 5)

	_, err := adapter.ListActiveAccounts(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, "store", errs.Kind(err))
}

func TestWriteResultIsIdempotent(t *testing.T) {
	adapter, server, _ := newTestAdapter(t)
	id := server.Seed("Accounts", map[string]interface{}{"Username": "alpha", "Status": "Active", "API Error": "boom"})
	account := Account{RecordID: id, Username: "alpha"}

	fields := ProfileFields(&instagram.Profile{Username: "alpha", FollowerCount: 1200, ProfilePicURL: "https://cdn.example/p.jpg"})
	require.NoError(t, adapter.WriteResult(context.Background(), account, fields))
	require.NoError(t, adapter.WriteResult(context.Background(), account, fields))

	records := server.Records("Accounts")
	require.Len(t, records, 1)
	rec := records[0]
	assert.EqualValues(t, 1200, rec.Fields["Followers"])
	assert.Equal(t, "", rec.Fields["API Error"])
	assert.Equal(t, "2026-03-01T12:00:00Z", rec.Fields["Last Synced"])
	assert.Equal(t, true, rec.Fields["Scraped"])
	assert.Equal(t, "Active", rec.Fields["Status"])
}

func TestWriteResultUnknownRow(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)

	err := adapter.WriteResult(context.Background(), Account{RecordID: "recMISSING", Username: "ghost"}, map[string]interface{}{})
	var storeErr *errs.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "ghost", storeErr.AccountID)
	assert.Equal(t, http.StatusNotFound, storeErr.Status)
}

func TestRecordError(t *testing.T) {
	adapter, server, _ := newTestAdapter(t)
	id := server.Seed("Accounts", map[string]interface{}{"Username": "alpha"})

	require.NoError(t, adapter.RecordError(context.Background(), Account{RecordID: id, Username: "alpha"}, "fetch failed (status 500)"))

	rec, ok := server.Record("Accounts", id)
	require.True(t, ok)
	assert.Equal(t, "fetch failed (status 500)", rec.Fields["API Error"])
	assert.Equal(t, true, rec.Fields["Scraped"])
}

func TestUpsertContent(t *testing.T) {
	adapter, server, _ := newTestAdapter(t)
	account := Account{RecordID: "recACCOUNT", Username: "alpha"}
	post := instagram.Post{
		ID:           "3141592653",
		Caption:      "first",
		PlayCount:    900,
		MediaType:    "Reel",
		SoundArtist:  "Band",
		SoundID:      "a-1",
		VideoURL:     "https://cdn.example/v.mp4",
		ThumbnailURL: "https://cdn.example/t.jpg",
	}

	created, err := adapter.UpsertContent(context.Background(), account, post)
	require.NoError(t, err)
	assert.True(t, created)

	post.Caption = "edited"
	post.PlayCount = 1000
	created, err = adapter.UpsertContent(context.Background(), account, post)
	require.NoError(t, err)
	assert.False(t, created)

	records := server.Records("Content")
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "edited", rec.Fields["Caption"])
	assert.EqualValues(t, 1000, rec.Fields["Play Count"])
	assert.Equal(t, "Reel", rec.Fields["Media Type"])
	assert.Equal(t, []interface{}{"recACCOUNT"}, rec.Fields["Account"])
	assert.Equal(t, "a-1", rec.Fields["Sound Used"])
}

func TestUpsertContentRequiresID(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	_, err := adapter.UpsertContent(context.Background(), Account{Username: "alpha"}, instagram.Post{})
	var storeErr *errs.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "alpha", storeErr.AccountID)
}

func TestSnapshots(t *testing.T) {
	adapter, server, _ := newTestAdapter(t)
	for i := 0; i < 12; i++ {
		server.Seed("Content", map[string]interface{}{"ID": i, "Views": i * 10})
	}
	legacy := server.Seed("Content", map[string]interface{}{"ID": "old", "View Count": 7})
	server.Seed("Content", map[string]interface{}{"ID": "new"})

	active := server.Seed("Accounts", map[string]interface{}{"Username": "a", "Status": "Active", "Followers": 50})
	inactive := server.Seed("Accounts", map[string]interface{}{"Username": "b", "Status": "Inactive", "Followers": 60})

	updated, err := adapter.SnapshotViews(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 13, updated)

	rec, _ := server.Record("Content", legacy)
	assert.EqualValues(t, 7, rec.Fields["Previous Views"])

	updated, err = adapter.SnapshotFollowers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	rec, _ = server.Record("Accounts", active)
	assert.EqualValues(t, 50, rec.Fields["Previous Followers"])
	rec, _ = server.Record("Accounts", inactive)
	assert.NotContains(t, rec.Fields, "Previous Followers")

	require.NoError(t, adapter.History(context.Background()))
}

func TestContentFieldsOmitsEmptyMedia(t *testing.T) {
	fields := ContentFields(Account{}, instagram.Post{ID: "1", MediaType: "Image"})
	assert.NotContains(t, fields, "Content")
	assert.NotContains(t, fields, "Thumbnail")
	assert.NotContains(t, fields, "Account")
	assert.NotContains(t, fields, "Sound Artist")
}

func TestProfileFields(t *testing.T) {
	fields := ProfileFields(&instagram.Profile{
		Username:        "alpha",
		Biography:       "bio",
		ProfilePicURL:   "small",
		ProfilePicURLHD: "hd",
		MediaCount:      3,
		ExternalURL:     "https://alpha.example",
	})
	assert.Equal(t, []map[string]string{{"url": "hd"}}, fields["PFP"])
	assert.Equal(t, "https://alpha.example", fields["Bio Link"])
	assert.Equal(t, int64(3), fields["Media Count"])
}

func TestFindAccount(t *testing.T) {
	adapter, server, _ := newTestAdapter(t)
	id := server.Seed("Accounts", map[string]interface{}{"Username": "alpha", "Status": "Inactive", "Followers": 5})

	acct, found, err := adapter.FindAccount(context.Background(), "alpha")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, acct.RecordID)
	assert.Equal(t, "Inactive", acct.Status)

	_, found, err = adapter.FindAccount(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, found)
}
