package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igsync/pkg/airtable"
	"igsync/pkg/airtable/airtabletest"
	"igsync/pkg/config"
	"igsync/pkg/instagram"
	"igsync/pkg/logger"
	"igsync/pkg/ratelimit"
	"igsync/pkg/retry"
	"igsync/pkg/store"
)

// TestCycleEndToEnd wires the real client, governor, Airtable client and
// adapter against fake upstreams.
func TestCycleEndToEnd(t *testing.T) {
	var badHits int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := r.URL.Query().Get("username_or_id_or_url")
		if account == "broken" {
			atomic.AddInt32(&badHits, 1)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"data": {"id": "1", "username": "` + account + `", "follower_count": 321}}`))
	}))
	defer api.Close()

	base := airtabletest.NewServer("appE2E", "pat")
	defer base.Close()
	broken := base.Seed("Accounts", map[string]interface{}{"Username": "broken", "Status": "Active"})
	healthy := base.Seed("Accounts", map[string]interface{}{"Username": "healthy", "Status": "Active"})

	log := logger.NewTestLogger()
	clock := ratelimit.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	governor := ratelimit.NewGovernor(config.RateLimitConfig{
		RequestsPerMinute:    240,
		DelayBetweenAccounts: 2.0,
	}, ratelimit.WithClock(clock), ratelimit.WithLogger(log))

	retryCfg := config.RetryConfig{MaxAttempts: 3}
	fetcher := instagram.NewClient(
		config.InstagramConfig{APIKey: "k", BaseURL: api.URL},
		retryCfg, governor,
		instagram.WithBackoff(&retry.ConstantBackoff{}),
		instagram.WithLogger(log),
	)

	airCfg := config.AirtableConfig{APIKey: "pat", BaseID: "appE2E", ActiveAccountsTable: "Accounts", ContentTable: "Content", BaseURL: base.URL}
	records := airtable.NewClient(airCfg, retryCfg,
		airtable.WithLimiter(ratelimit.NewTokenBucket(100, 100, nil)),
		airtable.WithBackoff(&retry.ConstantBackoff{}),
		airtable.WithLogger(log),
	)
	adapter := store.New(records, airCfg, store.WithLogger(log))

	orch := New(fetcher, adapter, Options{}, WithLogger(log))
	report, err := orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&badHits))
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Succeeded)

	msg, ok := log.FindMessage("Account sync failed")
	require.True(t, ok)
	assert.Equal(t, "fetch", msg.Fields["error_kind"])

	row, _ := base.Record("Accounts", broken)
	assert.True(t, strings.Contains(row.Fields["API Error"].(string), "status 500"))
	assert.Equal(t, true, row.Fields["Scraped"])

	row, _ = base.Record("Accounts", healthy)
	assert.EqualValues(t, 321, row.Fields["Followers"])
	assert.Equal(t, "", row.Fields["API Error"])
	assert.NotEmpty(t, row.Fields["Last Synced"])

	// three attempts for the broken account, then the healthy one: every
	// attempt is an account call, two seconds apart
	assert.Equal(t, 6*time.Second, clock.Slept())
}
