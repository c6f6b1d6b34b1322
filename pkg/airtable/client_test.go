package airtable

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igsync/pkg/airtable/airtabletest"
	"igsync/pkg/config"
	errs "igsync/pkg/errors"
	"igsync/pkg/logger"
	"igsync/pkg/retry"
)

const (
	testBase  = "appTEST"
	testKey   = "patTEST.secret"
	testTable = "Accounts"
)

type countingLimiter struct{ waits int32 }

func (l *countingLimiter) Allow() bool { return true }
func (l *countingLimiter) Wait(ctx context.Context) error {
	atomic.AddInt32(&l.waits, 1)
	return ctx.Err()
}
func (l *countingLimiter) Reset() {}

func newTestClient(t *testing.T, apiKey string) (*Client, *airtabletest.Server, *countingLimiter) {
	t.Helper()
	server := airtabletest.NewServer(testBase, testKey)
	t.Cleanup(server.Close)

	limiter := &countingLimiter{}
	client := NewClient(
		config.AirtableConfig{APIKey: apiKey, BaseID: testBase, BaseURL: server.URL},
		config.RetryConfig{MaxAttempts: 3},
		WithLimiter(limiter),
		WithBackoff(&retry.ConstantBackoff{}),
		WithLogger(logger.NewTestLogger()),
	)
	return client, server, limiter
}

func TestListRecords(t *testing.T) {
	client, server, _ := newTestClient(t, testKey)
	for i := 1; i <= 5; i++ {
		status := "Active"
		if i == 3 {
			status = "Paused"
		}
		server.Seed(testTable, map[string]interface{}{
			"Username":  fmt.Sprintf("user%d", i),
			"Followers": i * 100,
			"Status":    status,
			"Bio":       "ignored",
		})
	}

	t.Run("filters and selects fields", func(t *testing.T) {
		records, err := client.ListRecords(context.Background(), testTable, ListOptions{
			Formula: `{Status}="Active"`,
			Fields:  []string{"Username", "Followers"},
		})
		require.NoError(t, err)
		require.Len(t, records, 4)

		assert.Equal(t, "user1", records[0].Fields["Username"])
		assert.Equal(t, "user5", records[3].Fields["Username"])
		assert.NotContains(t, records[0].Fields, "Bio")
		assert.NotEmpty(t, records[0].ID)
	})

	t.Run("follows offsets in order", func(t *testing.T) {
		records, err := client.ListRecords(context.Background(), testTable, ListOptions{PageSize: 2})
		require.NoError(t, err)
		require.Len(t, records, 5)
		for i, r := range records {
			assert.Equal(t, fmt.Sprintf("user%d", i+1), r.Fields["Username"])
		}
	})

	t.Run("honours max records", func(t *testing.T) {
		records, err := client.ListRecords(context.Background(), testTable, ListOptions{MaxRecords: 2, PageSize: 1})
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})
}

func TestUpdateRecordsBatches(t *testing.T) {
	client, server, limiter := newTestClient(t, testKey)

	var updates []Record
	for i := 0; i < 23; i++ {
		id := server.Seed("Content", map[string]interface{}{"Views": i})
		updates = append(updates, Record{ID: id, Fields: map[string]interface{}{"Previous Views": i}})
	}

	written, err := client.UpdateRecords(context.Background(), "Content", updates)
	require.NoError(t, err)
	assert.Len(t, written, 23)

	var patches int
	for _, r := range server.Requests() {
		if r.Method == http.MethodPatch {
			patches++
		}
	}
	assert.Equal(t, 3, patches)
	assert.Equal(t, int32(3), atomic.LoadInt32(&limiter.waits))

	rec, ok := server.Record("Content", updates[22].ID)
	require.True(t, ok)
	assert.EqualValues(t, 22, rec.Fields["Previous Views"])
	assert.EqualValues(t, 22, rec.Fields["Views"])
}

func TestUpdateRecordsRequiresID(t *testing.T) {
	client, _, _ := newTestClient(t, testKey)
	_, err := client.UpdateRecords(context.Background(), testTable, []Record{{Fields: map[string]interface{}{"a": 1}}})
	var storeErr *errs.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, testTable, storeErr.Table)
}

func TestCreateRecords(t *testing.T) {
	client, server, _ := newTestClient(t, testKey)

	created, err := client.CreateRecords(context.Background(), "Content", []map[string]interface{}{
		{"ID": "p1", "Caption": "one"},
		{"ID": "p2", "Caption": "two"},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.NotEmpty(t, created[0].ID)
	assert.Len(t, server.Records("Content"), 2)
}

func TestClientRetries(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusConflict, http.StatusServiceUnavailable} {
		t.Run(fmt.Sprintf("retries %d", status), func(t *testing.T) {
			client, server, _ := newTestClient(t, testKey)
			server.Seed(testTable, map[string]interface{}{"Username": "a"})
			server.FailNext(http.MethodGet, "", status, 2)

			records, err := client.ListRecords(context.Background(), testTable, ListOptions{})
			require.NoError(t, err)
			assert.Len(t, records, 1)
			assert.Len(t, server.Requests(), 3)
		})
	}

	t.Run("gives up after the ceiling", func(t *testing.T) {
		client, server, _ := newTestClient(t, testKey)
		server.FailNext("", "", http.StatusBadGateway, 10)

		_, err := client.ListRecords(context.Background(), testTable, ListOptions{})
		var storeErr *errs.StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, http.StatusBadGateway, storeErr.Status)
		assert.ErrorIs(t, err, retry.ErrExhausted)
		assert.Len(t, server.Requests(), 3)
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		client, server, _ := newTestClient(t, testKey)
		server.FailNext("", "", http.StatusUnprocessableEntity, 10)

		_, err := client.ListRecords(context.Background(), testTable, ListOptions{})
		require.Error(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, errs.StatusOf(err))
		assert.Contains(t, err.Error(), "INJECTED")
		assert.Len(t, server.Requests(), 1)
	})
}

func TestClientBadCredentials(t *testing.T) {
	client, _, _ := newTestClient(t, "wrong")

	_, err := client.ListRecords(context.Background(), testTable, ListOptions{})
	require.Error(t, err)
	assert.True(t, errs.IsAuth(err))
	assert.Equal(t, "store", errs.Kind(err))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "INVALID_PERMISSIONS: nope", errorMessage([]byte(`{"error":{"type":"INVALID_PERMISSIONS","message":"nope"}}`), 403))
	assert.Equal(t, "NOT_FOUND", errorMessage([]byte(`{"error":"NOT_FOUND"}`), 404))
	assert.Equal(t, "unexpected status code: 500", errorMessage([]byte(`<html>`), 500))
}
