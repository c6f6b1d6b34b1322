package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"igsync/pkg/config"
	errs "igsync/pkg/errors"
	"igsync/pkg/logger"
	"igsync/pkg/ratelimit"
	"igsync/pkg/retry"
)

const (
	// DefaultBaseURL is the Airtable REST API root
	DefaultBaseURL = "https://api.airtable.com/v0"

	// MaxBatchSize is the most records Airtable accepts per write request
	MaxBatchSize = 10

	// MaxPageSize is the largest page Airtable returns for a list request
	MaxPageSize = 100
)

// Record is one Airtable row
type Record struct {
	ID          string                 `json:"id,omitempty"`
	CreatedTime string                 `json:"createdTime,omitempty"`
	Fields      map[string]interface{} `json:"fields"`
}

// ListOptions narrows a ListRecords call
type ListOptions struct {
	Formula    string
	Fields     []string
	MaxRecords int
	PageSize   int
	View       string
}

type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

type writeRequest struct {
	Records  []Record `json:"records"`
	Typecast bool     `json:"typecast"`
}

type writeResponse struct {
	Records []Record `json:"records"`
}

// Client talks to one Airtable base. Requests are throttled by a token bucket
// and retried on 429, 409, 5xx and network errors.
type Client struct {
	httpClient *http.Client
	baseURL    string
	baseID     string
	apiKey     string
	limiter    ratelimit.Limiter
	retry      *retry.Config
	logger     logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter replaces the request throttle
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithBackoff replaces the retry backoff strategy
func WithBackoff(b retry.BackoffStrategy) Option {
	return func(c *Client) { c.retry.Backoff = b }
}

// WithLogger sets the client logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.logger = l
		c.retry.Logger = l
	}
}

// NewClient creates a client for the configured base
func NewClient(cfg config.AirtableConfig, retryCfg config.RetryConfig, opts ...Option) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	log := logger.GetLogger()

	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		baseID:     cfg.BaseID,
		apiKey:     cfg.APIKey,
		limiter:    ratelimit.NewTokenBucket(rps, float64(rps), nil),
		retry: &retry.Config{
			MaxAttempts: retryCfg.MaxAttempts,
			Backoff:     retry.FromConfig(retryCfg),
			RetryIf:     retryable,
			Logger:      log,
		},
		logger: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryable extends the default policy with 409, which Airtable returns
// for concurrent writes to the same record.
func retryable(err error) bool {
	var apiErr *errs.Error
	if errors.As(err, &apiErr) && apiErr.Type == errs.ErrorTypeConflict {
		return true
	}
	return retry.DefaultRetryIf(err)
}

// ListRecords returns every record matching opts, following offsets until
// the listing ends or MaxRecords is reached. Records keep table order.
func (c *Client) ListRecords(ctx context.Context, table string, opts ListOptions) ([]Record, error) {
	var records []Record
	offset := ""
	for {
		query := opts.query(offset)
		var page listResponse
		if err := c.do(ctx, http.MethodGet, table, query, nil, &page); err != nil {
			return nil, err
		}
		records = append(records, page.Records...)

		if opts.MaxRecords > 0 && len(records) >= opts.MaxRecords {
			records = records[:opts.MaxRecords]
			break
		}
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}

	c.logger.DebugWithFields("listed records", map[string]interface{}{
		"table":   table,
		"records": len(records),
	})
	return records, nil
}

// UpdateRecords patches the given records in batches of MaxBatchSize. Only
// the fields present are changed.
func (c *Client) UpdateRecords(ctx context.Context, table string, records []Record) ([]Record, error) {
	for _, r := range records {
		if r.ID == "" {
			return nil, &errs.StoreError{Table: table, Err: fmt.Errorf("update requires a record id")}
		}
	}
	return c.write(ctx, http.MethodPatch, table, records)
}

// CreateRecords creates one record per field set, in batches of MaxBatchSize.
func (c *Client) CreateRecords(ctx context.Context, table string, fields []map[string]interface{}) ([]Record, error) {
	records := make([]Record, len(fields))
	for i, f := range fields {
		records[i] = Record{Fields: f}
	}
	return c.write(ctx, http.MethodPost, table, records)
}

func (c *Client) write(ctx context.Context, method, table string, records []Record) ([]Record, error) {
	var written []Record
	for start := 0; start < len(records); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(records) {
			end = len(records)
		}

		var resp writeResponse
		body := writeRequest{Records: records[start:end], Typecast: true}
		if err := c.do(ctx, method, table, nil, body, &resp); err != nil {
			return written, err
		}
		written = append(written, resp.Records...)
	}
	return written, nil
}

func (o ListOptions) query(offset string) url.Values {
	q := url.Values{}
	if o.Formula != "" {
		q.Set("filterByFormula", o.Formula)
	}
	for _, f := range o.Fields {
		q.Add("fields[]", f)
	}
	if o.MaxRecords > 0 {
		q.Set("maxRecords", strconv.Itoa(o.MaxRecords))
	}
	pageSize := o.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	q.Set("pageSize", strconv.Itoa(pageSize))
	if o.View != "" {
		q.Set("view", o.View)
	}
	if offset != "" {
		q.Set("offset", offset)
	}
	return q
}

// do performs one logical request with throttling and retries. Failures are
// returned as *errors.StoreError.
func (c *Client) do(ctx context.Context, method, table string, query url.Values, body, target interface{}) error {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.baseID), url.PathEscape(table))
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return &errs.StoreError{Table: table, Err: fmt.Errorf("encode request: %w", err)}
		}
	}

	var status int
	err := retry.Do(ctx, c.retry, func(attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		code, err := c.send(ctx, method, endpoint, payload, target)
		status = code
		return err
	})
	if err != nil {
		c.logger.ErrorWithFields("airtable request failed", map[string]interface{}{
			"table":  table,
			"method": method,
			"status": status,
			"error":  err.Error(),
		})
		return &errs.StoreError{Table: table, Status: status, Err: err}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte, target interface{}) (int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, &errs.Error{Type: errs.ErrorTypeUnknown, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, &errs.Error{Type: errs.ErrorTypeNetwork, Message: fmt.Sprintf("network error: %v", err)}
	}
	defer resp.Body.Close()
	logger.LogRequest(c.logger, "airtable", method, req.URL.Path, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &errs.Error{
			Type:    errs.TypeForStatus(resp.StatusCode),
			Message: errorMessage(data, resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}

	if target != nil {
		if err := json.Unmarshal(data, target); err != nil {
			return resp.StatusCode, &errs.Error{
				Type:    errs.ErrorTypeParsing,
				Message: fmt.Sprintf("failed to parse JSON: %v", err),
				Code:    resp.StatusCode,
			}
		}
	}
	return resp.StatusCode, nil
}

// errorMessage extracts Airtable's error description, which is either
// {"error": {"type": ..., "message": ...}} or {"error": "TYPE"}.
func errorMessage(body []byte, status int) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var detail struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &detail); err == nil && detail.Type != "" {
			if detail.Message != "" {
				return fmt.Sprintf("%s: %s", detail.Type, detail.Message)
			}
			return detail.Type
		}
		var code string
		if err := json.Unmarshal(envelope.Error, &code); err == nil && code != "" {
			return code
		}
	}
	return fmt.Sprintf("unexpected status code: %d", status)
}
