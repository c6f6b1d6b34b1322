package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"igsync/pkg/config"
	errs "igsync/pkg/errors"
	"igsync/pkg/logger"
	"igsync/pkg/ratelimit"
	"igsync/pkg/retry"
)

// Governor admits outbound calls. *ratelimit.Governor satisfies it.
type Governor interface {
	Admit(ctx context.Context, kind ratelimit.Kind, key string) error
}

// Client is the RapidAPI Instagram client. Every HTTP attempt, retries
// included, passes through the Governor first.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	governor   Governor
	retry      *retry.Config
	logger     logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoff replaces the retry backoff strategy
func WithBackoff(b retry.BackoffStrategy) Option {
	return func(c *Client) { c.retry.Backoff = b }
}

// WithSleep replaces how the client waits between attempts
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.retry.Sleep = sleep }
}

// WithLogger sets the client logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.logger = l
		c.retry.Logger = l
	}
}

// NewClient creates a client for the configured RapidAPI host
func NewClient(cfg config.InstagramConfig, retryCfg config.RetryConfig, governor Governor, opts ...Option) *Client {
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://" + host
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log := logger.GetLogger()

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers: map[string]string{
			"x-rapidapi-key":  cfg.APIKey,
			"x-rapidapi-host": host,
			"Accept":          "application/json",
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		governor: governor,
		retry: &retry.Config{
			MaxAttempts: retryCfg.MaxAttempts,
			Backoff:     retry.FromConfig(retryCfg),
			Logger:      log,
		},
		logger: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchProfile fetches the account's profile metadata.
func (c *Client) FetchProfile(ctx context.Context, account string) (*Profile, error) {
	var resp infoResponse
	if err := c.getJSON(ctx, ratelimit.KindAccount, account, InfoURL(c.baseURL, account), &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || (resp.Data.ID == "" && resp.Data.Username == "") {
		return nil, &errs.FetchError{
			AccountID: account,
			Status:    http.StatusOK,
			Attempts:  1,
			Err: &errs.Error{
				Type:    errs.ErrorTypeParsing,
				Message: "response carried no profile data",
				Code:    http.StatusOK,
			},
		}
	}

	c.logger.DebugWithFields("fetched profile", map[string]interface{}{
		"account":   account,
		"followers": resp.Data.FollowerCount,
	})
	return resp.Data, nil
}

// FetchPosts fetches one page of the account's posts. Pass the previous
// page's NextCursor to continue; an empty cursor starts from the newest post.
func (c *Client) FetchPosts(ctx context.Context, account, cursor string) (*PostsPage, error) {
	var resp postsResponse
	if err := c.getJSON(ctx, ratelimit.KindPost, account, PostsURL(c.baseURL, account, cursor), &resp); err != nil {
		return nil, err
	}

	page := &PostsPage{
		Items:      make([]Post, 0, len(resp.Data.Items)),
		NextCursor: resp.PaginationToken,
	}
	for _, item := range resp.Data.Items {
		if item.ID == "" {
			c.logger.WarnWithFields("skipping post without id", map[string]interface{}{
				"account": account,
			})
			continue
		}
		page.Items = append(page.Items, item.Normalize())
	}

	c.logger.DebugWithFields("fetched posts page", map[string]interface{}{
		"account": account,
		"items":   len(page.Items),
		"more":    !page.Done(),
	})
	return page, nil
}

// getJSON runs one logical call: governor admission, request and decode,
// retried per the retry config. Failures come back as *errors.FetchError.
func (c *Client) getJSON(ctx context.Context, kind ratelimit.Kind, account, url string, target interface{}) error {
	var (
		status   int
		attempts int
	)
	err := retry.Do(ctx, c.retry, func(attempt int) error {
		attempts = attempt
		if err := c.governor.Admit(ctx, kind, account); err != nil {
			return err
		}
		code, err := c.doGet(ctx, url, target)
		status = code
		return err
	})
	if err != nil {
		c.logger.ErrorWithFields("instagram request failed", map[string]interface{}{
			"account":  account,
			"kind":     string(kind),
			"status":   status,
			"attempts": attempts,
			"error":    err.Error(),
		})
		return &errs.FetchError{AccountID: account, Status: status, Attempts: attempts, Err: err}
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, url string, target interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"url":      req.URL.Path,
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return 0, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
		}
	}
	defer resp.Body.Close()
	logger.LogRequest(c.logger, "instagram", req.Method, req.URL.Path, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
		}
	}

	if err := checkResponseStatus(resp.StatusCode, body); err != nil {
		return resp.StatusCode, err
	}

	if err := json.Unmarshal(body, target); err != nil {
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          req.URL.Path,
			"error":        err.Error(),
			"body_preview": preview(body),
		})
		return resp.StatusCode, &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    resp.StatusCode,
		}
	}
	return resp.StatusCode, nil
}

// checkResponseStatus maps non-2xx responses onto typed errors
func checkResponseStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	errType := errs.TypeForStatus(status)
	var msg string
	switch errType {
	case errs.ErrorTypeAuth:
		msg = "API key rejected"
	case errs.ErrorTypeNotFound:
		msg = "account not found"
	case errs.ErrorTypeRateLimit:
		msg = "rate limit exceeded"
	case errs.ErrorTypeServerError:
		msg = "server error"
	default:
		msg = fmt.Sprintf("unexpected status code: %d", status)
	}
	if p := preview(body); p != "" {
		msg = fmt.Sprintf("%s: %s", msg, p)
	}
	return &errs.Error{Type: errType, Message: msg, Code: status}
}

func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
