package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents an upstream API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// TypeForStatus maps an HTTP status code onto an ErrorType.
func TypeForStatus(statusCode int) ErrorType {
	switch {
	case statusCode == 0:
		return ErrorTypeNetwork
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuth
	case statusCode == 404:
		return ErrorTypeNotFound
	case statusCode == 409:
		return ErrorTypeConflict
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}

// ConfigError is returned when configuration cannot be loaded or is invalid.
// It is always fatal and is produced before any network activity.
type ConfigError struct {
	Problems []string
	Err      error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if len(e.Problems) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Problems, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FetchError is returned by the Instagram fetcher once a call has failed for good.
type FetchError struct {
	AccountID string
	Status    int
	Attempts  int
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s) (status %d): %v", e.AccountID, e.Attempts, e.Status, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StoreError is returned by the record store once a read or write has failed for good.
type StoreError struct {
	AccountID string
	Table     string
	Status    int
	Err       error
}

func (e *StoreError) Error() string {
	subject := e.Table
	if e.AccountID != "" {
		subject = fmt.Sprintf("%s/%s", e.Table, e.AccountID)
	}
	return fmt.Sprintf("store %s failed (status %d): %v", subject, e.Status, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// GovernorTimeout signals a broken rate governor invariant. It should never
// be observed in practice.
type GovernorTimeout struct {
	Kind string
	Key  string
	Wait time.Duration
}

func (e *GovernorTimeout) Error() string {
	return fmt.Sprintf("rate governor computed invalid wait %s for %s/%s", e.Wait, e.Kind, e.Key)
}

// IsAuth reports whether err was caused by rejected credentials (401/403).
func IsAuth(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type == ErrorTypeAuth
	}
	return false
}

// Kind returns a short label used in logs and the run journal.
func Kind(err error) string {
	var (
		cfgErr   *ConfigError
		fetchErr *FetchError
		storeErr *StoreError
		govErr   *GovernorTimeout
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "config"
	case errors.As(err, &govErr):
		return "governor"
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &storeErr):
		return "store"
	default:
		return "unknown"
	}
}

// StatusOf extracts the last HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Status
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Status
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
