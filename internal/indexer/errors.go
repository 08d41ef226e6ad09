package indexer

import (
	"errors"
	"fmt"
)

// Error codes for categorizing indexer errors.
const (
	ErrCodeAuthentication = "AUTH_ERROR"
	ErrCodeSearch         = "SEARCH_ERROR"
	ErrCodeConfiguration  = "CONFIG_ERROR"
	ErrCodeRateLimit      = "RATE_LIMIT_ERROR"
	ErrCodeNetwork        = "NETWORK_ERROR"
	ErrCodeParse          = "PARSE_ERROR"
	ErrCodeCloudflare     = "CLOUDFLARE_ERROR"
	ErrCodeCapability     = "CAPABILITY_ERROR"
	ErrCodeTimeout        = "TIMEOUT_ERROR"
)

// IndexerError represents a categorized error from an indexer operation.
// The orchestrator inspects the code instead of using exceptions for
// control flow.
type IndexerError struct {
	Code        string // Error category code
	Message     string // Human-readable message
	IndexerID   int64  // ID of the affected indexer (0 if not applicable)
	IndexerName string // Name of the affected indexer
	Retryable   bool   // Whether the operation can be retried
	Cause       error  // Underlying error
}

// Error implements the error interface.
func (e *IndexerError) Error() string {
	if e.IndexerName != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.IndexerName, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *IndexerError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is().
func (e *IndexerError) Is(target error) bool {
	var t *IndexerError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Common error instances for comparison.
var (
	ErrAuthentication = &IndexerError{Code: ErrCodeAuthentication, Message: "authentication failed"}
	ErrSearch         = &IndexerError{Code: ErrCodeSearch, Message: "search failed"}
	ErrRateLimit      = &IndexerError{Code: ErrCodeRateLimit, Message: "rate limit exceeded"}
	ErrNetwork        = &IndexerError{Code: ErrCodeNetwork, Message: "network error"}
	ErrCloudflare     = &IndexerError{Code: ErrCodeCloudflare, Message: "cloudflare challenge"}
	ErrTimeout        = &IndexerError{Code: ErrCodeTimeout, Message: "search timeout"}
)

// NewSearchError creates a search error.
func NewSearchError(indexerID int64, indexerName string, cause error) *IndexerError {
	return &IndexerError{
		Code:        ErrCodeSearch,
		Message:     "search failed",
		IndexerID:   indexerID,
		IndexerName: indexerName,
		Retryable:   true,
		Cause:       cause,
	}
}

// NewCloudflareError creates an error for a Cloudflare challenge response.
func NewCloudflareError(indexerID int64, indexerName string) *IndexerError {
	return &IndexerError{
		Code:        ErrCodeCloudflare,
		Message:     "blocked by cloudflare challenge",
		IndexerID:   indexerID,
		IndexerName: indexerName,
		Retryable:   false,
	}
}

// NewCapabilityError creates an error for a search the indexer cannot handle.
func NewCapabilityError(indexerID int64, indexerName, message string) *IndexerError {
	return &IndexerError{
		Code:        ErrCodeCapability,
		Message:     message,
		IndexerID:   indexerID,
		IndexerName: indexerName,
		Retryable:   false,
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(indexerID int64, indexerName string, cause error) *IndexerError {
	return &IndexerError{
		Code:        ErrCodeNetwork,
		Message:     "network error",
		IndexerID:   indexerID,
		IndexerName: indexerName,
		Retryable:   true,
		Cause:       cause,
	}
}

// IsCloudflare returns whether the error is a Cloudflare challenge.
func IsCloudflare(err error) bool {
	return errors.Is(err, ErrCloudflare)
}

// IsRetryable returns whether the error is retryable.
func IsRetryable(err error) bool {
	var indexerErr *IndexerError
	if errors.As(err, &indexerErr) {
		return indexerErr.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var indexerErr *IndexerError
	if errors.As(err, &indexerErr) {
		return indexerErr.Code
	}
	return ""
}
