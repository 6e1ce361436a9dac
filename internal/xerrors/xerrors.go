// Package xerrors defines the structured error taxonomy shared by every
// component of the extraction engine. Every failure mode is a distinct
// variant rather than a string-typed error, so callers can branch with
// errors.As/errors.Is instead of matching on message text.
package xerrors

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when cooperative cancellation is observed at a
// suspension point. No partial result is ever emitted alongside it.
var ErrCancelled = errors.New("cancelled")

// CrawlKind enumerates the ways a single URL can fail to be ingested. These
// failures are fatal to the page but never fatal to the surrounding
// discover/fetch call.
type CrawlKind int

const (
	CrawlSecurity CrawlKind = iota
	CrawlRateLimitExceeded
	CrawlRobotsDisallowed
	CrawlTimeout
	CrawlInvalidURL
	CrawlHTTP
)

func (k CrawlKind) String() string {
	switch k {
	case CrawlSecurity:
		return "Security"
	case CrawlRateLimitExceeded:
		return "RateLimitExceeded"
	case CrawlRobotsDisallowed:
		return "RobotsDisallowed"
	case CrawlTimeout:
		return "Timeout"
	case CrawlInvalidURL:
		return "InvalidUrl"
	case CrawlHTTP:
		return "Http"
	default:
		return "Unknown"
	}
}

// CrawlError is a per-URL ingest failure. It wraps an optional underlying
// cause for the Http variant.
type CrawlError struct {
	Kind  CrawlKind
	URL   string
	Cause error
}

func (e *CrawlError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("crawl %s: %s: %v", e.Kind, e.URL, e.Cause)
	}
	return fmt.Sprintf("crawl %s: %s", e.Kind, e.URL)
}

func (e *CrawlError) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, &CrawlError{Kind: X}) to match on Kind alone.
func (e *CrawlError) Is(target error) bool {
	t, ok := target.(*CrawlError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.URL != "" && t.URL != e.URL {
		return false
	}
	return true
}

// NewCrawlError builds a CrawlError, a small convenience used across the
// ingest package so call sites stay one line.
func NewCrawlError(kind CrawlKind, url string, cause error) *CrawlError {
	return &CrawlError{Kind: kind, URL: url, Cause: cause}
}

// AIError wraps a provider failure. It is retryable at the caller's
// discretion; the core never retries on its own.
type AIError struct {
	Cause error
}

func (e *AIError) Error() string { return fmt.Sprintf("ai: %v", e.Cause) }
func (e *AIError) Unwrap() error { return e.Cause }

func NewAIError(cause error) *AIError { return &AIError{Cause: cause} }

// StorageError wraps a store-level failure. Generally non-retryable.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Cause) }
func (e *StorageError) Unwrap() error { return e.Cause }

func NewStorageError(op string, cause error) *StorageError {
	return &StorageError{Op: op, Cause: cause}
}

// PageNotFoundError is returned by extract_from/read when a URL is not
// present in the store.
type PageNotFoundError struct {
	URL string
}

func (e *PageNotFoundError) Error() string { return fmt.Sprintf("page not found: %s", e.URL) }

// InvalidQueryError is returned for an empty query or conflicting filters.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string { return fmt.Sprintf("invalid query: %s", e.Reason) }
