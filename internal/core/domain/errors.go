package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown provider or normaliser type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrLLMUnavailable indicates no LLM provider is configured.
	ErrLLMUnavailable = errors.New("LLM provider unavailable")

	// ErrEmbeddingUnavailable indicates no embedding provider is configured.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrRemoteIndexUnavailable indicates the remote vector index is not configured.
	ErrRemoteIndexUnavailable = errors.New("remote vector index unavailable")

	// ErrMigrationInProgress indicates a non-stale migration lock is held.
	ErrMigrationInProgress = errors.New("migration already in progress")

	// ErrCacheMiss is returned by caches when a key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrRateLimited indicates a usage cap was reached.
	ErrRateLimited = errors.New("rate limited")

	// ErrContentRejected indicates a message matched a banned keyword.
	ErrContentRejected = errors.New("content rejected")
)

// NotFoundError reports an unreadable or missing resource.
type NotFoundError struct {
	Resource string
	Err      error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s not found: %v", e.Resource, e.Err)
	}
	return e.Resource + " not found"
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DisallowedPathError reports a file outside every allow-listed directory.
type DisallowedPathError struct {
	Path string
}

func (e *DisallowedPathError) Error() string {
	return fmt.Sprintf("path %q is outside the allowed directories", e.Path)
}

// UnsupportedFormatError reports a format with no available parser.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format: %s", e.Format)
}

// Is matches ErrUnsupportedType.
func (e *UnsupportedFormatError) Is(target error) bool { return target == ErrUnsupportedType }

// FetchError reports a network failure while loading a URL.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// HTTPStatusError reports a non-200 response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.StatusCode, e.Message)
}

// ParseError reports content that could not be extracted.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
	}
	return "parse " + e.Source + ": no readable content"
}

func (e *ParseError) Unwrap() error { return e.Err }

// EmbeddingGenerationError wraps a provider failure during a generation call.
type EmbeddingGenerationError struct {
	Model string
	Batch int
	Err   error
}

func (e *EmbeddingGenerationError) Error() string {
	return fmt.Sprintf("generate embeddings (model %s, batch %d): %v", e.Model, e.Batch, e.Err)
}

func (e *EmbeddingGenerationError) Unwrap() error { return e.Err }

// StorageError wraps a persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RetrievalError wraps any failure while building context for a query.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve context: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// RateLimitedError carries the limit that was reached.
type RateLimitedError struct {
	Status LimitStatus
}

func (e *RateLimitedError) Error() string {
	return e.Status.Message
}

// Is matches ErrRateLimited.
func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// ContentRejectedError reports a banned keyword match.
type ContentRejectedError struct {
	Keyword string
	Message string
}

func (e *ContentRejectedError) Error() string {
	return e.Message
}

// Is matches ErrContentRejected.
func (e *ContentRejectedError) Is(target error) bool { return target == ErrContentRejected }

// ResponseError wraps a failure while generating a chat response.
type ResponseError struct {
	Err error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("generate response: %v", e.Err)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// MigrationError reports a migration that could not start or finished with item failures.
type MigrationError struct {
	Migrated int
	Failed   int
	Err      error
}

func (e *MigrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("migration failed after %d migrated, %d errors: %v", e.Migrated, e.Failed, e.Err)
	}
	return fmt.Sprintf("migration finished with %d errors (%d migrated)", e.Failed, e.Migrated)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// LimitReason names the cap that was reached.
type LimitReason string

// Limit reasons.
const (
	LimitTokens      LimitReason = "token_limit"
	LimitMessages    LimitReason = "message_limit"
	LimitUnavailable LimitReason = "unavailable"
)

// LimitStatus describes a reached usage cap.
type LimitStatus struct {
	Reason    LimitReason
	Message   string
	Usage     int
	Limit     int
	ResetTime time.Time
}
