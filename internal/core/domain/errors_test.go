package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrNotImplemented", ErrNotImplemented},
		{"ErrUnsupportedType", ErrUnsupportedType},
		{"ErrLLMUnavailable", ErrLLMUnavailable},
		{"ErrEmbeddingUnavailable", ErrEmbeddingUnavailable},
		{"ErrRemoteIndexUnavailable", ErrRemoteIndexUnavailable},
		{"ErrMigrationInProgress", ErrMigrationInProgress},
		{"ErrCacheMiss", ErrCacheMiss},
		{"ErrRateLimited", ErrRateLimited},
		{"ErrContentRejected", ErrContentRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestNotFoundError_IsErrNotFound(t *testing.T) {
	err := fmt.Errorf("load: %w", &NotFoundError{Resource: "/tmp/x.txt", Err: errors.New("no such file")})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "/tmp/x.txt not found")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "/tmp/x.txt", nf.Resource)
}

func TestUnsupportedFormatError_IsUnsupportedType(t *testing.T) {
	err := &UnsupportedFormatError{Format: "docx"}
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Equal(t, "unsupported format: docx", err.Error())
}

func TestWrappingErrors_Unwrap(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
	}{
		{"FetchError", &FetchError{URL: "https://example.com", Err: cause}},
		{"ParseError", &ParseError{Source: "page", Err: cause}},
		{"EmbeddingGenerationError", &EmbeddingGenerationError{Model: "m", Batch: 1, Err: cause}},
		{"StorageError", &StorageError{Op: "save chunk", Err: cause}},
		{"RetrievalError", &RetrievalError{Err: cause}},
		{"ResponseError", &ResponseError{Err: cause}},
		{"MigrationError", &MigrationError{Err: cause}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, cause)
			assert.Contains(t, tt.err.Error(), "boom")
		})
	}
}

func TestRateLimitedError(t *testing.T) {
	err := error(&RateLimitedError{Status: LimitStatus{
		Reason:  LimitTokens,
		Message: "Daily token limit reached",
		Usage:   100,
		Limit:   100,
	}})

	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, "Daily token limit reached", err.Error())

	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, LimitTokens, rl.Status.Reason)
}

func TestContentRejectedError(t *testing.T) {
	err := &ContentRejectedError{Keyword: "spam", Message: "Your message contains blocked content."}
	assert.ErrorIs(t, err, ErrContentRejected)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestHTTPStatusError_Message(t *testing.T) {
	err := &HTTPStatusError{URL: "https://example.com", StatusCode: 404, Message: "page not found"}
	assert.Equal(t, "fetch https://example.com: status 404: page not found", err.Error())
}

func TestMigrationError_WithoutCause(t *testing.T) {
	err := &MigrationError{Migrated: 9, Failed: 1}
	assert.Equal(t, "migration finished with 1 errors (9 migrated)", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}
