package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindRetryable(t *testing.T) {
	tests := []struct {
		kind      ErrorKind
		retryable bool
	}{
		{ErrorKindRateLimited, true},
		{ErrorKindUnavailable, true},
		{ErrorKindAuth, false},
		{ErrorKindInvalidRequest, false},
		{ErrorKindUnknown, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.kind.Retryable())
		})
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{401, ErrorKindAuth},
		{403, ErrorKindAuth},
		{429, ErrorKindRateLimited},
		{400, ErrorKindInvalidRequest},
		{404, ErrorKindInvalidRequest},
		{500, ErrorKindUnavailable},
		{503, ErrorKindUnavailable},
		{200, ErrorKindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyHTTPStatus(tt.status))
	}
}

func TestNewProviderErrorRequiresProvider(t *testing.T) {
	assert.Panics(t, func() {
		NewProviderError("", "execute", 0, ErrorKindUnknown, "", "boom", "", nil)
	})
}

func TestAsProviderError(t *testing.T) {
	cause := errors.New("wrapped")
	pe := NewProviderError("anthropic", "execute", 500, ErrorKindUnavailable, "server_error", "boom", "req-1", cause)

	wrapped := errors.Join(errors.New("context"), pe)
	got, ok := AsProviderError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "anthropic", got.Provider)
	assert.ErrorIs(t, got, cause)
}

func TestProviderErrorMessage(t *testing.T) {
	pe := NewProviderError("openai", "execute", 429, ErrorKindRateLimited, "rate_limit", "too many requests", "", nil)
	assert.Contains(t, pe.Error(), "openai")
	assert.Contains(t, pe.Error(), "too many requests")
}
