package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := New(Config{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)
	return p
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorContains(t, err, "API key is required")

	p, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.ModelName())
	assert.Equal(t, DefaultBaseURL, p.baseURL)
}

func TestProvider_Complete(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, float64(DefaultMaxTokens), req["max_tokens"])
		system := req["system"].([]any)
		assert.Equal(t, "Be brief.", system[0].(map[string]any)["text"])
		msgs := req["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "assistant", msgs[1].(map[string]any)["role"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-sonnet-latest",
			"content":[{"type":"text","text":"Hello!"}],
			"stop_reason":"end_turn","stop_sequence":null,
			"usage":{"input_tokens":10,"output_tokens":3}
		}`))
	})

	got, err := p.Complete(context.Background(), []driven.ChatMessage{
		{Role: "system", Content: "Be brief."},
		{Role: "user", Content: "Hi"},
		{Role: "assistant", Content: "Hello"},
	}, driven.CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", got.Content)
	assert.Equal(t, "claude-3-5-sonnet-latest", got.Model)
	assert.Equal(t, driven.TokenUsage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13}, got.Usage)
}

func TestProvider_Stream(t *testing.T) {
	events := []struct{ name, data string }{
		{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-sonnet-latest","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}`},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.name, e.data)
		}
	})

	var deltas []string
	got, err := p.Stream(context.Background(), []driven.ChatMessage{{Role: "user", Content: "Hi"}},
		driven.CompletionOptions{}, func(s string) error {
			deltas = append(deltas, s)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", got.Content)
	assert.Equal(t, 10, got.Usage.PromptTokens)
	assert.Equal(t, 2, got.Usage.CompletionTokens)
}

func TestProvider_EmbedUnsupported(t *testing.T) {
	p, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), []string{"x"}, "")
	assert.ErrorContains(t, err, "does not support embeddings")
}

func TestProvider_Ping(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	assert.NoError(t, p.Ping(context.Background()))
}

func TestProvider_PingError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`invalid x-api-key`))
	})
	err := p.Ping(context.Background())
	assert.ErrorContains(t, err, "status 401")
}
