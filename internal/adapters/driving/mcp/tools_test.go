package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

func TestServer_handleFindContext(t *testing.T) {
	ctx := context.Background()

	t.Run("returns context results", func(t *testing.T) {
		retrieval := &mockRetrievalService{
			results: []domain.ContextResult{
				{
					ChunkID:   42,
					Content:   "Opening hours are nine to five.",
					Relevance: 0.91,
					Source:    "https://example.com/hours",
				},
			},
		}

		server, err := NewServer(&Ports{Retrieval: retrieval})
		require.NoError(t, err)

		input := FindContextInput{Query: "when are you open", ChatbotID: 3, Limit: 2}
		_, output, err := server.handleFindContext(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, 1, output.Count)
		require.Len(t, output.Results, 1)
		assert.Equal(t, int64(42), output.Results[0].ChunkID)
		assert.Equal(t, "https://example.com/hours", output.Results[0].Source)
		assert.Equal(t, 0.91, output.Results[0].Relevance)
		assert.Equal(t, "Opening hours are nine to five.", output.Results[0].Content)

		assert.Equal(t, "when are you open", retrieval.lastQuery)
		assert.Equal(t, int64(3), retrieval.lastOwner)
		assert.Equal(t, 2, retrieval.lastOpts.MaxResults)
	})

	t.Run("default limit is 5", func(t *testing.T) {
		retrieval := &mockRetrievalService{}
		server, err := NewServer(&Ports{Retrieval: retrieval})
		require.NoError(t, err)

		_, output, err := server.handleFindContext(ctx, nil, FindContextInput{Query: "test"})

		require.NoError(t, err)
		assert.Equal(t, 0, output.Count)
		assert.Equal(t, 5, retrieval.lastOpts.MaxResults)
	})

	t.Run("min similarity is passed through, zero included", func(t *testing.T) {
		retrieval := &mockRetrievalService{}
		server, err := NewServer(&Ports{Retrieval: retrieval})
		require.NoError(t, err)

		_, _, err = server.handleFindContext(ctx, nil, FindContextInput{Query: "test"})
		require.NoError(t, err)
		assert.Nil(t, retrieval.lastOpts.MinSimilarity)

		zero := 0.0
		_, _, err = server.handleFindContext(ctx, nil, FindContextInput{Query: "test", MinSimilarity: &zero})
		require.NoError(t, err)
		require.NotNil(t, retrieval.lastOpts.MinSimilarity)
		assert.Zero(t, *retrieval.lastOpts.MinSimilarity)

		tooHigh := 1.5
		_, _, err = server.handleFindContext(ctx, nil, FindContextInput{Query: "other", MinSimilarity: &tooHigh})
		require.Error(t, err)
		assert.Equal(t, "test", retrieval.lastQuery)
	})

	t.Run("neighbouring chunks are joined in order", func(t *testing.T) {
		retrieval := &mockRetrievalService{
			results: []domain.ContextResult{{
				ChunkID: 7,
				Content: "middle",
				Before:  []domain.ContextChunk{{ChunkIndex: 1, Content: "first"}},
				After:   []domain.ContextChunk{{ChunkIndex: 3, Content: "last"}},
			}},
		}
		server, err := NewServer(&Ports{Retrieval: retrieval})
		require.NoError(t, err)

		_, output, err := server.handleFindContext(ctx, nil, FindContextInput{Query: "test"})

		require.NoError(t, err)
		require.Len(t, output.Results, 1)
		assert.Equal(t, "first\n\nmiddle\n\nlast", output.Results[0].Content)
	})

	t.Run("empty query is rejected", func(t *testing.T) {
		retrieval := &mockRetrievalService{}
		server, err := NewServer(&Ports{Retrieval: retrieval})
		require.NoError(t, err)

		_, _, err = server.handleFindContext(ctx, nil, FindContextInput{Query: "  "})

		require.Error(t, err)
		assert.Empty(t, retrieval.lastQuery)
	})

	t.Run("returns error on retrieval failure", func(t *testing.T) {
		retrieval := &mockRetrievalService{err: errors.New("embedding failed")}
		server, err := NewServer(&Ports{Retrieval: retrieval})
		require.NoError(t, err)

		_, _, err = server.handleFindContext(ctx, nil, FindContextInput{Query: "test"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "embedding failed")
	})
}

func TestServer_handleAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("returns response with unique sources", func(t *testing.T) {
		chat := &mockChatService{
			response: &domain.ChatResponse{
				Response:       "We open at nine.",
				ConversationID: 12,
				Context: []domain.ContextResult{
					{ChunkID: 1, Source: "https://example.com/hours"},
					{ChunkID: 2, Source: "https://example.com/hours"},
					{ChunkID: 3, Source: "file:///docs/faq.md"},
					{ChunkID: 4},
				},
				Metadata: domain.ResponseMetadata{Model: "gpt-4o-mini", TotalTokens: 120},
			},
		}
		server, err := NewServer(&Ports{Retrieval: &mockRetrievalService{}, Chat: chat})
		require.NoError(t, err)

		input := AskInput{Message: "when do you open?", ChatbotID: 2, ConversationID: 12}
		_, output, err := server.handleAsk(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, "We open at nine.", output.Response)
		assert.Equal(t, int64(12), output.ConversationID)
		assert.Equal(t, []string{"https://example.com/hours", "file:///docs/faq.md"}, output.Sources)
		assert.Equal(t, "gpt-4o-mini", output.Model)
		assert.Equal(t, 120, output.TotalTokens)

		require.Len(t, chat.requests, 1)
		req := chat.requests[0]
		assert.Equal(t, "when do you open?", req.Message)
		assert.Equal(t, int64(2), req.ChatbotID)
		assert.Equal(t, int64(12), req.ConversationID)
		assert.Equal(t, server.identity, req.Identity)
	})

	t.Run("missing chat service", func(t *testing.T) {
		server, err := NewServer(&Ports{Retrieval: &mockRetrievalService{}})
		require.NoError(t, err)

		_, _, err = server.handleAsk(ctx, nil, AskInput{Message: "hi"})

		assert.ErrorIs(t, err, ErrChatUnavailable)
	})

	t.Run("propagates rate limit errors", func(t *testing.T) {
		chat := &mockChatService{err: &domain.RateLimitedError{Status: domain.LimitStatus{
			Reason:  domain.LimitMessages,
			Message: "Daily message limit reached",
		}}}
		server, err := NewServer(&Ports{Retrieval: &mockRetrievalService{}, Chat: chat})
		require.NoError(t, err)

		_, _, err = server.handleAsk(ctx, nil, AskInput{Message: "hi"})

		assert.ErrorIs(t, err, domain.ErrRateLimited)
		var rl *domain.RateLimitedError
		require.ErrorAs(t, err, &rl)
		assert.Equal(t, domain.LimitMessages, rl.Status.Reason)
	})
}
