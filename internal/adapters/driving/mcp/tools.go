package mcp

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

// defaultContextLimit applies when find_context is called without a limit.
const defaultContextLimit = 5

// FindContextInput is the input schema for the find_context tool.
type FindContextInput struct {
	Query     string `json:"query" jsonschema:"the natural-language question to find context for"`
	ChatbotID int64  `json:"chatbot_id,omitempty" jsonschema:"restrict results to one chatbot's documents (0 = all)"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of passages to return (default 5)"`
	// MinSimilarity is a pointer so an explicit 0 is kept.
	MinSimilarity *float64 `json:"min_similarity,omitempty" jsonschema:"minimum cosine similarity between -1 and 1 (default from config)"`
}

// FindContextOutput is the output schema for the find_context tool.
type FindContextOutput struct {
	Results []ContextOutput `json:"results"`
	Count   int             `json:"count"`
}

// ContextOutput represents a single retrieved passage.
type ContextOutput struct {
	ChunkID   int64   `json:"chunk_id"`
	Source    string  `json:"source"`
	Relevance float64 `json:"relevance"`
	Content   string  `json:"content"`
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Message        string `json:"message" jsonschema:"the question to ask"`
	ChatbotID      int64  `json:"chatbot_id,omitempty" jsonschema:"chatbot to answer as (0 = default)"`
	ConversationID int64  `json:"conversation_id,omitempty" jsonschema:"continue an existing conversation"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Response       string   `json:"response"`
	ConversationID int64    `json:"conversation_id"`
	Sources        []string `json:"sources,omitempty"`
	Model          string   `json:"model,omitempty"`
	TotalTokens    int      `json:"total_tokens"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "find_context",
		Description: "Find knowledge base passages relevant to a question",
	}, s.handleFindContext)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Ask a chatbot a question answered from the knowledge base",
	}, s.handleAsk)
}

// handleFindContext handles the find_context tool invocation.
func (s *Server) handleFindContext(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input FindContextInput,
) (*mcp.CallToolResult, FindContextOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, FindContextOutput{}, errors.New("query is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultContextLimit
	}

	if input.MinSimilarity != nil && (*input.MinSimilarity < -1 || *input.MinSimilarity > 1) {
		return nil, FindContextOutput{}, errors.New("min_similarity must be between -1 and 1")
	}

	opts := domain.ContextOptions{MaxResults: limit, MinSimilarity: input.MinSimilarity}
	results, err := s.ports.Retrieval.FindContext(ctx, input.Query, input.ChatbotID, opts)
	if err != nil {
		return nil, FindContextOutput{}, err
	}

	output := FindContextOutput{
		Results: make([]ContextOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		output.Results[i] = ContextOutput{
			ChunkID:   results[i].ChunkID,
			Source:    results[i].Source,
			Relevance: results[i].Relevance,
			Content:   expandedContent(results[i]),
		}
	}

	return nil, output, nil
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	if s.ports.Chat == nil {
		return nil, AskOutput{}, ErrChatUnavailable
	}

	resp, err := s.ports.Chat.GenerateResponse(ctx, domain.ChatRequest{
		Message:        input.Message,
		ConversationID: input.ConversationID,
		ChatbotID:      input.ChatbotID,
		Identity:       s.identity,
	})
	if err != nil {
		return nil, AskOutput{}, err
	}

	output := AskOutput{
		Response:       resp.Response,
		ConversationID: resp.ConversationID,
		Model:          resp.Metadata.Model,
		TotalTokens:    resp.Metadata.TotalTokens,
	}
	seen := make(map[string]bool)
	for i := range resp.Context {
		src := resp.Context[i].Source
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		output.Sources = append(output.Sources, src)
	}

	return nil, output, nil
}

// expandedContent joins a result with its neighbouring chunks in order.
func expandedContent(r domain.ContextResult) string {
	if len(r.Before) == 0 && len(r.After) == 0 {
		return r.Content
	}
	parts := make([]string, 0, len(r.Before)+1+len(r.After))
	for _, c := range r.Before {
		parts = append(parts, c.Content)
	}
	parts = append(parts, r.Content)
	for _, c := range r.After {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, "\n\n")
}
