package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for ragline resources.
	uriScheme = "ragline://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "documents",
		Name:        "documents",
		Description: "Documents in the knowledge base with their ingestion status",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "chatbots",
		Name:        "chatbots",
		Description: "Configured chatbots",
		MIMEType:    "application/json",
	}, s.handleChatbotsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "chatbots/{chatbotId}",
		Name:        "chatbot",
		Description: "Settings of a specific chatbot",
		MIMEType:    "application/json",
	}, s.handleChatbotResource)
}

// handleDocumentsResource returns a summary of every document.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Ingestion == nil {
		return jsonResult(req.Params.URI, "[]"), nil
	}

	docs, err := s.ports.Ingestion.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	type docInfo struct {
		ID        int64  `json:"id"`
		Title     string `json:"title"`
		Type      string `json:"source_type"`
		Source    string `json:"source"`
		Status    string `json:"status"`
		ChatbotID int64  `json:"chatbot_id,omitempty"`
		Error     string `json:"error,omitempty"`
	}

	infos := make([]docInfo, len(docs))
	for i := range docs {
		infos[i] = docInfo{
			ID:        docs[i].ID,
			Title:     docs[i].Title,
			Type:      string(docs[i].SourceType),
			Source:    docs[i].SourceRef,
			Status:    string(docs[i].Status),
			ChatbotID: docs[i].ChatbotID,
			Error:     docs[i].FailureReason(),
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling documents: %w", err)
	}
	return jsonResult(req.Params.URI, string(data)), nil
}

// handleChatbotsResource returns all chatbot definitions.
func (s *Server) handleChatbotsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Chatbots == nil {
		return jsonResult(req.Params.URI, "[]"), nil
	}

	bots, err := s.ports.Chatbots.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing chatbots: %w", err)
	}

	data, err := json.MarshalIndent(bots, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling chatbots: %w", err)
	}
	return jsonResult(req.Params.URI, string(data)), nil
}

// handleChatbotResource returns one chatbot definition.
func (s *Server) handleChatbotResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Chatbots == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	id := extractChatbotID(req.Params.URI)
	if id <= 0 {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	bot, err := s.ports.Chatbots.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting chatbot: %w", err)
	}
	if bot == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	data, err := json.MarshalIndent(bot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling chatbot: %w", err)
	}
	return jsonResult(req.Params.URI, string(data)), nil
}

func jsonResult(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		}},
	}
}

// extractChatbotID extracts the chatbot ID from a URI like ragline://chatbots/{chatbotId}.
// Returns 0 when the URI does not name a valid ID.
func extractChatbotID(uri string) int64 {
	const prefix = uriScheme + "chatbots/"

	if !strings.HasPrefix(uri, prefix) {
		return 0
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(uri, prefix), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
