package mcp

import (
	"github.com/custodia-labs/ragline/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Retrieval answers find_context calls.
	Retrieval driving.RetrievalService

	// Chat answers ask calls.
	Chat driving.ChatService

	// Ingestion lists documents for the documents resource.
	Ingestion driving.IngestionService

	// Chatbots lists chatbot definitions.
	Chatbots driving.ChatbotService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	// Chat, Ingestion and Chatbots are optional
	return nil
}
