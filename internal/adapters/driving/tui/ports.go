// Package tui provides an interactive terminal user interface for ragline.
// It implements a driving adapter following hexagonal architecture principles.
package tui

import (
	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the TUI.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Retrieval finds context passages for the search view.
	Retrieval driving.RetrievalService

	// Chat answers questions in the chat view.
	Chat driving.ChatService

	// Ingestion lists, retries and removes queued documents.
	Ingestion driving.IngestionService

	// Identity owns the conversations started from the TUI.
	Identity domain.Identity

	// ChatbotID scopes retrieval and chat to one chatbot; 0 means none.
	ChatbotID int64
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	if p.Chat == nil {
		return ErrMissingChatService
	}
	if p.Ingestion == nil {
		return ErrMissingIngestionService
	}
	return nil
}
