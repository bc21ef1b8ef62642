// Package messages defines Bubbletea message types for the TUI.
// Messages represent events and commands that flow through the Elm architecture.
package messages

import (
	"github.com/custodia-labs/ragline/internal/core/domain"
)

// SearchCompleted carries context passages back to the model.
type SearchCompleted struct {
	Query   string
	Results []domain.ContextResult
	Err     error
}

// ViewChanged is sent when navigating between views.
type ViewChanged struct {
	View ViewType
}

// ViewType identifies which view is currently active.
type ViewType int

const (
	// ViewMenu is the main navigation menu.
	ViewMenu ViewType = iota
	// ViewSearch finds context passages for a question.
	ViewSearch
	// ViewChat is the conversation view.
	ViewChat
	// ViewDocuments lists queued and ingested documents.
	ViewDocuments
	// ViewHelp is the help/keybindings view.
	ViewHelp
)

// String returns the string representation of the view type.
func (v ViewType) String() string {
	switch v {
	case ViewMenu:
		return "menu"
	case ViewSearch:
		return "search"
	case ViewChat:
		return "chat"
	case ViewDocuments:
		return "documents"
	case ViewHelp:
		return "help"
	default:
		return "unknown"
	}
}

// ErrorOccurred signals that an error happened.
type ErrorOccurred struct {
	Err error
}

// Quit signals the application should exit.
type Quit struct{}

// ChatResponded carries the answer to one chat turn.
type ChatResponded struct {
	Message  string
	Response *domain.ChatResponse
	Err      error
}

// DocumentsLoaded carries the document list.
type DocumentsLoaded struct {
	Documents []domain.Document
	Err       error
}

// DocumentRequeued signals a document was moved back to pending.
type DocumentRequeued struct {
	DocumentID int64
	Err        error
}

// DocumentRemoved signals a document and its vectors were deleted.
type DocumentRemoved struct {
	DocumentID int64
	Err        error
}

// QueueProcessed carries the result of a queue pass started from the documents view.
type QueueProcessed struct {
	Result *domain.QueueResult
	Err    error
}
