package driving

import (
	"context"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

// ChatService answers messages grounded in retrieved context.
type ChatService interface {
	// GenerateResponse runs the full response pipeline for one message.
	GenerateResponse(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)

	// StreamResponse runs the same pipeline, passing text fragments to onChunk as they arrive.
	StreamResponse(ctx context.Context, req domain.ChatRequest, onChunk func(string) error) (*domain.ChatResponse, error)

	// ListConversations returns conversations for an identity.
	ListConversations(ctx context.Context, identity domain.Identity) ([]domain.Conversation, error)

	// History returns the recent turns of a conversation.
	History(ctx context.Context, conversationID int64) ([]domain.Message, error)

	// SetFavorite flags a conversation as favorite or not.
	SetFavorite(ctx context.Context, conversationID int64, favorite bool) error

	// SetArchived flags a conversation as archived or not.
	SetArchived(ctx context.Context, conversationID int64, archived bool) error

	// DeleteConversation removes a conversation and clears its cached history.
	DeleteConversation(ctx context.Context, conversationID int64) error
}

// ChatbotService manages chatbot definitions.
type ChatbotService interface {
	// Save creates or updates a chatbot.
	Save(ctx context.Context, bot *domain.Chatbot) error

	// Get retrieves a chatbot by ID.
	Get(ctx context.Context, id int64) (*domain.Chatbot, error)

	// List returns all chatbots.
	List(ctx context.Context) ([]domain.Chatbot, error)

	// Import saves bots, updating existing chatbots with the same name.
	Import(ctx context.Context, bots []domain.Chatbot) (created, updated int, err error)
}
