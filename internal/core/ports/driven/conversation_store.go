package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

// ConversationStore is the durable per-message store for chat.
type ConversationStore interface {
	// CreateConversation inserts a conversation and assigns its ID.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id int64) (*domain.Conversation, error)

	// ListConversations returns conversations for an identity, most recently updated first.
	ListConversations(ctx context.Context, identity domain.Identity) ([]domain.Conversation, error)

	// UpdateConversation saves title, favorite and archived flags.
	UpdateConversation(ctx context.Context, conv *domain.Conversation) error

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, id int64) error

	// AppendMessage inserts a message and bumps the conversation's updated_at.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns the most recent limit messages in chronological order.
	// A limit of zero returns all messages.
	ListMessages(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error)

	// UsageSince sums token usage and counts user messages for an identity since a time.
	UsageSince(ctx context.Context, identity domain.Identity, since time.Time) (domain.Usage, error)
}

// ChatbotStore persists chatbot configuration.
type ChatbotStore interface {
	// SaveChatbot inserts or updates a chatbot. A zero ID is assigned on insert.
	SaveChatbot(ctx context.Context, bot *domain.Chatbot) error

	// GetChatbot retrieves a chatbot by ID.
	GetChatbot(ctx context.Context, id int64) (*domain.Chatbot, error)

	// ListChatbots returns all chatbots.
	ListChatbots(ctx context.Context) ([]domain.Chatbot, error)
}
