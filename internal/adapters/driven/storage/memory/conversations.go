package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// Ensure the stores implement their interfaces.
var (
	_ driven.ConversationStore = (*ConversationStore)(nil)
	_ driven.ChatbotStore      = (*ChatbotStore)(nil)
)

// ConversationStore is an in-memory implementation of driven.ConversationStore.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[int64]domain.Conversation
	messages      map[int64][]domain.Message
	nextConvID    int64
	nextMsgID     int64
}

// NewConversationStore creates a new in-memory conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[int64]domain.Conversation),
		messages:      make(map[int64][]domain.Message),
	}
}

// CreateConversation inserts a conversation and assigns its ID.
func (s *ConversationStore) CreateConversation(_ context.Context, conv *domain.Conversation) error {
	if conv == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextConvID++
	conv.ID = s.nextConvID
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	s.conversations[conv.ID] = *conv
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *ConversationStore) GetConversation(_ context.Context, id int64) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &conv, nil
}

// ListConversations returns conversations for an identity, most recently updated first.
func (s *ConversationStore) ListConversations(_ context.Context, identity domain.Identity) ([]domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Conversation
	for _, conv := range s.conversations {
		if sameIdentity(conv.Identity(), identity) {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// UpdateConversation saves title, favorite and archived flags.
func (s *ConversationStore) UpdateConversation(_ context.Context, conv *domain.Conversation) error {
	if conv == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.conversations[conv.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Title = conv.Title
	stored.Favorite = conv.Favorite
	stored.Archived = conv.Archived
	stored.UpdatedAt = time.Now().UTC()
	s.conversations[conv.ID] = stored
	conv.UpdatedAt = stored.UpdatedAt
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (s *ConversationStore) DeleteConversation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

// AppendMessage inserts a message and bumps the conversation's updated_at.
func (s *ConversationStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	if msg == nil || msg.ConversationID == 0 {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return fmt.Errorf("appending message: conversation %d: %w", msg.ConversationID, domain.ErrNotFound)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.nextMsgID++
	msg.ID = s.nextMsgID
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)

	conv.UpdatedAt = time.Now().UTC()
	s.conversations[conv.ID] = conv
	return nil
}

// ListMessages returns the most recent limit messages in chronological order.
func (s *ConversationStore) ListMessages(_ context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.Message(nil), msgs...), nil
}

// UsageSince sums token usage and counts user messages for an identity since a time.
func (s *ConversationStore) UsageSince(_ context.Context, identity domain.Identity, since time.Time) (domain.Usage, error) {
	var usage domain.Usage
	if identity.IsZero() {
		return usage, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, conv := range s.conversations {
		if !sameIdentity(conv.Identity(), identity) {
			continue
		}
		for _, msg := range s.messages[id] {
			if msg.CreatedAt.Before(since) {
				continue
			}
			usage.Tokens += msg.Metadata.TotalTokens
			if msg.Role == domain.RoleUser {
				usage.Messages++
			}
		}
	}
	return usage, nil
}

// sameIdentity matches on user ID when set, otherwise on guest hash.
func sameIdentity(have, want domain.Identity) bool {
	if want.UserID != 0 {
		return have.UserID == want.UserID
	}
	return want.GuestHash != "" && have.GuestHash == want.GuestHash
}

// ChatbotStore is an in-memory implementation of driven.ChatbotStore.
type ChatbotStore struct {
	mu     sync.RWMutex
	bots   map[int64]domain.Chatbot
	nextID int64
}

// NewChatbotStore creates a new in-memory chatbot store.
func NewChatbotStore() *ChatbotStore {
	return &ChatbotStore{bots: make(map[int64]domain.Chatbot)}
}

// SaveChatbot inserts or updates a chatbot. A zero ID is assigned on insert.
func (s *ChatbotStore) SaveChatbot(_ context.Context, bot *domain.Chatbot) error {
	if bot == nil || bot.Name == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if bot.ID == 0 {
		s.nextID++
		bot.ID = s.nextID
	} else if bot.ID > s.nextID {
		s.nextID = bot.ID
	}
	if existing, ok := s.bots[bot.ID]; ok {
		bot.CreatedAt = existing.CreatedAt
	} else if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}
	bot.UpdatedAt = now
	s.bots[bot.ID] = *bot
	return nil
}

// GetChatbot retrieves a chatbot by ID.
func (s *ChatbotStore) GetChatbot(_ context.Context, id int64) (*domain.Chatbot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bot, ok := s.bots[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &bot, nil
}

// ListChatbots returns all chatbots ordered by ID.
func (s *ChatbotStore) ListChatbots(_ context.Context) ([]domain.Chatbot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Chatbot, 0, len(s.bots))
	for _, bot := range s.bots {
		out = append(out, bot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
