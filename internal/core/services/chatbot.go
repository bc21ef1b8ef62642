package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/core/ports/driving"
	"github.com/custodia-labs/ragline/internal/logger"
)

// Ensure ChatbotService implements the interface.
var _ driving.ChatbotService = (*ChatbotService)(nil)

// ChatbotService manages chatbot definitions.
type ChatbotService struct {
	store driven.ChatbotStore
}

// NewChatbotService creates a new chatbot service.
func NewChatbotService(store driven.ChatbotStore) *ChatbotService {
	return &ChatbotService{store: store}
}

// Save creates or updates a chatbot.
func (s *ChatbotService) Save(ctx context.Context, bot *domain.Chatbot) error {
	if bot == nil {
		return fmt.Errorf("chatbot is nil: %w", domain.ErrInvalidInput)
	}
	bot.Name = strings.TrimSpace(bot.Name)
	if bot.Name == "" {
		return fmt.Errorf("chatbot name is required: %w", domain.ErrInvalidInput)
	}
	if bot.MaxMessages < 0 || bot.MaxTokens < 0 || bot.Temperature < 0 {
		return fmt.Errorf("chatbot %q has negative limits: %w", bot.Name, domain.ErrInvalidInput)
	}
	return s.store.SaveChatbot(ctx, bot)
}

// Get retrieves a chatbot by ID.
func (s *ChatbotService) Get(ctx context.Context, id int64) (*domain.Chatbot, error) {
	return s.store.GetChatbot(ctx, id)
}

// List returns all chatbots.
func (s *ChatbotService) List(ctx context.Context) ([]domain.Chatbot, error) {
	return s.store.ListChatbots(ctx)
}

// Import saves bots, updating existing chatbots with the same name.
// It returns the number created and updated.
func (s *ChatbotService) Import(ctx context.Context, bots []domain.Chatbot) (created, updated int, err error) {
	existing, err := s.store.ListChatbots(ctx)
	if err != nil {
		return 0, 0, err
	}
	byName := make(map[string]int64, len(existing))
	for _, b := range existing {
		byName[b.Name] = b.ID
	}

	for i := range bots {
		bot := bots[i]
		bot.ID = byName[strings.TrimSpace(bot.Name)]
		isNew := bot.ID == 0
		if err := s.Save(ctx, &bot); err != nil {
			return created, updated, fmt.Errorf("import chatbot %q: %w", bot.Name, err)
		}
		if isNew {
			created++
			logger.Info("Created chatbot %q (id %d)", bot.Name, bot.ID)
		} else {
			updated++
			logger.Info("Updated chatbot %q (id %d)", bot.Name, bot.ID)
		}
		byName[bot.Name] = bot.ID
	}
	return created, updated, nil
}
