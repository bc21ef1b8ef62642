package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/core/ports/driving"
	"github.com/custodia-labs/ragline/internal/logger"
)

// Ensure ChatService implements the interface.
var _ driving.ChatService = (*ChatService)(nil)

// Fallback prompt text used when no PromptStore is set.
const (
	defaultSystemPrompt = "{persona}\n\nYou answer questions for visitors of {site_name}. Keep a {tone} tone.\n\n" +
		"Answer using only the context below. If the context does not contain the answer, say that you do not know.\n\n" +
		"Context:\n{context}"
	defaultGreeting = "Hello! Welcome to {site_name}. How can I help you today?"
	defaultFallback = "I'm sorry, I couldn't find anything about that. Could you rephrase the question?"
	defaultPersona  = "You are a helpful assistant."
	defaultTone     = "friendly and professional"
	defaultSiteName = "this site"

	rejectedMessage = "Your message contains content that is not allowed. Please rephrase and try again."
)

// maxGreetingWords is the longest message still treated as a bare greeting.
const maxGreetingWords = 3

var greetingWords = map[string]bool{
	"hi": true, "hello": true, "hey": true, "hiya": true, "howdy": true, "greetings": true,
	"yo": true, "hola": true, "bonjour": true, "morning": true, "afternoon": true, "evening": true,
	"good": true, "there": true, "thanks": true, "thank": true, "you": true, "cheers": true,
}

// ChatService answers messages grounded in retrieved context.
type ChatService struct {
	llm       driven.LLMProvider
	retriever driving.RetrievalService
	limiter   *RateLimiter
	convs     driven.ConversationStore
	bots      driven.ChatbotStore
	history   *ConversationHistory
	prompts   driven.PromptStore
	settings  domain.ChatSettings
	llmCfg    domain.LLMSettings
	banned    []bannedKeyword
	now       func() time.Time
}

type bannedKeyword struct {
	word    string
	pattern *regexp.Regexp
}

// NewChatService creates the chat pipeline. llm may be nil, in which case
// answers that need the model fail with domain.ErrLLMUnavailable.
func NewChatService(
	llm driven.LLMProvider,
	retriever driving.RetrievalService,
	limiter *RateLimiter,
	convs driven.ConversationStore,
	bots driven.ChatbotStore,
	history *ConversationHistory,
	settings domain.ChatSettings,
	llmCfg domain.LLMSettings,
) *ChatService {
	s := &ChatService{
		llm:       llm,
		retriever: retriever,
		limiter:   limiter,
		convs:     convs,
		bots:      bots,
		history:   history,
		settings:  settings,
		llmCfg:    llmCfg,
		now:       time.Now,
	}
	for _, word := range settings.BannedKeywords {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		s.banned = append(s.banned, bannedKeyword{
			word:    word,
			pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`),
		})
	}
	return s
}

// SetPromptStore sets the prompt store for customisable templates.
func (s *ChatService) SetPromptStore(store driven.PromptStore) {
	s.prompts = store
}

// GenerateResponse answers one message.
func (s *ChatService) GenerateResponse(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return s.respond(ctx, req, nil)
}

// StreamResponse answers one message, passing fragments to onChunk as the
// model produces them. The assistant turn is stored once the stream ends.
func (s *ChatService) StreamResponse(
	ctx context.Context, req domain.ChatRequest, onChunk func(string) error,
) (*domain.ChatResponse, error) {
	if onChunk == nil {
		onChunk = func(string) error { return nil }
	}
	return s.respond(ctx, req, onChunk)
}

func (s *ChatService) respond(
	ctx context.Context, req domain.ChatRequest, onChunk func(string) error,
) (*domain.ChatResponse, error) {
	start := s.now()
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("message is empty: %w", domain.ErrInvalidInput)
	}

	if word, ok := s.bannedWord(message); ok {
		logger.Warn("Rejected message containing banned keyword %q", word)
		return nil, &domain.ContentRejectedError{Keyword: word, Message: rejectedMessage}
	}

	if err := s.checkLimits(ctx, req.Identity); err != nil {
		return nil, err
	}

	bot, err := s.chatbot(ctx, req.ChatbotID)
	if err != nil {
		return nil, err
	}
	conv, err := s.conversation(ctx, req, bot, message)
	if err != nil {
		return nil, err
	}

	resp := &domain.ChatResponse{ConversationID: conv.ID, Context: []domain.ContextResult{}}

	if isGreeting(message) {
		resp.Response = s.render(s.greeting(bot), bot, "")
		resp.Metadata.Greeting = true
		return s.finishCanned(ctx, conv.ID, message, resp, start, onChunk)
	}

	history, err := s.history.Recent(ctx, conv.ID, s.historyLimit(bot))
	if err != nil {
		return nil, &domain.ResponseError{Err: err}
	}

	results, err := s.retriever.FindContext(ctx, message, bot.ID, domain.ContextOptions{})
	if err != nil {
		return nil, &domain.ResponseError{Err: err}
	}
	if len(results) == 0 {
		logger.Debug("No context found, returning fallback")
		resp.Response = s.render(s.fallback(bot), bot, "")
		resp.Metadata.Fallback = true
		return s.finishCanned(ctx, conv.ID, message, resp, start, onChunk)
	}
	resp.Context = results

	if s.llm == nil {
		return nil, &domain.ResponseError{Err: domain.ErrLLMUnavailable}
	}

	messages := make([]driven.ChatMessage, 0, len(history)+2)
	messages = append(messages, driven.ChatMessage{
		Role:    string(domain.RoleSystem),
		Content: s.render(s.systemTemplate(), bot, FormatContext(results)),
	})
	for _, m := range history {
		if m.Role == domain.RoleUser || m.Role == domain.RoleAssistant {
			messages = append(messages, driven.ChatMessage{Role: string(m.Role), Content: m.Content})
		}
	}
	messages = append(messages, driven.ChatMessage{Role: string(domain.RoleUser), Content: message})

	if err := s.appendTurn(ctx, conv.ID, domain.RoleUser, message, domain.MessageMetadata{}); err != nil {
		return nil, &domain.ResponseError{Err: err}
	}

	opts := s.completionOptions(bot)
	var completion *driven.Completion
	if onChunk != nil {
		completion, err = s.llm.Stream(ctx, messages, opts, onChunk)
	} else {
		completion, err = s.llm.Complete(ctx, messages, opts)
	}
	if err != nil {
		logger.Error("LLM completion failed: %v", err)
		return nil, &domain.ResponseError{Err: err}
	}

	model := completion.Model
	if model == "" {
		model = opts.Model
	}
	resp.Response = completion.Content
	resp.Metadata.PromptTokens = completion.Usage.PromptTokens
	resp.Metadata.CompletionTokens = completion.Usage.CompletionTokens
	resp.Metadata.TotalTokens = completion.Usage.TotalTokens
	resp.Metadata.Model = model
	resp.Metadata.ChunkCount = len(results)

	meta := domain.MessageMetadata{
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
		Model:            model,
	}
	if err := s.appendTurn(ctx, conv.ID, domain.RoleAssistant, completion.Content, meta); err != nil {
		logger.Error("Storing assistant turn for conversation %d: %v", conv.ID, err)
	}

	resp.Metadata.ProcessingTime = s.now().Sub(start).Seconds()
	return resp, nil
}

// finishCanned stores a greeting or fallback exchange without calling the model.
func (s *ChatService) finishCanned(
	ctx context.Context,
	conversationID int64,
	message string,
	resp *domain.ChatResponse,
	start time.Time,
	onChunk func(string) error,
) (*domain.ChatResponse, error) {
	if err := s.appendTurn(ctx, conversationID, domain.RoleUser, message, domain.MessageMetadata{}); err != nil {
		return nil, &domain.ResponseError{Err: err}
	}
	if onChunk != nil {
		if err := onChunk(resp.Response); err != nil {
			return nil, &domain.ResponseError{Err: err}
		}
	}
	meta := domain.MessageMetadata{Greeting: resp.Metadata.Greeting, Fallback: resp.Metadata.Fallback}
	if err := s.appendTurn(ctx, conversationID, domain.RoleAssistant, resp.Response, meta); err != nil {
		logger.Error("Storing assistant turn for conversation %d: %v", conversationID, err)
	}
	resp.Metadata.ProcessingTime = s.now().Sub(start).Seconds()
	return resp, nil
}

func (s *ChatService) bannedWord(message string) (string, bool) {
	for _, b := range s.banned {
		if b.pattern.MatchString(message) {
			return b.word, true
		}
	}
	return "", false
}

func (s *ChatService) checkLimits(ctx context.Context, identity domain.Identity) error {
	if s.limiter == nil || identity.IsZero() {
		return nil
	}
	status, err := s.limiter.CheckUserLimits(ctx, identity)
	if err != nil {
		return err
	}
	if status != nil {
		logger.Warn("Rate limited (%s): %d/%d", status.Reason, status.Usage, status.Limit)
		return &domain.RateLimitedError{Status: *status}
	}
	return nil
}

// chatbot loads the chatbot, or a default one when id is zero.
func (s *ChatService) chatbot(ctx context.Context, id int64) (*domain.Chatbot, error) {
	if id == 0 || s.bots == nil {
		return &domain.Chatbot{Name: "Assistant"}, nil
	}
	bot, err := s.bots.GetChatbot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("chatbot %d: %w", id, err)
	}
	return bot, nil
}

// conversation returns the requested conversation or starts a new one.
func (s *ChatService) conversation(
	ctx context.Context, req domain.ChatRequest, bot *domain.Chatbot, message string,
) (*domain.Conversation, error) {
	if req.ConversationID != 0 {
		conv, err := s.convs.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("conversation %d: %w", req.ConversationID, err)
		}
		if !ownsConversation(req.Identity, conv) {
			logger.Warn("Conversation %d requested by an identity that does not own it", req.ConversationID)
			return nil, fmt.Errorf("conversation %d: %w", req.ConversationID, domain.ErrNotFound)
		}
		return conv, nil
	}
	conv := &domain.Conversation{
		ChatbotID: bot.ID,
		UserID:    req.Identity.UserID,
		GuestHash: req.Identity.GuestHash,
		Title:     conversationTitle(message),
	}
	if err := s.convs.CreateConversation(ctx, conv); err != nil {
		return nil, &domain.StorageError{Op: "create conversation", Err: err}
	}
	return conv, nil
}

// ownsConversation matches the caller against the conversation owner using
// the same key usage is counted by: the user ID when set, else the guest hash.
func ownsConversation(identity domain.Identity, conv *domain.Conversation) bool {
	if identity.UserID != 0 {
		return conv.UserID == identity.UserID
	}
	return conv.UserID == 0 && conv.GuestHash == identity.GuestHash
}

func (s *ChatService) appendTurn(
	ctx context.Context, conversationID int64, role domain.Role, content string, meta domain.MessageMetadata,
) error {
	return s.history.Append(ctx, &domain.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       meta,
		CreatedAt:      s.now(),
	})
}

// historyLimit caps history by the chatbot's max message count.
func (s *ChatService) historyLimit(bot *domain.Chatbot) int {
	limit := s.history.WindowSize()
	if bot.MaxMessages > 0 && bot.MaxMessages < limit {
		limit = bot.MaxMessages
	}
	return limit
}

func (s *ChatService) completionOptions(bot *domain.Chatbot) driven.CompletionOptions {
	opts := driven.CompletionOptions{
		Model:       s.llmCfg.Model,
		MaxTokens:   s.llmCfg.MaxTokens,
		Temperature: s.llmCfg.Temperature,
	}
	if bot.Model != "" {
		opts.Model = bot.Model
	}
	if bot.MaxTokens > 0 {
		opts.MaxTokens = bot.MaxTokens
	}
	if bot.Temperature > 0 {
		opts.Temperature = bot.Temperature
	}
	return opts
}

func (s *ChatService) loadPrompt(name, fallback string) string {
	if s.prompts == nil {
		return fallback
	}
	prompt, err := s.prompts.Load(name)
	if err != nil || strings.TrimSpace(prompt) == "" {
		return fallback
	}
	return prompt
}

func (s *ChatService) systemTemplate() string {
	return s.loadPrompt(driven.PromptChatSystem, defaultSystemPrompt)
}

func (s *ChatService) greeting(bot *domain.Chatbot) string {
	if bot.GreetingMessage != "" {
		return bot.GreetingMessage
	}
	return s.loadPrompt(driven.PromptGreeting, defaultGreeting)
}

func (s *ChatService) fallback(bot *domain.Chatbot) string {
	if bot.FallbackMessage != "" {
		return bot.FallbackMessage
	}
	return s.loadPrompt(driven.PromptFallback, defaultFallback)
}

// render substitutes the brace placeholders of a prompt template.
func (s *ChatService) render(template string, bot *domain.Chatbot, contextBlock string) string {
	persona := bot.Persona
	if persona == "" {
		persona = defaultPersona
	}
	tone := bot.Tone
	if tone == "" {
		tone = defaultTone
	}
	site := s.settings.SiteName
	if site == "" {
		site = defaultSiteName
	}
	return strings.NewReplacer(
		"{persona}", persona,
		"{site_name}", site,
		"{tone}", tone,
		"{context}", contextBlock,
	).Replace(template)
}

// isGreeting reports whether message is only a short greeting.
func isGreeting(message string) bool {
	words := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(words) == 0 || len(words) > maxGreetingWords {
		return false
	}
	for _, w := range words {
		if !greetingWords[w] {
			return false
		}
	}
	return true
}

func conversationTitle(message string) string {
	const maxTitle = 60
	runes := []rune(message)
	if len(runes) <= maxTitle {
		return message
	}
	return strings.TrimSpace(string(runes[:maxTitle])) + "..."
}

// ListConversations returns conversations for an identity.
func (s *ChatService) ListConversations(ctx context.Context, identity domain.Identity) ([]domain.Conversation, error) {
	return s.convs.ListConversations(ctx, identity)
}

// History returns the recent turns of a conversation.
func (s *ChatService) History(ctx context.Context, conversationID int64) ([]domain.Message, error) {
	if _, err := s.convs.GetConversation(ctx, conversationID); err != nil {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, err)
	}
	return s.history.Recent(ctx, conversationID, 0)
}

// SetFavorite flags a conversation as favorite or not.
func (s *ChatService) SetFavorite(ctx context.Context, conversationID int64, favorite bool) error {
	return s.updateConversation(ctx, conversationID, func(c *domain.Conversation) { c.Favorite = favorite })
}

// SetArchived flags a conversation as archived or not.
func (s *ChatService) SetArchived(ctx context.Context, conversationID int64, archived bool) error {
	return s.updateConversation(ctx, conversationID, func(c *domain.Conversation) { c.Archived = archived })
}

func (s *ChatService) updateConversation(ctx context.Context, id int64, apply func(*domain.Conversation)) error {
	conv, err := s.convs.GetConversation(ctx, id)
	if err != nil {
		return fmt.Errorf("conversation %d: %w", id, err)
	}
	apply(conv)
	return s.convs.UpdateConversation(ctx, conv)
}

// DeleteConversation removes a conversation and clears its cached history.
func (s *ChatService) DeleteConversation(ctx context.Context, conversationID int64) error {
	if err := s.convs.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("delete conversation %d: %w", conversationID, err)
	}
	s.history.Clear(ctx, conversationID)
	return nil
}
