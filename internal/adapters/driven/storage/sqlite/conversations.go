package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// ==================== Conversation Store ====================

// conversationStore implements driven.ConversationStore.
type conversationStore struct {
	store *Store
}

var _ driven.ConversationStore = (*conversationStore)(nil)

const conversationColumns = `id, chatbot_id, user_id, guest_hash, title, favorite, archived, created_at, updated_at`

// CreateConversation inserts a conversation and assigns its ID.
func (s *conversationStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	if conv == nil {
		return domain.ErrInvalidInput
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO conversations (chatbot_id, user_id, guest_hash, title, favorite, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, conv.ChatbotID, conv.UserID, conv.GuestHash, conv.Title,
		boolToInt(conv.Favorite), boolToInt(conv.Archived),
		formatTime(conv.CreatedAt), formatTime(conv.UpdatedAt))
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading conversation id: %w", err)
	}
	conv.ID = id
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *conversationStore) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return conv, err
}

// ListConversations returns conversations for an identity, most recently updated first.
func (s *conversationStore) ListConversations(ctx context.Context, identity domain.Identity) ([]domain.Conversation, error) {
	if identity.IsZero() {
		return nil, nil
	}
	column, value := identityColumn(identity)
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE `+column+` = ? ORDER BY updated_at DESC, id DESC`,
		value)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []domain.Conversation //nolint:prealloc // size unknown from query
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return convs, nil
}

// UpdateConversation saves title, favorite and archived flags.
func (s *conversationStore) UpdateConversation(ctx context.Context, conv *domain.Conversation) error {
	if conv == nil || conv.ID == 0 {
		return domain.ErrInvalidInput
	}
	conv.UpdatedAt = time.Now().UTC()
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE conversations SET title = ?, favorite = ?, archived = ?, updated_at = ?
		WHERE id = ?
	`, conv.Title, boolToInt(conv.Favorite), boolToInt(conv.Archived), formatTime(conv.UpdatedAt), conv.ID)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteConversation removes a conversation; messages cascade.
func (s *conversationStore) DeleteConversation(ctx context.Context, id int64) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

// AppendMessage inserts a message and bumps the conversation's updated_at.
func (s *conversationStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if msg == nil || msg.ConversationID == 0 {
		return domain.ErrInvalidInput
	}
	metadataJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling message metadata: %w", err)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, total_tokens, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ConversationID, string(msg.Role), msg.Content, msg.Metadata.TotalTokens,
		string(metadataJSON), formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	if msg.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading message id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?",
		formatTime(msg.CreatedAt), msg.ConversationID); err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListMessages returns the most recent limit messages in chronological order.
func (s *conversationStore) ListMessages(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, metadata, created_at FROM (
			SELECT id, conversation_id, role, content, metadata, created_at
			FROM messages WHERE conversation_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message //nolint:prealloc // size unknown from query
	for rows.Next() {
		var msg domain.Message
		var role, metadataJSON, createdAt string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &metadataJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshalling message metadata: %w", err)
			}
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}

// UsageSince sums token usage and counts user messages for an identity since a time.
func (s *conversationStore) UsageSince(ctx context.Context, identity domain.Identity, since time.Time) (domain.Usage, error) {
	var usage domain.Usage
	if identity.IsZero() {
		return usage, nil
	}
	column, value := identityColumn(identity)
	err := s.store.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(m.total_tokens), 0),
			COALESCE(SUM(CASE WHEN m.role = 'user' THEN 1 ELSE 0 END), 0)
		FROM messages m JOIN conversations c ON c.id = m.conversation_id
		WHERE c.`+column+` = ? AND m.created_at >= ?
	`, value, formatTime(since)).Scan(&usage.Tokens, &usage.Messages)
	if err != nil {
		return usage, fmt.Errorf("reading usage: %w", err)
	}
	return usage, nil
}

// identityColumn picks the conversation column that identifies the caller.
func identityColumn(identity domain.Identity) (string, any) {
	if identity.UserID != 0 {
		return "user_id", identity.UserID
	}
	return "guest_hash", identity.GuestHash
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var conv domain.Conversation
	var favorite, archived int
	var createdAt, updatedAt string
	if err := row.Scan(&conv.ID, &conv.ChatbotID, &conv.UserID, &conv.GuestHash, &conv.Title,
		&favorite, &archived, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	conv.Favorite = favorite == 1
	conv.Archived = archived == 1
	conv.CreatedAt = parseTime(createdAt)
	conv.UpdatedAt = parseTime(updatedAt)
	return &conv, nil
}

// ==================== Chatbot Store ====================

// chatbotStore implements driven.ChatbotStore.
type chatbotStore struct {
	store *Store
}

var _ driven.ChatbotStore = (*chatbotStore)(nil)

const chatbotColumns = `id, name, persona, tone, greeting_message, fallback_message, max_messages,
	model, temperature, max_tokens, created_at, updated_at`

// SaveChatbot inserts or updates a chatbot. A zero ID is assigned on insert.
func (s *chatbotStore) SaveChatbot(ctx context.Context, bot *domain.Chatbot) error {
	if bot == nil || bot.Name == "" {
		return domain.ErrInvalidInput
	}
	now := time.Now().UTC()
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}
	bot.UpdatedAt = now

	err := s.store.db.QueryRowContext(ctx, `
		INSERT INTO chatbots (id, name, persona, tone, greeting_message, fallback_message, max_messages,
			model, temperature, max_tokens, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			persona = excluded.persona,
			tone = excluded.tone,
			greeting_message = excluded.greeting_message,
			fallback_message = excluded.fallback_message,
			max_messages = excluded.max_messages,
			model = excluded.model,
			temperature = excluded.temperature,
			max_tokens = excluded.max_tokens,
			updated_at = excluded.updated_at
		RETURNING id
	`, nullID(bot.ID), bot.Name, bot.Persona, bot.Tone, bot.GreetingMessage, bot.FallbackMessage,
		bot.MaxMessages, bot.Model, bot.Temperature, bot.MaxTokens,
		formatTime(bot.CreatedAt), formatTime(bot.UpdatedAt)).Scan(&bot.ID)
	if err != nil {
		return fmt.Errorf("saving chatbot: %w", err)
	}
	return nil
}

// GetChatbot retrieves a chatbot by ID.
func (s *chatbotStore) GetChatbot(ctx context.Context, id int64) (*domain.Chatbot, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+chatbotColumns+` FROM chatbots WHERE id = ?`, id)
	bot, err := scanChatbot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return bot, err
}

// ListChatbots returns all chatbots.
func (s *chatbotStore) ListChatbots(ctx context.Context) ([]domain.Chatbot, error) {
	rows, err := s.store.db.QueryContext(ctx, `SELECT `+chatbotColumns+` FROM chatbots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying chatbots: %w", err)
	}
	defer rows.Close()

	var bots []domain.Chatbot //nolint:prealloc // size unknown from query
	for rows.Next() {
		bot, err := scanChatbot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, *bot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chatbots: %w", err)
	}
	return bots, nil
}

func scanChatbot(row rowScanner) (*domain.Chatbot, error) {
	var bot domain.Chatbot
	var createdAt, updatedAt string
	if err := row.Scan(&bot.ID, &bot.Name, &bot.Persona, &bot.Tone, &bot.GreetingMessage,
		&bot.FallbackMessage, &bot.MaxMessages, &bot.Model, &bot.Temperature, &bot.MaxTokens,
		&createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning chatbot: %w", err)
	}
	bot.CreatedAt = parseTime(createdAt)
	bot.UpdatedAt = parseTime(updatedAt)
	return &bot, nil
}
