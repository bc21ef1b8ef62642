package services

import (
	"context"
	"strconv"
	"time"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/logger"
)

// ConversationHistory is a cached sliding window of recent turns over the
// durable conversation store. The cached window is read first and treated
// as current.
type ConversationHistory struct {
	store    driven.ConversationStore
	cache    driven.Cache
	ttl      time.Duration
	maxTurns int
}

// NewConversationHistory creates a history window holding maxTurns user and
// assistant pairs.
func NewConversationHistory(store driven.ConversationStore, cache driven.Cache, maxTurns int, ttl time.Duration) *ConversationHistory {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &ConversationHistory{store: store, cache: cache, ttl: ttl, maxTurns: maxTurns}
}

// WindowSize is the number of messages kept, counting both roles.
func (h *ConversationHistory) WindowSize() int {
	return h.maxTurns * 2
}

// Recent returns up to limit of the most recent messages, oldest first.
// A limit of zero returns the whole window.
func (h *ConversationHistory) Recent(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	window, err := h.window(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(window) > limit {
		window = window[len(window)-limit:]
	}
	return window, nil
}

// Append persists msg and adds it to the cached window, evicting the oldest
// messages beyond the window size.
func (h *ConversationHistory) Append(ctx context.Context, msg *domain.Message) error {
	window, err := h.window(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	if err := h.store.AppendMessage(ctx, msg); err != nil {
		return &domain.StorageError{Op: "append message", Err: err}
	}

	window = append(window, *msg)
	if len(window) > h.WindowSize() {
		window = window[len(window)-h.WindowSize():]
	}
	cacheSetJSON(ctx, h.cache, driven.CacheGroupHistory, historyKey(msg.ConversationID), window, h.ttl)
	return nil
}

// Clear drops the cached window. The durable messages are untouched.
func (h *ConversationHistory) Clear(ctx context.Context, conversationID int64) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(ctx, driven.CacheGroupHistory, historyKey(conversationID)); err != nil {
		logger.Warn("clear history %d: %v", conversationID, err)
	}
}

func (h *ConversationHistory) window(ctx context.Context, conversationID int64) ([]domain.Message, error) {
	var window []domain.Message
	if cacheGetJSON(ctx, h.cache, driven.CacheGroupHistory, historyKey(conversationID), &window) {
		return window, nil
	}
	window, err := h.store.ListMessages(ctx, conversationID, h.WindowSize())
	if err != nil {
		return nil, &domain.StorageError{Op: "list messages", Err: err}
	}
	if window == nil {
		window = []domain.Message{}
	}
	return window, nil
}

func historyKey(conversationID int64) string {
	return strconv.FormatInt(conversationID, 10)
}
