package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memcache "github.com/custodia-labs/ragline/internal/adapters/driven/cache/memory"
	memstore "github.com/custodia-labs/ragline/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragline/internal/core/domain"
)

func newConversation(t *testing.T, store *memstore.ConversationStore) int64 {
	t.Helper()
	conv := &domain.Conversation{GuestHash: "guest"}
	require.NoError(t, store.CreateConversation(context.Background(), conv))
	return conv.ID
}

func appendTurns(t *testing.T, h *ConversationHistory, conversationID int64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		require.NoError(t, h.Append(context.Background(), &domain.Message{
			ConversationID: conversationID,
			Role:           role,
			Content:        fmt.Sprintf("message %d", i),
		}))
	}
}

func contents(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestConversationHistory_WindowSize(t *testing.T) {
	assert.Equal(t, 20, NewConversationHistory(nil, nil, 0, 0).WindowSize())
	assert.Equal(t, 6, NewConversationHistory(nil, nil, 3, 0).WindowSize())
}

func TestConversationHistory_EvictsOldest(t *testing.T) {
	store := memstore.NewConversationStore()
	h := NewConversationHistory(store, memcache.New(), 2, time.Hour)
	id := newConversation(t, store)

	appendTurns(t, h, id, 6)

	window, err := h.Recent(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"message 2", "message 3", "message 4", "message 5"}, contents(window))

	window, err = h.Recent(context.Background(), id, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"message 4", "message 5"}, contents(window))

	all, err := store.ListMessages(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Len(t, all, 6, "durable history keeps every message")
}

func TestConversationHistory_ReadsCachedWindowFirst(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewConversationStore()
	h := NewConversationHistory(store, memcache.New(), 5, time.Hour)
	id := newConversation(t, store)
	appendTurns(t, h, id, 2)

	require.NoError(t, store.AppendMessage(ctx, &domain.Message{ConversationID: id, Role: domain.RoleUser, Content: "direct"}))

	window, err := h.Recent(ctx, id, 0)
	require.NoError(t, err)
	assert.Len(t, window, 2, "the cached window is served")

	h.Clear(ctx, id)
	window, err = h.Recent(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"message 0", "message 1", "direct"}, contents(window))
}

func TestConversationHistory_WithoutCache(t *testing.T) {
	store := memstore.NewConversationStore()
	h := NewConversationHistory(store, nil, 1, 0)
	id := newConversation(t, store)
	appendTurns(t, h, id, 3)

	window, err := h.Recent(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"message 1", "message 2"}, contents(window))
}

func TestConversationHistory_AppendToMissingConversation(t *testing.T) {
	store := memstore.NewConversationStore()
	h := NewConversationHistory(store, memcache.New(), 2, time.Hour)

	err := h.Append(context.Background(), &domain.Message{ConversationID: 42, Role: domain.RoleUser, Content: "hi"})
	var storageErr *domain.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
