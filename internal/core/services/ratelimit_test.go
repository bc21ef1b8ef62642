package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memstore "github.com/custodia-labs/ragline/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragline/internal/core/domain"
)

// seedUsage records one user and one assistant message per token amount.
func seedUsage(t *testing.T, store *memstore.ConversationStore, identity domain.Identity, tokens ...int) {
	t.Helper()
	ctx := context.Background()
	conv := &domain.Conversation{UserID: identity.UserID, GuestHash: identity.GuestHash}
	require.NoError(t, store.CreateConversation(ctx, conv))
	for _, n := range tokens {
		require.NoError(t, store.AppendMessage(ctx, &domain.Message{ConversationID: conv.ID, Role: domain.RoleUser, Content: "q"}))
		require.NoError(t, store.AppendMessage(ctx, &domain.Message{
			ConversationID: conv.ID,
			Role:           domain.RoleAssistant,
			Content:        "a",
			Metadata:       domain.MessageMetadata{TotalTokens: n},
		}))
	}
}

func TestRateLimiter_TokenLimit(t *testing.T) {
	store := memstore.NewConversationStore()
	guest := domain.Identity{GuestHash: "guest-1"}
	limiter := NewRateLimiter(store, domain.RateLimitSettings{TokenLimit: 100})

	seedUsage(t, store, guest, 60)
	status, err := limiter.CheckUserLimits(context.Background(), guest)
	require.NoError(t, err)
	assert.Nil(t, status)

	seedUsage(t, store, guest, 50)
	status, err = limiter.CheckUserLimits(context.Background(), guest)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, domain.LimitTokens, status.Reason)
	assert.Equal(t, 110, status.Usage)
	assert.Equal(t, 100, status.Limit)
	assert.Contains(t, status.Message, "100 tokens")
	assert.True(t, status.ResetTime.After(time.Now()))
}

func TestRateLimiter_MessageLimit(t *testing.T) {
	store := memstore.NewConversationStore()
	user := domain.Identity{UserID: 9}
	limiter := NewRateLimiter(store, domain.RateLimitSettings{MessageLimit: 2})

	seedUsage(t, store, user, 1)
	status, err := limiter.CheckUserLimits(context.Background(), user)
	require.NoError(t, err)
	assert.Nil(t, status)

	seedUsage(t, store, user, 1)
	status, err = limiter.CheckUserLimits(context.Background(), user)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, domain.LimitMessages, status.Reason)
	assert.Equal(t, 2, status.Usage)
}

func TestRateLimiter_UsageIsPerIdentity(t *testing.T) {
	store := memstore.NewConversationStore()
	limiter := NewRateLimiter(store, domain.RateLimitSettings{TokenLimit: 100})

	seedUsage(t, store, domain.Identity{GuestHash: "heavy"}, 500)
	status, err := limiter.CheckUserLimits(context.Background(), domain.Identity{GuestHash: "light"})
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestRateLimiter_Unlimited(t *testing.T) {
	limiter := NewRateLimiter(failingUsageStore{}, domain.RateLimitSettings{})
	status, err := limiter.CheckUserLimits(context.Background(), domain.Identity{})
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestRateLimiter_EmptyIdentity(t *testing.T) {
	limiter := NewRateLimiter(memstore.NewConversationStore(), domain.RateLimitSettings{TokenLimit: 10})
	_, err := limiter.CheckUserLimits(context.Background(), domain.Identity{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRateLimiter_StoreFailure(t *testing.T) {
	guest := domain.Identity{GuestHash: "guest"}

	t.Run("fail open", func(t *testing.T) {
		limiter := NewRateLimiter(failingUsageStore{}, domain.RateLimitSettings{TokenLimit: 10, FailOpen: true})
		status, err := limiter.CheckUserLimits(context.Background(), guest)
		require.NoError(t, err)
		assert.Nil(t, status)
	})

	t.Run("fail closed", func(t *testing.T) {
		limiter := NewRateLimiter(failingUsageStore{}, domain.RateLimitSettings{TokenLimit: 10})
		status, err := limiter.CheckUserLimits(context.Background(), guest)
		require.NoError(t, err)
		require.NotNil(t, status)
		assert.Equal(t, domain.LimitUnavailable, status.Reason)
		assert.NotEmpty(t, status.Message)
	})
}

func TestRateLimiter_IdentityForIP(t *testing.T) {
	limiter := NewRateLimiter(nil, domain.RateLimitSettings{IPSalt: "pepper"})

	a := limiter.IdentityForIP("203.0.113.7")
	assert.Len(t, a.GuestHash, 64)
	assert.Zero(t, a.UserID)
	assert.Equal(t, a, limiter.IdentityForIP("203.0.113.7"))
	assert.NotEqual(t, a, limiter.IdentityForIP("203.0.113.8"))

	other := NewRateLimiter(nil, domain.RateLimitSettings{IPSalt: "salt"})
	assert.NotEqual(t, a, other.IdentityForIP("203.0.113.7"), "salt changes the hash")
}

func TestNextMidnight(t *testing.T) {
	loc := time.FixedZone("test", 2*60*60)
	got := nextMidnight(time.Date(2024, 12, 31, 22, 15, 0, 0, loc))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, loc), got)
}
