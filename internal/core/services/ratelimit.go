package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/logger"
)

// usageWindow is the trailing window limits are measured over.
const usageWindow = 24 * time.Hour

// RateLimiter caps per-identity token and message usage over a rolling day.
type RateLimiter struct {
	store    driven.ConversationStore
	settings domain.RateLimitSettings
	now      func() time.Time
}

// NewRateLimiter creates a rate limiter over the conversation store.
func NewRateLimiter(store driven.ConversationStore, settings domain.RateLimitSettings) *RateLimiter {
	return &RateLimiter{store: store, settings: settings, now: time.Now}
}

// IdentityForIP returns the guest identity for an IP address.
func (l *RateLimiter) IdentityForIP(ip string) domain.Identity {
	sum := sha256.Sum256([]byte(l.settings.IPSalt + ip))
	return domain.Identity{GuestHash: hex.EncodeToString(sum[:])}
}

// CheckUserLimits returns nil when the identity may proceed, or the limit
// it reached. When usage cannot be read the policy decides: fail open
// allows the call, fail closed reports an unavailable limit.
func (l *RateLimiter) CheckUserLimits(ctx context.Context, identity domain.Identity) (*domain.LimitStatus, error) {
	if l.settings.TokenLimit <= 0 && l.settings.MessageLimit <= 0 {
		return nil, nil
	}
	if identity.IsZero() {
		return nil, fmt.Errorf("identity is empty: %w", domain.ErrInvalidInput)
	}

	now := l.now()
	reset := nextMidnight(now)

	usage, err := l.store.UsageSince(ctx, identity, now.Add(-usageWindow))
	if err != nil {
		if l.settings.FailOpen {
			logger.Warn("Rate limit check failed, allowing request: %v", err)
			return nil, nil
		}
		logger.Error("Rate limit check failed, rejecting request: %v", err)
		return &domain.LimitStatus{
			Reason:    domain.LimitUnavailable,
			Message:   "Usage limits cannot be checked right now. Please try again shortly.",
			ResetTime: now.Add(time.Minute),
		}, nil
	}

	if l.settings.TokenLimit > 0 && usage.Tokens >= l.settings.TokenLimit {
		return &domain.LimitStatus{
			Reason: domain.LimitTokens,
			Message: fmt.Sprintf("You have reached the daily limit of %d tokens. The limit resets at %s.",
				l.settings.TokenLimit, reset.Format("15:04")),
			Usage:     usage.Tokens,
			Limit:     l.settings.TokenLimit,
			ResetTime: reset,
		}, nil
	}
	if l.settings.MessageLimit > 0 && usage.Messages >= l.settings.MessageLimit {
		return &domain.LimitStatus{
			Reason: domain.LimitMessages,
			Message: fmt.Sprintf("You have reached the daily limit of %d messages. The limit resets at %s.",
				l.settings.MessageLimit, reset.Format("15:04")),
			Usage:     usage.Messages,
			Limit:     l.settings.MessageLimit,
			ResetTime: reset,
		}, nil
	}
	return nil, nil
}

// nextMidnight returns the start of the next calendar day in t's location.
func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
