package services

import (
	"context"

	"plainchat/internal/cache"
	"plainchat/pkg/logger"

	"go.uber.org/zap"
)

const onlineValue = "ON"

// Presence tracks who is online. A flag has no expiry: it stays until
// SetOffline runs, so a crash without the disconnect hook leaves it stale.
type Presence struct {
	cache cache.Cache
}

func NewPresence(c cache.Cache) *Presence {
	return &Presence{cache: c}
}

func (p *Presence) SetOnline(ctx context.Context, username string) error {
	return p.cache.Set(ctx, cache.PresenceKey(username), onlineValue, 0)
}

func (p *Presence) SetOffline(ctx context.Context, username string) error {
	return p.cache.Del(ctx, cache.PresenceKey(username))
}

// IsOnline reports false on any lookup failure.
func (p *Presence) IsOnline(ctx context.Context, username string) bool {
	ok, err := p.cache.Exists(ctx, cache.PresenceKey(username))
	if err != nil {
		logger.L().Debug("presence lookup failed", zap.String("user", username), zap.Error(err))
		return false
	}
	return ok
}
