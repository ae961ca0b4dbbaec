package services

import (
	"context"
	"testing"

	"plainchat/internal/cache"
	"plainchat/internal/database/dbtest"
	"plainchat/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db       *dbtest.DB
	mr       *miniredis.Miniredis
	cache    *cache.RedisCache
	presence *Presence
	messages *MessageStore
	rooms    *RoomService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })

	f := &fixture{db: dbtest.New(), mr: mr, cache: c}
	f.presence = NewPresence(c)
	f.messages = NewMessageStore(f.db, c)
	f.rooms = NewRoomService(f.db, f.messages, f.presence)
	return f
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := f.db.CreateUser(context.Background(), name, "x")
	require.NoError(t, err)
	return u
}

func (f *fixture) room(t *testing.T, name string, owner uuid.UUID) *models.Group {
	t.Helper()
	g, err := f.db.CreateGroup(context.Background(), name, owner)
	require.NoError(t, err)
	return g
}

func normal(room uuid.UUID, u *models.User, text string) models.NewMessage {
	id, name := u.ID, u.Username
	return models.NewMessage{RoomID: room, SenderID: &id, SenderName: &name, Content: text, Kind: models.KindNormal}
}
