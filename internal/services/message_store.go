package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"plainchat/internal/cache"
	"plainchat/internal/database"
	"plainchat/internal/metrics"
	"plainchat/internal/models"
	"plainchat/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessagesTTL bounds a populated room list. Appends do not refresh it.
const MessagesTTL = 5 * 24 * time.Hour

// MessageStore keeps room history in the database and mirrors it into a
// most-recent-first list in the cache.
type MessageStore struct {
	db    database.MessageRepository
	cache cache.Cache
}

func NewMessageStore(db database.MessageRepository, c cache.Cache) *MessageStore {
	return &MessageStore{db: db, cache: c}
}

// save inserts the durable row. The returned message carries the assigned id
// and timestamp.
func (s *MessageStore) save(ctx context.Context, nm models.NewMessage) (*models.Message, error) {
	return s.db.InsertMessage(ctx, nm)
}

// push prepends msg to its room list, whether or not the list exists.
func (s *MessageStore) push(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return s.cache.LPush(ctx, cache.MessagesKey(msg.RoomID), string(data))
}

// Append saves nm, hands the stored message to announce (if set) and then
// pushes it to the room list. A failed push is logged; the durable row stands
// either way. An announce error skips the push.
func (s *MessageStore) Append(ctx context.Context, nm models.NewMessage, announce func(*models.Message) error) (*models.Message, error) {
	msg, err := s.save(ctx, nm)
	if err != nil {
		return nil, err
	}
	if announce != nil {
		if err := announce(msg); err != nil {
			return msg, err
		}
	}
	if err := s.push(ctx, msg); err != nil {
		logger.L().Warn("failed to cache message", zap.Stringer("room", msg.RoomID), zap.Error(err))
	}
	return msg, nil
}

// List returns room history oldest first, from the cache when warm and from
// the database otherwise.
func (s *MessageStore) List(ctx context.Context, roomID uuid.UUID) ([]*models.Message, error) {
	key := cache.MessagesKey(roomID)

	cached, err := s.cached(ctx, key)
	switch {
	case err != nil:
		logger.L().Warn("message cache read failed", zap.String("key", key), zap.Error(err))
	case len(cached) > 0:
		metrics.MessageCacheTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.MessageCacheTotal.WithLabelValues("miss").Inc()

	msgs, err := s.db.ListMessages(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if err := s.populate(ctx, key, msgs); err != nil {
		logger.L().Warn("message cache populate failed", zap.String("key", key), zap.Error(err))
	}
	return msgs, nil
}

// Invalidate drops the room list.
func (s *MessageStore) Invalidate(ctx context.Context, roomID uuid.UUID) error {
	return s.cache.Del(ctx, cache.MessagesKey(roomID))
}

func (s *MessageStore) cached(ctx context.Context, key string) ([]*models.Message, error) {
	vals, err := s.cache.LRange(ctx, key)
	if err != nil {
		return nil, err
	}

	msgs := make([]*models.Message, len(vals))
	for i, v := range vals {
		var m models.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("failed to decode cached message: %w", err)
		}
		// list head is the newest
		msgs[len(vals)-1-i] = &m
	}
	// concurrent writers can push in a different order than they inserted
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Date.Before(msgs[j].Date) })
	return msgs, nil
}

func (s *MessageStore) populate(ctx context.Context, key string, msgs []*models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	vals := make([]string, len(msgs))
	for i, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
		vals[i] = string(data)
	}

	done, err := s.cache.PopulateList(ctx, key, vals, MessagesTTL)
	if err != nil {
		return err
	}
	if done {
		metrics.MessageCacheTotal.WithLabelValues("populate").Inc()
	}
	return nil
}
