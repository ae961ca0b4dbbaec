package services

import (
	"context"
	"strings"

	"plainchat/internal/apperr"
	"plainchat/internal/database"
	"plainchat/internal/models"
	"plainchat/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoomService implements group administration behind /api/group.
type RoomService struct {
	db       database.Database
	messages *MessageStore
	presence *Presence
}

func NewRoomService(db database.Database, messages *MessageStore, presence *Presence) *RoomService {
	return &RoomService{db: db, messages: messages, presence: presence}
}

func (s *RoomService) CreateRoom(ctx context.Context, ownerID uuid.UUID, req *models.GroupPayload) (*models.Group, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &apperr.InvalidInput{Msg: "group name is required"}
	}
	return s.db.CreateGroup(ctx, name, ownerID)
}

// ListUserRooms rejects callers whose account no longer exists.
func (s *RoomService) ListUserRooms(ctx context.Context, userID uuid.UUID) ([]*models.Group, error) {
	exists, err := s.db.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.ErrInvalidToken
	}
	return s.db.ListUserGroups(ctx, userID)
}

// DeleteRoom is admin only. It also drops the cached history.
func (s *RoomService) DeleteRoom(ctx context.Context, userID, roomID uuid.UUID) (*models.Group, error) {
	admin := models.RoleAdmin
	if err := s.require(ctx, userID, roomID, &admin); err != nil {
		return nil, err
	}

	group, err := s.db.DeleteGroup(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if err := s.messages.Invalidate(ctx, roomID); err != nil {
		logger.L().Warn("failed to drop room cache", zap.Stringer("room", roomID), zap.Error(err))
	}
	return group, nil
}

// GetRoomMembers lists the roster with live presence. Members only.
func (s *RoomService) GetRoomMembers(ctx context.Context, userID, roomID uuid.UUID) ([]*models.Member, error) {
	if err := s.require(ctx, userID, roomID, nil); err != nil {
		return nil, err
	}

	members, err := s.db.ListMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		m.Presence = s.presence.IsOnline(ctx, m.Username)
	}
	return members, nil
}

// GetRoomMessages returns the room history oldest first. Members only.
func (s *RoomService) GetRoomMessages(ctx context.Context, userID, roomID uuid.UUID) ([]*models.Message, error) {
	if err := s.require(ctx, userID, roomID, nil); err != nil {
		return nil, err
	}
	return s.messages.List(ctx, roomID)
}

func (s *RoomService) require(ctx context.Context, userID, roomID uuid.UUID, role *models.Role) error {
	ok, err := s.db.IsMember(ctx, userID, roomID, role)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrForbidden
	}
	return nil
}
