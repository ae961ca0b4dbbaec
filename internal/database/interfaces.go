package database

import (
	"context"

	"plainchat/internal/models"

	"github.com/google/uuid"
)

type UserRepository interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, username, passwordHash *string) (string, error)
	DeleteUser(ctx context.Context, id uuid.UUID) (string, error)
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type GroupRepository interface {
	CreateGroup(ctx context.Context, name string, ownerID uuid.UUID) (*models.Group, error)
	ListUserGroups(ctx context.Context, userID uuid.UUID) ([]*models.Group, error)
	DeleteGroup(ctx context.Context, groupID uuid.UUID) (*models.Group, error)
}

type MembershipRepository interface {
	AddMembership(ctx context.Context, userID, groupID uuid.UUID, role models.Role) error
	RemoveMembership(ctx context.Context, userID, groupID uuid.UUID) error
	RemoveMembershipByUsername(ctx context.Context, username string, groupID uuid.UUID) error
	// IsMember checks membership, restricted to role when role is non-nil.
	IsMember(ctx context.Context, userID, groupID uuid.UUID, role *models.Role) (bool, error)
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]*models.Member, error)
}

type MessageRepository interface {
	InsertMessage(ctx context.Context, msg models.NewMessage) (*models.Message, error)
	ListMessages(ctx context.Context, groupID uuid.UUID) ([]*models.Message, error)
}

type Database interface {
	UserRepository
	GroupRepository
	MembershipRepository
	MessageRepository
	Close() error
}
