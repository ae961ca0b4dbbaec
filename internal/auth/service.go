package auth

import (
	"context"
	"fmt"
	"strings"

	"plainchat/internal/apperr"
	"plainchat/internal/database"
	"plainchat/internal/models"

	"github.com/google/uuid"
)

// Service implements the account operations behind /api/user.
type Service struct {
	db   database.UserRepository
	auth *Authenticator
}

func NewService(db database.UserRepository, auth *Authenticator) *Service {
	return &Service{
		db:   db,
		auth: auth,
	}
}

func (s *Service) Register(ctx context.Context, req *models.UserPayload) error {
	// Validate input
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return &apperr.InvalidInput{Msg: "username and password are required"}
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return err
	}

	if _, err := s.db.CreateUser(ctx, req.Username, hash); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Service) Login(ctx context.Context, req *models.UserPayload) (*models.UserResponse, error) {
	user, err := s.db.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}

	if err := CheckPassword(user.PasswordHash, req.Password); err != nil {
		return nil, err
	}

	token, err := s.auth.Issue(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	return &models.UserResponse{
		Username: user.Username,
		Token:    token,
	}, nil
}

func (s *Service) CurrentUser(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// Update changes the username and/or password. An empty password is ignored.
// The response carries a freshly issued token.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, req *models.UserUpdatePayload) (*models.UserResponse, error) {
	var hash *string
	if req.Password != nil && *req.Password != "" {
		h, err := HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		hash = &h
	}

	name, err := s.db.UpdateUser(ctx, userID, req.Username, hash)
	if err != nil {
		return nil, err
	}

	token, err := s.auth.Issue(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	return &models.UserResponse{
		Username: name,
		Token:    token,
	}, nil
}

// Delete drops the user's memberships and then the user, returning the
// deleted username.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.db.DeleteUser(ctx, userID)
}
