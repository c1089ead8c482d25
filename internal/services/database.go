package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/thereayou/accounts/internal/database"
	"github.com/thereayou/accounts/internal/models"
)

// UserStore is the credential store. Implementations must enforce username
// and email uniqueness and report it as database.ErrDuplicate.
type UserStore interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByIdentity(ctx context.Context, identifier string) (*models.User, error)
	FindUserByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error)
	UpdateUserFields(ctx context.Context, id uuid.UUID, upd database.UserUpdate) (*models.User, error)
	SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error
	RotateRefreshToken(ctx context.Context, id uuid.UUID, expected, next string) error
}

var (
	_ UserStore = (*database.Database)(nil)
	_ UserStore = (*database.MemoryDatabase)(nil)
)
