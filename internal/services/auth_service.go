package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/accounts/internal/media"
	"github.com/thereayou/accounts/internal/models"
	"github.com/thereayou/accounts/pkg/auth"
)

type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, userID uuid.UUID, accessToken string) error
	ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
}

type AccountService interface {
	CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateAccount(ctx context.Context, userID uuid.UUID, req UpdateAccountRequest) (*models.User, error)
	UpdateAvatar(ctx context.Context, userID uuid.UUID, localPath string) (*models.User, error)
	UpdateCoverImage(ctx context.Context, userID uuid.UUID, localPath string) (*models.User, error)
}

// RegisterRequest carries form fields plus staged upload paths. CoverImagePath
// may be empty.
type RegisterRequest struct {
	FullName       string
	Email          string
	Username       string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

type LoginRequest struct {
	Identifier string
	Password   string
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult holds the issued pair and the sanitized user.
type LoginResult struct {
	User *models.User
	TokenPair
}

type ChangePasswordRequest struct {
	Current string
	New     string
	Confirm string
}

type UpdateAccountRequest struct {
	FullName string
	Email    string
}

type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

type TokenIssuer interface {
	GenerateAccess(userID string, p auth.Profile) (string, error)
	GenerateRefresh(userID string) (string, error)
	Verify(token string, class auth.TokenClass) (*auth.Claims, error)
}

// MediaUploader stores images and removes objects that ended up unreferenced.
type MediaUploader interface {
	Upload(ctx context.Context, localPath string) (*media.UploadResult, error)
	Delete(ctx context.Context, key string) error
}

type Denylist interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// Notifier pushes account events to a user's live connections.
type Notifier interface {
	SessionRevoked(userID uuid.UUID, reason string)
	ProfileUpdated(userID uuid.UUID, profile any)
}
