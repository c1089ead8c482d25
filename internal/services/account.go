package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/thereayou/accounts/internal/apierror"
	"github.com/thereayou/accounts/internal/database"
	"github.com/thereayou/accounts/internal/models"
)

// Register creates a user. Validation and hashing run before any upload, and
// uploaded objects are discarded again if the record cannot be written.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (user *models.User, err error) {
	defer func() { s.metrics.Registration(outcome(err)) }()

	if blank(req.FullName, req.Email, req.Username, req.Password) {
		return nil, apierror.BadRequest("All fields are required")
	}
	if err := s.checkEmail(strings.TrimSpace(req.Email)); err != nil {
		return nil, err
	}
	if err := s.checkPassword(req.Password); err != nil {
		return nil, err
	}

	username := models.NormalizeIdentity(req.Username)
	email := models.NormalizeIdentity(req.Email)

	_, err = s.store.FindUserByUsernameOrEmail(ctx, username, email)
	switch {
	case err == nil:
		return nil, apierror.Conflict("User with email or username already exists")
	case !errors.Is(err, database.ErrNotFound):
		return nil, apierror.Internal("Failed to check existing users", err)
	}

	if req.AvatarPath == "" {
		return nil, apierror.BadRequest("Avatar file is required")
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	avatar, err := s.uploader.Upload(ctx, req.AvatarPath)
	if err != nil {
		return nil, apierror.Internal("Failed to upload avatar", err)
	}
	uploaded := []string{avatar.Key}

	var coverURL *string
	if req.CoverImagePath != "" {
		cover, err := s.uploader.Upload(ctx, req.CoverImagePath)
		if err != nil {
			s.discardUploads(ctx, uploaded...)
			return nil, apierror.Internal("Failed to upload cover image", err)
		}
		uploaded = append(uploaded, cover.Key)
		coverURL = &cover.URL
	}

	user = &models.User{
		Username:      username,
		Email:         email,
		FullName:      strings.TrimSpace(req.FullName),
		AvatarURL:     avatar.URL,
		CoverImageURL: coverURL,
		PasswordHash:  hash,
	}

	if err := s.store.SaveUser(ctx, user); err != nil {
		s.discardUploads(ctx, uploaded...)
		if errors.Is(err, database.ErrDuplicate) {
			return nil, apierror.Conflict("User with email or username already exists")
		}
		return nil, apierror.Internal("Something went wrong while registering the user", err)
	}

	s.log.InfoContext(ctx, "user registered", "user_id", user.ID, "username", user.Username)
	return user.Sanitized(), nil
}

func (s *Service) CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apierror.NotFound("User does not exist")
		}
		return nil, apierror.Internal("Failed to load user", err)
	}
	return user.Sanitized(), nil
}

// UpdateAccount changes full name and email. Both are required.
func (s *Service) UpdateAccount(ctx context.Context, userID uuid.UUID, req UpdateAccountRequest) (*models.User, error) {
	if blank(req.FullName, req.Email) {
		return nil, apierror.BadRequest("All fields are required")
	}
	if err := s.checkEmail(strings.TrimSpace(req.Email)); err != nil {
		return nil, err
	}

	fullName := strings.TrimSpace(req.FullName)
	email := models.NormalizeIdentity(req.Email)

	return s.update(ctx, userID, database.UserUpdate{FullName: &fullName, Email: &email})
}

func (s *Service) UpdateAvatar(ctx context.Context, userID uuid.UUID, localPath string) (*models.User, error) {
	if localPath == "" {
		return nil, apierror.BadRequest("Avatar file is missing")
	}
	res, err := s.uploader.Upload(ctx, localPath)
	if err != nil {
		return nil, apierror.Internal("Error while uploading avatar", err)
	}
	user, err := s.update(ctx, userID, database.UserUpdate{AvatarURL: &res.URL})
	if err != nil {
		s.discardUploads(ctx, res.Key)
	}
	return user, err
}

func (s *Service) UpdateCoverImage(ctx context.Context, userID uuid.UUID, localPath string) (*models.User, error) {
	if localPath == "" {
		return nil, apierror.BadRequest("Cover image file is missing")
	}
	res, err := s.uploader.Upload(ctx, localPath)
	if err != nil {
		return nil, apierror.Internal("Error while uploading cover image", err)
	}
	user, err := s.update(ctx, userID, database.UserUpdate{CoverImageURL: &res.URL})
	if err != nil {
		s.discardUploads(ctx, res.Key)
	}
	return user, err
}

func (s *Service) update(ctx context.Context, userID uuid.UUID, upd database.UserUpdate) (*models.User, error) {
	user, err := s.store.UpdateUserFields(ctx, userID, upd)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			return nil, apierror.NotFound("User does not exist")
		case errors.Is(err, database.ErrDuplicate):
			return nil, apierror.Conflict("Email is already in use")
		default:
			return nil, apierror.Internal("Failed to update user", err)
		}
	}

	user = user.Sanitized()
	s.profileUpdated(user)
	return user, nil
}

// discardUploads removes objects stored for a request that then failed.
// Cleanup errors are logged, the original failure is what the caller sees.
func (s *Service) discardUploads(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.uploader.Delete(ctx, key); err != nil {
			s.log.WarnContext(ctx, "failed to discard upload", "key", key, "error", err)
		}
	}
}
