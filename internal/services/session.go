package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/accounts/internal/apierror"
	"github.com/thereayou/accounts/internal/database"
	"github.com/thereayou/accounts/internal/metrics"
	"github.com/thereayou/accounts/internal/models"
	"github.com/thereayou/accounts/pkg/auth"
)

const (
	reasonNewLogin        = "new_login"
	reasonLogout          = "logout"
	reasonPasswordChanged = "password_changed"
)

// Login verifies the credential and starts a new session. The stored refresh
// token is overwritten, which ends any previous session of the user.
func (s *Service) Login(ctx context.Context, req LoginRequest) (res *LoginResult, err error) {
	defer func() { s.metrics.AuthAttempt(metrics.OpLogin, outcome(err)) }()

	if blank(req.Identifier) {
		return nil, apierror.BadRequest("Username or email is required")
	}
	if req.Password == "" {
		return nil, apierror.BadRequest("Password is required")
	}

	user, err := s.store.FindUserByIdentity(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apierror.NotFound("User does not exist")
		}
		return nil, apierror.Internal("Failed to load user", err)
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, apierror.Unauthorized("Invalid user credentials")
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, apierror.Internal("Failed to store refresh token", err)
	}

	s.revokeSession(user.ID, reasonNewLogin)
	s.log.InfoContext(ctx, "user logged in", "user_id", user.ID)

	return &LoginResult{User: user.Sanitized(), TokenPair: *pair}, nil
}

// Logout ends the user's session. The presented access token, if any, is
// denylisted for the rest of its lifetime. Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, accessToken string) (err error) {
	defer func() { s.metrics.AuthAttempt(metrics.OpLogout, outcome(err)) }()

	if accessToken != "" && s.denylist != nil {
		if claims, verr := s.tokens.Verify(accessToken, auth.AccessToken); verr == nil {
			ttl := time.Until(claims.ExpiresAt.Time)
			if err := s.denylist.Revoke(ctx, accessToken, ttl); err != nil {
				return apierror.Internal("Failed to revoke access token", err)
			}
		}
	}

	if err := s.store.SetRefreshToken(ctx, userID, ""); err != nil && !errors.Is(err, database.ErrNotFound) {
		return apierror.Internal("Failed to clear refresh token", err)
	}

	s.revokeSession(userID, reasonLogout)
	s.log.InfoContext(ctx, "user logged out", "user_id", userID)
	return nil
}

// RefreshToken exchanges a refresh token for a new pair. The presented token
// must equal the stored one; a superseded token is rejected. Rotation is a
// compare-and-swap, so of two concurrent refreshes with the same token only
// one wins and the other gets Conflict.
func (s *Service) RefreshToken(ctx context.Context, presented string) (pair *TokenPair, err error) {
	defer func() { s.metrics.AuthAttempt(metrics.OpRefresh, outcome(err)) }()

	if presented == "" {
		return nil, apierror.Unauthorized("Unauthorized request")
	}

	claims, err := s.tokens.Verify(presented, auth.RefreshToken)
	if err != nil {
		return nil, apierror.Unauthorized("Invalid refresh token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apierror.Unauthorized("Invalid refresh token")
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apierror.Unauthorized("Invalid refresh token")
		}
		return nil, apierror.Internal("Failed to load user", err)
	}

	stored := user.StoredRefreshToken()
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		return nil, apierror.Unauthorized("Refresh token is expired or used")
	}

	pair, err = s.issuePair(user)
	if err != nil {
		return nil, err
	}

	if err := s.store.RotateRefreshToken(ctx, user.ID, presented, pair.RefreshToken); err != nil {
		if errors.Is(err, database.ErrTokenMismatch) {
			return nil, apierror.Conflict("Refresh token was rotated concurrently, retry")
		}
		return nil, apierror.Internal("Failed to rotate refresh token", err)
	}

	return pair, nil
}

// ChangePassword replaces the password hash. On any validation failure the
// stored hash is untouched.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) (err error) {
	defer func() { s.metrics.AuthAttempt(metrics.OpChangePassword, outcome(err)) }()

	if blank(req.Current, req.New, req.Confirm) {
		return apierror.BadRequest("All fields are required")
	}
	if req.New != req.Confirm {
		return apierror.BadRequest("New password and confirmation do not match")
	}
	if err := s.checkPassword(req.New); err != nil {
		return err
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apierror.NotFound("User does not exist")
		}
		return apierror.Internal("Failed to load user", err)
	}

	if !s.hasher.Verify(req.Current, user.PasswordHash) {
		return apierror.BadRequest("Invalid old password")
	}

	hash, err := s.hashPassword(req.New)
	if err != nil {
		return err
	}

	// hash and session revocation go out in one write
	upd := database.UserUpdate{PasswordHash: &hash, ClearRefreshToken: s.revokeOnPasswordChange}
	if _, err := s.store.UpdateUserFields(ctx, userID, upd); err != nil {
		return apierror.Internal("Failed to update password", err)
	}

	if s.revokeOnPasswordChange {
		s.revokeSession(userID, reasonPasswordChanged)
	}

	s.log.InfoContext(ctx, "password changed", "user_id", userID)
	return nil
}

// Authenticate resolves the user behind an access token. Absent, malformed,
// expired, denylisted tokens and deleted users all yield Unauthorized.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (user *models.User, err error) {
	defer func() {
		if err != nil {
			s.metrics.AuthAttempt(metrics.OpAuthenticate, outcome(err))
		}
	}()

	if accessToken == "" {
		return nil, apierror.Unauthorized("Unauthorized request")
	}

	claims, err := s.tokens.Verify(accessToken, auth.AccessToken)
	if err != nil {
		return nil, apierror.Unauthorized("Invalid access token")
	}

	if s.denylist != nil {
		revoked, err := s.denylist.IsRevoked(ctx, accessToken)
		if err != nil {
			return nil, apierror.Internal("Failed to check token status", err)
		}
		if revoked {
			return nil, apierror.Unauthorized("Access token has been revoked")
		}
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apierror.Unauthorized("Invalid access token")
	}

	user, err = s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apierror.Unauthorized("Invalid access token")
		}
		return nil, apierror.Internal("Failed to load user", err)
	}

	return user.Sanitized(), nil
}

func (s *Service) issuePair(user *models.User) (*TokenPair, error) {
	access, err := s.tokens.GenerateAccess(user.ID.String(), auth.Profile{
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
	})
	if err != nil {
		return nil, apierror.Internal("Failed to generate access token", err)
	}

	refresh, err := s.tokens.GenerateRefresh(user.ID.String())
	if err != nil {
		return nil, apierror.Internal("Failed to generate refresh token", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
