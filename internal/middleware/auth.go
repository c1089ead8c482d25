package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/accounts/internal/apierror"
	"github.com/thereayou/accounts/internal/models"
	"github.com/thereayou/accounts/pkg/auth"
)

const (
	UserKey  = "user"
	TokenKey = "accessToken"

	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
}

// AuthMiddleware resolves the access token from the accessToken cookie or
// the Authorization header and attaches the sanitized user. The handler
// chain is aborted on any failure.
func AuthMiddleware(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractToken(c.Request, AccessTokenCookie)
		if err != nil {
			abort(c, apierror.Unauthorized("Unauthorized request"))
			return
		}
		authenticate(c, authn, token)
	}
}

// WSAuthMiddleware also accepts ?token= since browsers cannot set headers on
// WebSocket handshakes.
func WSAuthMiddleware(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			var err error
			token, err = auth.ExtractToken(c.Request, AccessTokenCookie)
			if err != nil {
				abort(c, apierror.Unauthorized("Unauthorized request"))
				return
			}
		}
		authenticate(c, authn, token)
	}
}

func authenticate(c *gin.Context, authn Authenticator, token string) {
	user, err := authn.Authenticate(c.Request.Context(), token)
	if err != nil {
		abort(c, err)
		return
	}

	c.Set(UserKey, user)
	c.Set(TokenKey, token)
	c.Next()
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// CurrentUser returns the user attached by AuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}
