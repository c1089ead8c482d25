package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/accounts/internal/apierror"
	"github.com/thereayou/accounts/internal/handlers/dto"
	"github.com/thereayou/accounts/internal/middleware"
	"github.com/thereayou/accounts/internal/services"
)

type AuthHandler struct {
	svc       services.AuthService
	cookies   CookieConfig
	uploadDir string
}

func NewAuthHandler(svc services.AuthService, cookies CookieConfig, uploadDir string) (*AuthHandler, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, err
	}
	return &AuthHandler{svc: svc, cookies: cookies, uploadDir: uploadDir}, nil
}

// Register accepts a multipart form with an avatar and an optional coverImage.
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		_ = c.Error(apierror.BadRequest("Invalid request body"))
		return
	}

	avatarPath, err := stageUpload(c, "avatar", h.uploadDir)
	if err != nil {
		_ = c.Error(apierror.BadRequest("Invalid avatar upload"))
		return
	}
	coverPath, err := stageUpload(c, "coverImage", h.uploadDir)
	if err != nil {
		removeStaged(avatarPath)
		_ = c.Error(apierror.BadRequest("Invalid cover image upload"))
		return
	}
	defer removeStaged(avatarPath, coverPath)

	user, err := h.svc.Register(c.Request.Context(), services.RegisterRequest{
		FullName:       req.FullName,
		Email:          req.Email,
		Username:       req.Username,
		Password:       req.Password,
		AvatarPath:     avatarPath,
		CoverImagePath: coverPath,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	respond(c, http.StatusCreated, dto.NewUserResponse(user), "User registered successfully")
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apierror.BadRequest("Invalid request body"))
		return
	}

	res, err := h.svc.Login(c.Request.Context(), services.LoginRequest{
		Identifier: req.LoginIdentifier(),
		Password:   req.Password,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	setTokenCookies(c, h.cookies, res.AccessToken, res.RefreshToken)
	respond(c, http.StatusOK, dto.LoginResponse{
		User:         dto.NewUserResponse(res.User),
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}, "User logged in successfully")
}

func (h *AuthHandler) Logout(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apierror.Unauthorized("Unauthorized request"))
		return
	}

	if err := h.svc.Logout(c.Request.Context(), user.ID, c.GetString(middleware.TokenKey)); err != nil {
		_ = c.Error(err)
		return
	}

	clearTokenCookies(c, h.cookies)
	respond(c, http.StatusOK, gin.H{}, "User logged out")
}

// RefreshToken reads the refresh token from the JSON body, falling back to
// its cookie. An explicit body token wins over a stale cookie.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req dto.RefreshRequest
	_ = c.ShouldBindJSON(&req)
	token := req.RefreshToken
	if token == "" {
		token, _ = c.Cookie(middleware.RefreshTokenCookie)
	}

	pair, err := h.svc.RefreshToken(c.Request.Context(), token)
	if err != nil {
		_ = c.Error(err)
		return
	}

	setTokenCookies(c, h.cookies, pair.AccessToken, pair.RefreshToken)
	respond(c, http.StatusOK, dto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "Access token refreshed")
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apierror.Unauthorized("Unauthorized request"))
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apierror.BadRequest("Invalid request body"))
		return
	}

	err := h.svc.ChangePassword(c.Request.Context(), user.ID, services.ChangePasswordRequest{
		Current: req.OldPassword,
		New:     req.NewPassword,
		Confirm: req.ConfirmPassword,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	respond(c, http.StatusOK, gin.H{}, "Password changed successfully")
}
