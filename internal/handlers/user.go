package handlers

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/accounts/internal/apierror"
	"github.com/thereayou/accounts/internal/handlers/dto"
	"github.com/thereayou/accounts/internal/middleware"
	"github.com/thereayou/accounts/internal/models"
	"github.com/thereayou/accounts/internal/services"
)

type UserHandler struct {
	svc       services.AccountService
	uploadDir string
}

func NewUserHandler(svc services.AccountService, uploadDir string) (*UserHandler, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, err
	}
	return &UserHandler{svc: svc, uploadDir: uploadDir}, nil
}

// GetMe returns the authenticated user.
func (h *UserHandler) GetMe(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apierror.Unauthorized("Unauthorized request"))
		return
	}

	current, err := h.svc.CurrentUser(c.Request.Context(), user.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	respond(c, http.StatusOK, dto.NewUserResponse(current), "Current user fetched successfully")
}

// UpdateAccount changes full name and email.
func (h *UserHandler) UpdateAccount(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apierror.Unauthorized("Unauthorized request"))
		return
	}

	var req dto.UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apierror.BadRequest("Invalid request body"))
		return
	}

	updated, err := h.svc.UpdateAccount(c.Request.Context(), user.ID, services.UpdateAccountRequest{
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	respond(c, http.StatusOK, dto.NewUserResponse(updated), "Account details updated successfully")
}

func (h *UserHandler) UpdateAvatar(c *gin.Context) {
	h.updateImage(c, "avatar", h.svc.UpdateAvatar, "Avatar image updated successfully")
}

func (h *UserHandler) UpdateCoverImage(c *gin.Context) {
	h.updateImage(c, "coverImage", h.svc.UpdateCoverImage, "Cover image updated successfully")
}

type imageUpdater func(ctx context.Context, userID uuid.UUID, localPath string) (*models.User, error)

func (h *UserHandler) updateImage(c *gin.Context, field string, update imageUpdater, message string) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apierror.Unauthorized("Unauthorized request"))
		return
	}

	path, err := stageUpload(c, field, h.uploadDir)
	if err != nil {
		_ = c.Error(apierror.BadRequest("Invalid " + field + " upload"))
		return
	}
	defer removeStaged(path)

	updated, err := update(c.Request.Context(), user.ID, path)
	if err != nil {
		_ = c.Error(err)
		return
	}

	respond(c, http.StatusOK, dto.NewUserResponse(updated), message)
}
