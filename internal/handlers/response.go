package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/accounts/internal/handlers/dto"
	"github.com/thereayou/accounts/internal/middleware"
)

// CookieConfig controls the token cookies set on login and refresh.
type CookieConfig struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func respond(c *gin.Context, status int, data any, message string) {
	c.JSON(status, dto.NewResponse(status, data, message))
}

func setTokenCookies(c *gin.Context, cfg CookieConfig, access, refresh string) {
	c.SetCookie(middleware.AccessTokenCookie, access, int(cfg.AccessTTL.Seconds()), "/", "", cfg.Secure, true)
	c.SetCookie(middleware.RefreshTokenCookie, refresh, int(cfg.RefreshTTL.Seconds()), "/", "", cfg.Secure, true)
}

func clearTokenCookies(c *gin.Context, cfg CookieConfig) {
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", cfg.Secure, true)
	c.SetCookie(middleware.RefreshTokenCookie, "", -1, "/", "", cfg.Secure, true)
}

// stageUpload saves the multipart file field into dir and returns its path.
// A missing field yields "" and no error.
func stageUpload(c *gin.Context, field, dir string) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", nil
		}
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	dst := filepath.Join(dir, uuid.NewString()+ext)
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// removeStaged deletes staged files that an upload did not consume.
func removeStaged(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}
