package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/accounts/internal/apierror"
	"github.com/thereayou/accounts/internal/handlers/dto"
)

const genericInternalMessage = "Internal server error"

// ErrorHandler is the single place errors become responses. Handlers record
// failures with c.Error and return; the last recorded error is rendered.
func ErrorHandler(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, body := render(err)
		if status >= http.StatusInternalServerError {
			log.ErrorContext(c.Request.Context(), "request failed",
				"method", c.Request.Method, "path", c.FullPath(), "error", err)
		}
		c.JSON(status, body)
	}
}

// Recovery turns panics into the Internal envelope.
func Recovery(log *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.ErrorContext(c.Request.Context(), "panic recovered",
			"method", c.Request.Method, "path", c.Request.URL.Path, "panic", fmt.Sprint(recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			dto.NewErrorResponse(http.StatusInternalServerError, genericInternalMessage, nil))
	})
}

func render(err error) (int, dto.ErrorResponse) {
	var ae *apierror.Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError,
			dto.NewErrorResponse(http.StatusInternalServerError, genericInternalMessage, nil)
	}
	status := ae.Kind.StatusCode()
	msg := ae.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return status, dto.NewErrorResponse(status, msg, ae.Errors)
}
