package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/accounts/internal/handlers"
	"github.com/thereayou/accounts/internal/handlers/dto"
	"github.com/thereayou/accounts/internal/metrics"
	"github.com/thereayou/accounts/internal/middleware"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	User      *handlers.UserHandler
	WebSocket *handlers.WebSocketHandler
	Authn     middleware.Authenticator
	Metrics   *metrics.Metrics

	// Ready reports whether backing services are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

// maxMultipartMemory caps in-memory form parsing; larger parts spill to disk.
const maxMultipartMemory = 8 << 20

func NewRouter(log *slog.Logger, h Handlers) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = maxMultipartMemory
	r.Use(middleware.RequestLogger(log), middleware.Recovery(log), middleware.ErrorHandler(log))

	APIEndpoints(r, h)
	return r
}

func APIEndpoints(r *gin.Engine, h Handlers) {
	r.GET("/healthz", func(c *gin.Context) {
		if h.Ready != nil {
			if err := h.Ready(c.Request.Context()); err != nil {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable,
					dto.NewErrorResponse(http.StatusServiceUnavailable, "Service unavailable", nil))
				return
			}
		}
		c.Status(http.StatusOK)
	})
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	requireAuth := middleware.AuthMiddleware(h.Authn)

	users := r.Group("/api/v1/users")
	{
		users.POST("/register", h.Auth.Register)
		users.POST("/login", h.Auth.Login)
		users.POST("/refresh-token", h.Auth.RefreshToken)

		// Secured routes
		users.POST("/logout", requireAuth, h.Auth.Logout)
		users.POST("/change-password", requireAuth, h.Auth.ChangePassword)
		users.GET("/current-user", requireAuth, h.User.GetMe)
		users.PATCH("/update-account", requireAuth, h.User.UpdateAccount)
		users.PATCH("/avatar", requireAuth, h.User.UpdateAvatar)
		users.PATCH("/cover-image", requireAuth, h.User.UpdateCoverImage)

		if h.WebSocket != nil {
			users.GET("/events", middleware.WSAuthMiddleware(h.Authn), h.WebSocket.HandleWebSocket)
		}
	}
}
