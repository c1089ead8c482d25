package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/thereayou/accounts/internal/cache"
	"github.com/thereayou/accounts/internal/config"
	"github.com/thereayou/accounts/internal/database"
	"github.com/thereayou/accounts/internal/handlers"
	"github.com/thereayou/accounts/internal/media"
	"github.com/thereayou/accounts/internal/metrics"
	"github.com/thereayou/accounts/internal/services"
	"github.com/thereayou/accounts/internal/websocket"
	"github.com/thereayou/accounts/pkg/auth"
)

const (
	localMediaDir  = "./public/media"
	localMediaURL  = "/static/media"
	shutdownWindow = 10 * time.Second
	readyTimeout   = 2 * time.Second
)

type Server struct {
	Router     *gin.Engine
	Store      services.UserStore
	Redis      *redis.Client
	JWTManager *auth.JWTManager
	Hub        *websocket.Hub
	Metrics    *metrics.Metrics
	Service    *services.Service

	cfg     *config.Config
	log     *slog.Logger
	closers []func() error
	checks  []func(ctx context.Context) error
}

// NewServer wires every dependency from cfg. Close releases them.
func NewServer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Server, error) {
	s := &Server{cfg: cfg, log: log}

	store, err := s.openStore()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Store = store

	denylist, err := s.openDenylist(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}

	uploader, err := newUploader(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.JWTManager = auth.NewJWTManager(auth.TokenConfig{
		AccessSecret:  cfg.AccessTokenSecret,
		AccessTTL:     cfg.AccessTokenExpiry,
		RefreshSecret: cfg.RefreshTokenSecret,
		RefreshTTL:    cfg.RefreshTokenExpiry,
	})
	s.Hub = websocket.NewHub(log)
	s.Metrics = metrics.New()

	s.Service = services.NewService(cfg, services.Dependencies{
		Store:    store,
		Hasher:   auth.NewPasswordHasher(cfg.BcryptCost),
		Tokens:   s.JWTManager,
		Uploader: uploader,
		Denylist: denylist,
		Notifier: s.Hub,
		Metrics:  s.Metrics,
		Logger:   log,
	})

	cookies := handlers.CookieConfig{
		Secure:     cfg.CookieSecure,
		AccessTTL:  cfg.AccessTokenExpiry,
		RefreshTTL: cfg.RefreshTokenExpiry,
	}
	authH, err := handlers.NewAuthHandler(s.Service, cookies, cfg.Media.UploadTempDir)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	userH, err := handlers.NewUserHandler(s.Service, cfg.Media.UploadTempDir)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	wsH := handlers.NewWebSocketHandler(s.Hub, cfg.AllowedOrigins)

	gin.SetMode(gin.ReleaseMode)
	s.Router = NewRouter(log, Handlers{
		Auth:      authH,
		User:      userH,
		WebSocket: wsH,
		Authn:     s.Service,
		Metrics:   s.Metrics,
		Ready:     s.ready,
	})
	if cfg.Media.Bucket == "" {
		s.Router.Static(localMediaURL, localMediaDir)
	}

	return s, nil
}

func (s *Server) openStore() (services.UserStore, error) {
	if s.cfg.StoreDriver == config.StoreDriverMemory {
		s.log.Warn("using in-memory user store, data is lost on restart")
		return database.NewMemoryDatabase(), nil
	}

	db := &database.Database{}
	if err := db.Connect(s.cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("postgres connect failed: %w", err)
	}
	s.closers = append(s.closers, db.Close)
	s.checks = append(s.checks, db.Ping)

	if err := db.Migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

func (s *Server) openDenylist(ctx context.Context) (services.Denylist, error) {
	if s.cfg.RedisURL == "" {
		s.log.Warn("REDIS_URL not set, access-token denylist is process-local")
		return cache.NewMemoryDenylist(), nil
	}

	opts, err := redis.ParseURL(s.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	s.closers = append(s.closers, rdb.Close)

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}
	s.Redis = rdb
	s.checks = append(s.checks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	return cache.NewRedisDenylist(rdb), nil
}

func newUploader(ctx context.Context, cfg *config.Config) (services.MediaUploader, error) {
	if cfg.Media.Bucket == "" {
		u, err := media.NewLocalUploader(localMediaDir, localMediaURL)
		if err != nil {
			return nil, err
		}
		return u, nil
	}
	u, err := media.NewS3Uploader(ctx, cfg.Media)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Server) ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	for _, check := range s.checks {
		if err := check(ctx); err != nil {
			s.log.WarnContext(ctx, "readiness check failed", "error", err)
			return err
		}
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.Hub.Run()
	defer s.Hub.Stop()

	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "port", s.cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server run error: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWindow)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
