package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/accounts/internal/apierror"
	"github.com/thereayou/accounts/internal/cache"
	"github.com/thereayou/accounts/internal/config"
	"github.com/thereayou/accounts/internal/database"
	"github.com/thereayou/accounts/internal/logging"
	"github.com/thereayou/accounts/internal/media"
	"github.com/thereayou/accounts/internal/metrics"
	"github.com/thereayou/accounts/internal/models"
	"github.com/thereayou/accounts/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

// ---- fakes ----

type fakeUploader struct {
	mu      sync.Mutex
	err     error
	failAt  int // 1-based Upload call that fails; 0 means none
	paths   []string
	deleted []string
}

func (f *fakeUploader) Upload(_ context.Context, localPath string) (*media.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if localPath == "" {
		return nil, media.ErrNoFile
	}
	f.paths = append(f.paths, localPath)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.paths) == f.failAt {
		return nil, errBoom
	}
	key := fmt.Sprintf("media/%d%s", len(f.paths), filepath.Ext(localPath))
	return &media.UploadResult{URL: "https://cdn.test/" + key, Key: key}, nil
}

func (f *fakeUploader) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

type event struct {
	userID uuid.UUID
	kind   string
	reason string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *fakeNotifier) SessionRevoked(userID uuid.UUID, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event{userID: userID, kind: "session_revoked", reason: reason})
}

func (n *fakeNotifier) ProfileUpdated(userID uuid.UUID, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event{userID: userID, kind: "profile_updated"})
}

func (n *fakeNotifier) last() event {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return event{}
	}
	return n.events[len(n.events)-1]
}

// racingStore simulates another request rotating the token between the
// read and the compare-and-swap.
type racingStore struct {
	*database.MemoryDatabase
}

func (s racingStore) RotateRefreshToken(ctx context.Context, id uuid.UUID, expected, next string) error {
	if err := s.MemoryDatabase.SetRefreshToken(ctx, id, "rotated-elsewhere"); err != nil {
		return err
	}
	return s.MemoryDatabase.RotateRefreshToken(ctx, id, expected, next)
}

// failingStore fails selected writes of the wrapped store.
type failingStore struct {
	*database.MemoryDatabase
	failSave     bool
	failUpdate   bool
	failSetToken bool
}

func (s failingStore) SaveUser(ctx context.Context, user *models.User) error {
	if s.failSave {
		return errBoom
	}
	return s.MemoryDatabase.SaveUser(ctx, user)
}

func (s failingStore) UpdateUserFields(ctx context.Context, id uuid.UUID, upd database.UserUpdate) (*models.User, error) {
	if s.failUpdate {
		return nil, errBoom
	}
	return s.MemoryDatabase.UpdateUserFields(ctx, id, upd)
}

func (s failingStore) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	if s.failSetToken && token == "" {
		return errBoom
	}
	return s.MemoryDatabase.SetRefreshToken(ctx, id, token)
}

// ---- fixture ----

type fixture struct {
	svc      *Service
	store    *database.MemoryDatabase
	hasher   *auth.PasswordHasher
	tokens   *auth.JWTManager
	uploader *fakeUploader
	denylist *cache.MemoryDenylist
	notifier *fakeNotifier
	metrics  *metrics.Metrics
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.FromMap(map[string]string{
		"ACCESS_TOKEN_SECRET":  "access-secret",
		"REFRESH_TOKEN_SECRET": "refresh-secret",
		"STORE_DRIVER":         "memory",
	})
	require.NoError(t, err)
	return cfg
}

func newFixture(t *testing.T, mutate ...func(*config.Config, *Dependencies)) *fixture {
	t.Helper()
	cfg := testConfig(t)

	f := &fixture{
		store:    database.NewMemoryDatabase(),
		hasher:   auth.NewPasswordHasher(bcrypt.MinCost),
		uploader: &fakeUploader{},
		denylist: cache.NewMemoryDenylist(),
		notifier: &fakeNotifier{},
		metrics:  metrics.New(),
	}
	f.tokens = auth.NewJWTManager(auth.TokenConfig{
		AccessSecret:  cfg.AccessTokenSecret,
		AccessTTL:     cfg.AccessTokenExpiry,
		RefreshSecret: cfg.RefreshTokenSecret,
		RefreshTTL:    cfg.RefreshTokenExpiry,
	})

	deps := Dependencies{
		Store:    f.store,
		Hasher:   f.hasher,
		Tokens:   f.tokens,
		Uploader: f.uploader,
		Denylist: f.denylist,
		Notifier: f.notifier,
		Metrics:  f.metrics,
		Logger:   logging.Discard(),
	}
	for _, m := range mutate {
		m(cfg, &deps)
	}
	f.svc = NewService(cfg, deps)
	return f
}

// stage writes a throwaway file standing in for a multipart upload.
func stage(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("img"), 0o600))
	return p
}

func (f *fixture) register(t *testing.T, username, email, password string) uuid.UUID {
	t.Helper()
	user, err := f.svc.Register(context.Background(), RegisterRequest{
		FullName:   "Full " + username,
		Email:      email,
		Username:   username,
		Password:   password,
		AvatarPath: stage(t, "avatar.png"),
	})
	require.NoError(t, err)
	return user.ID
}

func (f *fixture) login(t *testing.T, identifier, password string) *LoginResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), LoginRequest{Identifier: identifier, Password: password})
	require.NoError(t, err)
	return res
}

func requireKind(t *testing.T, err error, kind apierror.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apierror.KindOf(err), "error: %v", err)
}

var errBoom = errors.New("boom")
