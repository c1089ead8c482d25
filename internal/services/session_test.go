package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/accounts/internal/apierror"
	"github.com/thereayou/accounts/internal/config"
	"github.com/thereayou/accounts/internal/database"
	"github.com/thereayou/accounts/pkg/auth"
)

func TestLogin_ByEmailOrUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "alice", "alice@x.com", "pw12345678")

	res := f.login(t, "ALICE@x.com", "pw12345678")
	assert.Equal(t, id, res.User.ID)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.NotEqual(t, res.AccessToken, res.RefreshToken)
	assert.Empty(t, res.User.PasswordHash)
	assert.Nil(t, res.User.RefreshToken)

	stored, err := f.store.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, res.RefreshToken, stored.StoredRefreshToken())

	claims, err := f.tokens.Verify(res.AccessToken, auth.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id.String(), claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@x.com", claims.Email)

	byName := f.login(t, " alice ", "pw12345678")
	assert.Equal(t, id, byName.User.ID)
	assert.Equal(t, event{userID: id, kind: "session_revoked", reason: reasonNewLogin}, f.notifier.last())
}

func TestLogin_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@x.com", "pw12345678")

	_, err := f.svc.Login(ctx, LoginRequest{Identifier: "alice", Password: "wrong-password"})
	requireKind(t, err, apierror.KindUnauthorized)

	_, err = f.svc.Login(ctx, LoginRequest{Identifier: "nobody", Password: "pw12345678"})
	requireKind(t, err, apierror.KindNotFound)

	_, err = f.svc.Login(ctx, LoginRequest{Identifier: "  ", Password: "pw12345678"})
	requireKind(t, err, apierror.KindBadRequest)

	_, err = f.svc.Login(ctx, LoginRequest{Identifier: "alice"})
	requireKind(t, err, apierror.KindBadRequest)
}

func TestLogin_EndsPreviousSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@x.com", "pw12345678")

	first := f.login(t, "alice", "pw12345678")
	f.login(t, "alice", "pw12345678")

	_, err := f.svc.RefreshToken(ctx, first.RefreshToken)
	requireKind(t, err, apierror.KindUnauthorized)
}

func TestRefreshToken_Rotates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "alice", "alice@x.com", "pw12345678")
	res := f.login(t, "alice@x.com", "pw12345678")

	pair, err := f.svc.RefreshToken(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.RefreshToken, pair.RefreshToken)
	assert.NotEqual(t, res.AccessToken, pair.AccessToken)

	stored, err := f.store.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshToken, stored.StoredRefreshToken())

	// the superseded token is dead
	_, err = f.svc.RefreshToken(ctx, res.RefreshToken)
	requireKind(t, err, apierror.KindUnauthorized)

	// the new one keeps working
	_, err = f.svc.RefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshToken_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@x.com", "pw12345678")
	res := f.login(t, "alice", "pw12345678")

	foreign, err := f.tokens.GenerateRefresh(uuid.NewString())
	require.NoError(t, err)
	notUUID, err := f.tokens.GenerateRefresh("not-a-uuid")
	require.NoError(t, err)

	tests := map[string]string{
		"empty":            "",
		"garbage":          "garbage",
		"tampered":         tamper(res.RefreshToken),
		"access token":     res.AccessToken,
		"unknown user":     foreign,
		"non uuid subject": notUUID,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.RefreshToken(ctx, tok)
			requireKind(t, err, apierror.KindUnauthorized)
		})
	}

	// none of the failures touched the stored token
	_, err = f.svc.RefreshToken(ctx, res.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshToken_LostRaceIsConflict(t *testing.T) {
	f := newFixture(t, func(_ *config.Config, d *Dependencies) {
		d.Store = racingStore{MemoryDatabase: d.Store.(*database.MemoryDatabase)}
	})
	ctx := context.Background()
	id := f.register(t, "alice", "alice@x.com", "pw12345678")
	res := f.login(t, "alice", "pw12345678")

	_, err := f.svc.RefreshToken(ctx, res.RefreshToken)
	requireKind(t, err, apierror.KindConflict)

	stored, err := f.store.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "rotated-elsewhere", stored.StoredRefreshToken(), "loser must not overwrite the winner")
}

func TestRefreshToken_ConcurrentRotationHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@x.com", "pw12345678")
	res := f.login(t, "alice", "pw12345678")

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RefreshToken(ctx, res.RefreshToken)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			kind := apierror.KindOf(err)
			assert.True(t, kind == apierror.KindConflict || kind == apierror.KindUnauthorized, "unexpected %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "alice", "alice@x.com", "pw12345678")
	res := f.login(t, "alice", "pw12345678")

	_, err := f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, id, res.AccessToken))
	assert.Equal(t, event{userID: id, kind: "session_revoked", reason: reasonLogout}, f.notifier.last())

	_, err = f.svc.RefreshToken(ctx, res.RefreshToken)
	requireKind(t, err, apierror.KindUnauthorized)

	_, err = f.svc.Authenticate(ctx, res.AccessToken)
	requireKind(t, err, apierror.KindUnauthorized)

	stored, err := f.store.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, stored.StoredRefreshToken())

	// idempotent
	require.NoError(t, f.svc.Logout(ctx, id, res.AccessToken))
	require.NoError(t, f.svc.Logout(ctx, uuid.New(), ""))
}

func TestLogout_WithoutDenylist(t *testing.T) {
	f := newFixture(t, func(_ *config.Config, d *Dependencies) {
		d.Denylist = nil
		d.Notifier = nil
	})
	ctx := context.Background()
	id := f.register(t, "alice", "alice@x.com", "pw12345678")
	res := f.login(t, "alice", "pw12345678")

	require.NoError(t, f.svc.Logout(ctx, id, res.AccessToken))

	_, err := f.svc.RefreshToken(ctx, res.RefreshToken)
	requireKind(t, err, apierror.KindUnauthorized)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "alice", "alice@x.com", "pw12345678")
	res := f.login(t, "alice", "pw12345678")

	err := f.svc.ChangePassword(ctx, id, ChangePasswordRequest{
		Current: "pw12345678", New: "newpw12345678", Confirm: "newpw12345678",
	})
	require.NoError(t, err)
	assert.Equal(t, event{userID: id, kind: "session_revoked", reason: reasonPasswordChanged}, f.notifier.last())

	_, err = f.svc.Login(ctx, LoginRequest{Identifier: "alice", Password: "pw12345678"})
	requireKind(t, err, apierror.KindUnauthorized)
	f.login(t, "alice", "newpw12345678")

	_, err = f.svc.RefreshToken(ctx, res.RefreshToken)
	requireKind(t, err, apierror.KindUnauthorized)
}

func TestChangePassword_KeepsSessionWhenConfigured(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config, _ *Dependencies) {
		cfg.RevokeSessionsOnPasswordChange = false
	})
	ctx := context.Background()
	id := f.register(t, "alice", "alice@x.com", "pw12345678")
	res := f.login(t, "alice", "pw12345678")

	require.NoError(t, f.svc.ChangePassword(ctx, id, ChangePasswordRequest{
		Current: "pw12345678", New: "newpw12345678", Confirm: "newpw12345678",
	}))

	_, err := f.svc.RefreshToken(ctx, res.RefreshToken)
	require.NoError(t, err)
}

func TestChangePassword_FailuresLeaveHashUntouched(t *testing.T) {
	tests := []struct {
		name string
		req  ChangePasswordRequest
	}{
		{"mismatched confirmation", ChangePasswordRequest{Current: "pw12345678", New: "newpw12345678", Confirm: "other12345678"}},
		{"wrong current", ChangePasswordRequest{Current: "wrong-pass", New: "newpw12345678", Confirm: "newpw12345678"}},
		{"too short", ChangePasswordRequest{Current: "pw12345678", New: "short", Confirm: "short"}},
		{"over 72 bytes", ChangePasswordRequest{Current: "pw12345678", New: strings.Repeat("a", 80), Confirm: strings.Repeat("a", 80)}},
		{"blank", ChangePasswordRequest{Current: "pw12345678"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			id := f.register(t, "alice", "alice@x.com", "pw12345678")

			before, err := f.store.GetUser(ctx, id)
			require.NoError(t, err)

			err = f.svc.ChangePassword(ctx, id, tt.req)
			requireKind(t, err, apierror.KindBadRequest)

			after, err := f.store.GetUser(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, before.PasswordHash, after.PasswordHash)
		})
	}
}

func TestChangePassword_RevokesInTheSameWrite(t *testing.T) {
	// a separate token write would fail here
	f := newFixture(t, func(_ *config.Config, d *Dependencies) {
		d.Store = failingStore{MemoryDatabase: d.Store.(*database.MemoryDatabase), failSetToken: true}
	})
	ctx := context.Background()
	id := f.register(t, "alice", "alice@x.com", "pw12345678")
	res := f.login(t, "alice", "pw12345678")

	require.NoError(t, f.svc.ChangePassword(ctx, id, ChangePasswordRequest{
		Current: "pw12345678", New: "newpw12345678", Confirm: "newpw12345678",
	}))

	stored, err := f.store.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, stored.RefreshToken)
	assert.True(t, f.hasher.Verify("newpw12345678", stored.PasswordHash))

	_, err = f.svc.RefreshToken(ctx, res.RefreshToken)
	requireKind(t, err, apierror.KindUnauthorized)
}

func TestChangePassword_FailedWriteKeepsSession(t *testing.T) {
	f := newFixture(t, func(_ *config.Config, d *Dependencies) {
		d.Store = failingStore{MemoryDatabase: d.Store.(*database.MemoryDatabase), failUpdate: true}
	})
	ctx := context.Background()
	id := f.register(t, "alice", "alice@x.com", "pw12345678")
	res := f.login(t, "alice", "pw12345678")

	err := f.svc.ChangePassword(ctx, id, ChangePasswordRequest{
		Current: "pw12345678", New: "newpw12345678", Confirm: "newpw12345678",
	})
	requireKind(t, err, apierror.KindInternal)

	stored, err := f.store.GetUser(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored.RefreshToken)
	assert.Equal(t, res.RefreshToken, *stored.RefreshToken)
	assert.True(t, f.hasher.Verify("pw12345678", stored.PasswordHash))
}

func TestChangePassword_UnknownUser(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ChangePassword(context.Background(), uuid.New(), ChangePasswordRequest{
		Current: "pw12345678", New: "newpw12345678", Confirm: "newpw12345678",
	})
	requireKind(t, err, apierror.KindNotFound)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "alice", "alice@x.com", "pw12345678")
	res := f.login(t, "alice", "pw12345678")

	user, err := f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Empty(t, user.PasswordHash)
	assert.Nil(t, user.RefreshToken)

	ghost, err := f.tokens.GenerateAccess(uuid.NewString(), auth.Profile{})
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":         "",
		"refresh token": res.RefreshToken,
		"tampered":      res.AccessToken + "x",
		"unknown user":  ghost,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Authenticate(ctx, tok)
			requireKind(t, err, apierror.KindUnauthorized)
		})
	}
}

// TestAliceScenario walks register, login, bad login, tampered refresh and a
// password change end to end.
func TestAliceScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.register(t, "alice", "alice@x.com", "pw12345678")

	res := f.login(t, "alice@x.com", "pw12345678")
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Empty(t, res.User.PasswordHash)
	assert.Nil(t, res.User.RefreshToken)

	_, err := f.svc.Login(ctx, LoginRequest{Identifier: "alice@x.com", Password: "wrong-password"})
	requireKind(t, err, apierror.KindUnauthorized)

	_, err = f.svc.RefreshToken(ctx, tamper(res.RefreshToken))
	requireKind(t, err, apierror.KindUnauthorized)

	require.NoError(t, f.svc.ChangePassword(ctx, id, ChangePasswordRequest{
		Current: "pw12345678", New: "newpw12345678", Confirm: "newpw12345678",
	}))

	_, err = f.svc.Login(ctx, LoginRequest{Identifier: "alice@x.com", Password: "pw12345678"})
	requireKind(t, err, apierror.KindUnauthorized)

	f.login(t, "alice@x.com", "newpw12345678")
}

// tamper rewrites the first signature character, which always carries
// significant bits.
func tamper(token string) string {
	i := strings.LastIndex(token, ".") + 1
	c := byte('A')
	if token[i] == 'A' {
		c = 'B'
	}
	return token[:i] + string(c) + token[i+1:]
}
