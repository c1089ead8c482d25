package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/accounts/internal/models"
)

// MemoryDatabase is an in-process user store with the same semantics as
// Database. It backs STORE_DRIVER=memory and tests.
type MemoryDatabase struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*models.User
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{users: make(map[uuid.UUID]*models.User)}
}

func (m *MemoryDatabase) SaveUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.taken(uuid.Nil, user.Username, user.Email) {
		return ErrDuplicate
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	m.users[user.ID] = clone(user)
	return nil
}

func (m *MemoryDatabase) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (m *MemoryDatabase) FindUserByIdentity(_ context.Context, identifier string) (*models.User, error) {
	id := models.NormalizeIdentity(identifier)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Email == id || u.Username == id {
			return clone(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryDatabase) FindUserByUsernameOrEmail(_ context.Context, username, email string) (*models.User, error) {
	username = models.NormalizeIdentity(username)
	email = models.NormalizeIdentity(email)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			return clone(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryDatabase) UpdateUserFields(_ context.Context, id uuid.UUID, upd UserUpdate) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Email != nil && *upd.Email != u.Email && m.taken(id, "", *upd.Email) {
		return nil, ErrDuplicate
	}

	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = *upd.AvatarURL
	}
	if upd.CoverImageURL != nil {
		v := *upd.CoverImageURL
		u.CoverImageURL = &v
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.ClearRefreshToken {
		u.RefreshToken = nil
	}
	u.UpdatedAt = time.Now()

	return clone(u), nil
}

func (m *MemoryDatabase) SetRefreshToken(_ context.Context, id uuid.UUID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	if token == "" {
		u.RefreshToken = nil
	} else {
		u.RefreshToken = &token
	}
	return nil
}

func (m *MemoryDatabase) RotateRefreshToken(_ context.Context, id uuid.UUID, expected, next string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok || u.RefreshToken == nil || *u.RefreshToken != expected {
		return ErrTokenMismatch
	}
	u.RefreshToken = &next
	return nil
}

// taken reports whether another user already holds username or email.
// Caller must hold the lock.
func (m *MemoryDatabase) taken(self uuid.UUID, username, email string) bool {
	for id, u := range m.users {
		if id == self {
			continue
		}
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			return true
		}
	}
	return false
}

func clone(u *models.User) *models.User {
	c := *u
	if u.CoverImageURL != nil {
		v := *u.CoverImageURL
		c.CoverImageURL = &v
	}
	if u.RefreshToken != nil {
		v := *u.RefreshToken
		c.RefreshToken = &v
	}
	return &c
}
