package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/thereayou/accounts/internal/models"
	"gorm.io/gorm"
)

// UserUpdate is a partial update; nil fields are left untouched.
type UserUpdate struct {
	FullName      *string
	Email         *string
	AvatarURL     *string
	CoverImageURL *string
	PasswordHash  *string

	// ClearRefreshToken nulls the stored refresh token in the same write.
	ClearRefreshToken bool
}

func (u UserUpdate) columns() map[string]any {
	cols := make(map[string]any)
	if u.FullName != nil {
		cols["full_name"] = *u.FullName
	}
	if u.Email != nil {
		cols["email"] = *u.Email
	}
	if u.AvatarURL != nil {
		cols["avatar_url"] = *u.AvatarURL
	}
	if u.CoverImageURL != nil {
		cols["cover_image_url"] = *u.CoverImageURL
	}
	if u.PasswordHash != nil {
		cols["password_hash"] = *u.PasswordHash
	}
	if u.ClearRefreshToken {
		cols["refresh_token"] = nil
	}
	return cols
}

func (d *Database) SaveUser(ctx context.Context, user *models.User) error {
	if err := d.db.WithContext(ctx).Create(user).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (d *Database) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := models.User{}
	if err := d.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// FindUserByIdentity looks a user up by email or username.
func (d *Database) FindUserByIdentity(ctx context.Context, identifier string) (*models.User, error) {
	id := models.NormalizeIdentity(identifier)
	user := models.User{}
	if err := d.db.WithContext(ctx).Where("email = ? OR username = ?", id, id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (d *Database) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error) {
	user := models.User{}
	err := d.db.WithContext(ctx).
		Where("username = ? OR email = ?", models.NormalizeIdentity(username), models.NormalizeIdentity(email)).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// UpdateUserFields applies upd and returns the record as stored afterwards.
func (d *Database) UpdateUserFields(ctx context.Context, id uuid.UUID, upd UserUpdate) (*models.User, error) {
	cols := upd.columns()
	if len(cols) > 0 {
		res := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(cols)
		if res.Error != nil {
			return nil, translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return d.GetUser(ctx, id)
}

// SetRefreshToken overwrites the stored refresh token. An empty token clears it.
func (d *Database) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	var value any
	if token != "" {
		value = token
	}
	res := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("refresh_token", value)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateRefreshToken replaces expected with next only if expected is still
// the stored value.
func (d *Database) RotateRefreshToken(ctx context.Context, id uuid.UUID, expected, next string) error {
	res := d.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND refresh_token = ?", id, expected).
		Update("refresh_token", next)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTokenMismatch
	}
	return nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return fmt.Errorf("database: %w", err)
	}
}
