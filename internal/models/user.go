package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type User struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"_id"`
	Username      string    `gorm:"uniqueIndex;not null" json:"username"`
	Email         string    `gorm:"uniqueIndex;not null" json:"email"`
	FullName      string    `gorm:"index;not null" json:"fullname"`
	AvatarURL     string    `gorm:"not null" json:"avatar"`
	CoverImageURL *string   `json:"coverImage"`
	PasswordHash  string    `gorm:"not null" json:"-"`
	RefreshToken  *string   `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Sanitized returns a copy without credential material.
func (u *User) Sanitized() *User {
	c := *u
	c.PasswordHash = ""
	c.RefreshToken = nil
	return &c
}

// StoredRefreshToken returns the current refresh token or "" when none is set.
func (u *User) StoredRefreshToken() string {
	if u.RefreshToken == nil {
		return ""
	}
	return *u.RefreshToken
}

// NormalizeIdentity canonicalizes usernames and emails: trimmed and lowercased.
func NormalizeIdentity(s string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}
