package database

import "errors"

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicate     = errors.New("duplicate username or email")
	ErrTokenMismatch = errors.New("stored refresh token changed")
)
