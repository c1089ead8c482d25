package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Database is the postgres-backed user store.
type Database struct {
	db *gorm.DB
}

// Ping checks that the underlying connection pool can reach postgres.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}
