package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/rusikfsk/unichat/internal/domain"
)

// GormRepository implements Repository using GORM.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new GORM-based repository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates or updates the chat tables.
func (r *GormRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(domain.Models()...)
}

// Transaction runs fn inside a database transaction. Nested calls use savepoints.
func (r *GormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx})
	})
}

func (r *GormRepository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// translate maps driver errors onto repository sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicate(err):
		return ErrConflict
	default:
		return err
	}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "Duplicate entry")
}
