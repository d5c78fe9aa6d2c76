package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jukebox-rooms/internal/errs"
)

// Repository is the find/insert/update/delete capability set for one entity
// type.
type Repository[T any] struct {
	db *gorm.DB
}

func NewRepository[T any](db *gorm.DB) *Repository[T] {
	return &Repository[T]{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository[T]) WithTx(tx *gorm.DB) *Repository[T] {
	return &Repository[T]{db: tx}
}

func (r *Repository[T]) model(ctx context.Context) *gorm.DB {
	var zero T
	return r.db.WithContext(ctx).Model(&zero)
}

func (r *Repository[T]) Find(ctx context.Context, order string, query any, args ...any) ([]T, error) {
	var out []T
	tx := r.db.WithContext(ctx).Where(query, args...)
	if order != "" {
		tx = tx.Order(order)
	}
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository[T]) First(ctx context.Context, query any, args ...any) (*T, error) {
	var out T
	if err := r.db.WithContext(ctx).Where(query, args...).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Wrap(errs.KindNotFound, err, "record not found")
		}
		return nil, err
	}
	return &out, nil
}

func (r *Repository[T]) Insert(ctx context.Context, items ...*T) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(items, 100).Error
}

// Upsert inserts item or, when the unique key in conflict already exists,
// overwrites the given columns.
func (r *Repository[T]) Upsert(ctx context.Context, item *T, conflict []string, update []string) error {
	columns := make([]clause.Column, len(conflict))
	for i, c := range conflict {
		columns[i] = clause.Column{Name: c}
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   columns,
		DoUpdates: clause.AssignmentColumns(update),
	}).Create(item).Error
}

func (r *Repository[T]) Update(ctx context.Context, values map[string]any, query any, args ...any) (int64, error) {
	res := r.model(ctx).Where(query, args...).Updates(values)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *Repository[T]) Delete(ctx context.Context, query any, args ...any) (int64, error) {
	var zero T
	res := r.db.WithContext(ctx).Where(query, args...).Delete(&zero)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete: %w", res.Error)
	}
	return res.RowsAffected, nil
}
