package repository

import (
	"context"

	"SignalFlow/internal/domain/repository"

	"gorm.io/gorm"
)

type txKey struct{}

// GormTransactor implements repository.Transactor on a gorm connection.
type GormTransactor struct {
	db *gorm.DB
}

func NewGormTransactor(db *gorm.DB) repository.Transactor {
	return &GormTransactor{db: db}
}

// WithinTx commits only if fn returns nil. Nested calls join the outer
// transaction.
func (t *GormTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func txFrom(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return tx, ok
}

// conn returns the enclosing transaction if any, else the pool.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return db.WithContext(ctx)
}

// Tables lists the gorm models the stores need migrated.
func Tables() []interface{} {
	return []interface{}{&OutboxRecord{}, &SessionRecord{}}
}
