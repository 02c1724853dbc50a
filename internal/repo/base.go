package repo

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// ContextWithTx binds tx to ctx so every repository call made with that ctx joins the transaction.
func ContextWithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFromContext(ctx context.Context) (*gorm.DB, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return tx, ok && tx != nil
}

// Base provides a shared foundation for domain repositories.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the transaction bound to ctx, or the pool connection scoped to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}
