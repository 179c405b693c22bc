package persistence

import (
	"context"
	"database/sql"

	"github.com/gitter-badger/urfiles/icons/domain"
	"github.com/gitter-badger/urfiles/shared/db"
)

var _ domain.Transactor = (*SQLTransactor)(nil)

// SQLTransactor lets the application layer group repository calls and file
// operations in a single database transaction.
type SQLTransactor struct {
	db *sql.DB
}

func NewTransactor(sqlDB *sql.DB) *SQLTransactor {
	return &SQLTransactor{db: sqlDB}
}

func (t *SQLTransactor) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.RunInTransaction(ctx, t.db, fn)
}
