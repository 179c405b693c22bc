package db

import (
	"context"
	"database/sql"
)

// Database owns the lifecycle of a *sql.DB.
type Database interface {
	Connect(ctx context.Context) error
	Close() error
	DB() *sql.DB
}
