package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gitter-badger/urfiles/icons/domain"
	"github.com/gitter-badger/urfiles/shared/db"
)

var _ domain.IconRepository = (*SQLiteIconRepository)(nil)

// SQLiteIconRepository implements domain.IconRepository on top of SQLite.
// Every call joins the transaction carried by ctx, if any.
type SQLiteIconRepository struct {
	db *sql.DB
}

func NewIconRepository(sqlDB *sql.DB) *SQLiteIconRepository {
	return &SQLiteIconRepository{
		db: sqlDB,
	}
}

const upsertIconQuery = `
	INSERT INTO icons (service, name, format, size, width, height, hash, updated_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(service, name) DO UPDATE SET
		format = excluded.format,
		size = excluded.size,
		width = excluded.width,
		height = excluded.height,
		hash = excluded.hash,
		updated_at = excluded.updated_at,
		created_at = COALESCE(icons.created_at, excluded.created_at)
`

func (r *SQLiteIconRepository) SaveIcon(ctx context.Context, icon *domain.Icon) error {
	if icon == nil {
		return fmt.Errorf("icon cannot be nil")
	}

	if icon.Key.Service == "" || icon.Key.Name == "" {
		return fmt.Errorf("icon key cannot be empty")
	}

	var updatedAt any
	if !icon.UpdatedAt.IsZero() {
		updatedAt = icon.UpdatedAt
	}

	executor := db.GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, upsertIconQuery,
		icon.Key.Service,
		icon.Key.Name,
		icon.Format.String(),
		icon.Size,
		icon.Width,
		icon.Height,
		icon.Hash,
		updatedAt,
		icon.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert icon record: %w", err)
	}

	return nil
}

const getIconQuery = `
	SELECT service, name, format, size, width, height, hash, updated_at, created_at
	FROM icons
	WHERE service = ? AND name = ?
`

func (r *SQLiteIconRepository) GetIcon(ctx context.Context, key domain.Key) (*domain.Icon, error) {
	var row iconRow
	executor := db.GetExecutor(ctx, r.db)
	err := row.scan(executor.QueryRowContext(ctx, getIconQuery, key.Service, key.Name))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get icon: %w", err)
	}

	return row.toDomain()
}

const listIconsQuery = `
	SELECT service, name, format, size, width, height, hash, updated_at, created_at
	FROM icons
	WHERE service = ?
	ORDER BY name
`

func (r *SQLiteIconRepository) ListIcons(ctx context.Context, service string) ([]*domain.Icon, error) {
	executor := db.GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, listIconsQuery, service)
	if err != nil {
		return nil, fmt.Errorf("failed to list icons: %w", err)
	}
	defer rows.Close()

	icons := []*domain.Icon{}
	for rows.Next() {
		var row iconRow
		if err := row.scan(rows); err != nil {
			return nil, fmt.Errorf("failed to scan icon: %w", err)
		}

		icon, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		icons = append(icons, icon)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate icons: %w", err)
	}

	return icons, nil
}

const deleteIconQuery = `
	DELETE FROM icons WHERE service = ? AND name = ?
`

// DeleteIcon is a no-op for unknown keys.
func (r *SQLiteIconRepository) DeleteIcon(ctx context.Context, key domain.Key) error {
	executor := db.GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, deleteIconQuery, key.Service, key.Name); err != nil {
		return fmt.Errorf("failed to delete icon record: %w", err)
	}
	return nil
}

// iconRow is a private struct used to scan database rows
type iconRow struct {
	Service   string
	Name      string
	Format    string
	Size      int64
	Width     int
	Height    int
	Hash      string
	UpdatedAt sql.NullTime
	CreatedAt sql.NullTime
}

type scanner interface {
	Scan(dest ...any) error
}

func (ir *iconRow) scan(s scanner) error {
	return s.Scan(
		&ir.Service,
		&ir.Name,
		&ir.Format,
		&ir.Size,
		&ir.Width,
		&ir.Height,
		&ir.Hash,
		&ir.UpdatedAt,
		&ir.CreatedAt,
	)
}

func (ir *iconRow) toDomain() (*domain.Icon, error) {
	format, ok := domain.ParseFormat(ir.Format)
	if !ok {
		return nil, fmt.Errorf("unknown format %q for icon %s/%s", ir.Format, ir.Service, ir.Name)
	}

	icon := &domain.Icon{
		Key:    domain.Key{Service: ir.Service, Name: ir.Name},
		Format: format,
		Size:   ir.Size,
		Width:  ir.Width,
		Height: ir.Height,
		Hash:   ir.Hash,
	}

	if ir.UpdatedAt.Valid {
		icon.UpdatedAt = ir.UpdatedAt.Time
	}
	if ir.CreatedAt.Valid {
		icon.CreatedAt = ir.CreatedAt.Time
	}

	return icon, nil
}
