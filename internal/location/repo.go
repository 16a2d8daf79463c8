package location

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"venueattend/internal/model"
	"venueattend/internal/store"
)

const locationColumns = `id, name, address, local_government, state, capacity, active, description, created_at, updated_at`

// Repository persists locations in Postgres.
type Repository struct {
	db store.DBTX
}

func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLocation(row scanner) (*model.Location, error) {
	var l model.Location
	if err := row.Scan(&l.ID, &l.Name, &l.Address, &l.LocalGovernment, &l.State, &l.Capacity,
		&l.Active, &l.Description, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *Repository) Create(ctx context.Context, l *model.Location) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO locations (id, name, address, local_government, state, capacity, active, description)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at
	`, l.ID, l.Name, l.Address, l.LocalGovernment, l.State, l.Capacity, l.Active, l.Description).
		Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create location: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*model.Location, error) {
	l, err := scanLocation(r.db.QueryRowContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	return l, nil
}

func (r *Repository) List(ctx context.Context, activeOnly bool) ([]model.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY state, local_government, name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()
	var res []model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		res = append(res, *l)
	}
	return res, rows.Err()
}

func (r *Repository) Update(ctx context.Context, l *model.Location) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE locations
		SET name = $2, address = $3, local_government = $4, state = $5, capacity = $6, description = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, l.ID, l.Name, l.Address, l.LocalGovernment, l.State, l.Capacity, l.Description).Scan(&l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		return fmt.Errorf("update location: %w", err)
	}
	return nil
}

func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE locations SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set location active: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("set location active rows affected: %w", err)
	} else if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM locations
		WHERE id = $1
		  AND NOT EXISTS (SELECT 1 FROM schedules WHERE location_id = $1 AND active)
	`, id)
	if err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete location rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("delete location existence check: %w", err)
	}
	if exists {
		return ErrLocationInUse
	}
	return model.ErrNotFound
}
