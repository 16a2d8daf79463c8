package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"venueattend/internal/model"
	"venueattend/internal/store"
)

const memberColumns = `id, code, full_name, email, phone, active, is_admin, password_hash, pin_hash,
		template, failed_attempts, locked_until, created_at, updated_at`

// Repository persists members in Postgres.
type Repository struct {
	db store.DBTX
}

// NewRepository creates a repo.
func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(row scanner) (*model.Member, error) {
	var m model.Member
	if err := row.Scan(&m.ID, &m.Code, &m.FullName, &m.Email, &m.Phone, &m.Active, &m.IsAdmin,
		&m.PasswordHash, &m.PINHash, &m.Template, &m.FailedAttempts, &m.LockedUntil,
		&m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) Create(ctx context.Context, m *model.Member) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO members (id, code, full_name, email, phone, active, is_admin, password_hash, pin_hash, template)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT DO NOTHING
		RETURNING created_at, updated_at
	`, m.ID, m.Code, m.FullName, m.Email, m.Phone, m.Active, m.IsAdmin, m.PasswordHash, m.PINHash, m.Template)
	if err := row.Scan(&m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("create member %s: %w", m.Code, model.ErrConflict)
		}
		return fmt.Errorf("create member: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*model.Member, error) {
	m, err := scanMember(r.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (r *Repository) GetByCode(ctx context.Context, code string) (*model.Member, error) {
	m, err := scanMember(r.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get member by code: %w", err)
	}
	return m, nil
}

func (r *Repository) RecordFailedAttempt(ctx context.Context, id string, threshold int, lockUntil time.Time) (model.Lockout, error) {
	var l model.Lockout
	err := r.db.QueryRowContext(ctx, `
		UPDATE members SET
			failed_attempts = CASE WHEN failed_attempts + 1 >= $2 THEN 0 ELSE failed_attempts + 1 END,
			locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING failed_attempts, locked_until
	`, id, threshold, lockUntil).Scan(&l.FailedAttempts, &l.LockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Lockout{}, model.ErrNotFound
		}
		return model.Lockout{}, fmt.Errorf("record failed attempt: %w", err)
	}
	return l, nil
}

func (r *Repository) ResetFailedAttempts(ctx context.Context, id string) error {
	return r.exec(ctx, "reset failed attempts", `
		UPDATE members SET failed_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`, id)
}

func (r *Repository) UpdatePIN(ctx context.Context, id, pinHash string) error {
	return r.exec(ctx, "update pin", `UPDATE members SET pin_hash = $2, updated_at = NOW() WHERE id = $1`, id, pinHash)
}

func (r *Repository) SetTemplate(ctx context.Context, id string, template []byte) error {
	return r.exec(ctx, "set template", `UPDATE members SET template = $2, updated_at = NOW() WHERE id = $1`, id, template)
}

func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	return r.exec(ctx, "set active", `UPDATE members SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
}

func (r *Repository) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context) ([]model.Member, error) {
	return r.list(ctx, `SELECT `+memberColumns+` FROM members ORDER BY code`)
}

func (r *Repository) ListWithTemplates(ctx context.Context) ([]model.Member, error) {
	return r.list(ctx, `SELECT `+memberColumns+` FROM members WHERE active AND template IS NOT NULL ORDER BY code`)
}

func (r *Repository) list(ctx context.Context, query string) ([]model.Member, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	var res []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		res = append(res, *m)
	}
	return res, rows.Err()
}

func (r *Repository) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members WHERE active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active members: %w", err)
	}
	return n, nil
}
