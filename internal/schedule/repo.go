package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"venueattend/internal/model"
	"venueattend/internal/store"
)

const scheduleColumns = `id, location_id, to_char(schedule_date, 'YYYY-MM-DD'),
		to_char(start_time, 'HH24:MI:SS'), to_char(end_time, 'HH24:MI:SS'),
		activity_type, description, expected_attendees, active, cancelled, cancellation_reason,
		COALESCE(created_by::text, ''), created_at, updated_at`

// Repository persists schedules in Postgres.
type Repository struct {
	db store.DBTX
}

func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (*model.Schedule, error) {
	var (
		s                 model.Schedule
		date, start, end string
	)
	if err := row.Scan(&s.ID, &s.LocationID, &date, &start, &end, &s.ActivityType, &s.Description,
		&s.ExpectedAttendees, &s.Active, &s.Cancelled, &s.CancellationReason, &s.CreatedBy,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if s.Date, err = model.ParseDate(date); err != nil {
		return nil, err
	}
	if s.Start, err = model.ParseTimeOfDay(start); err != nil {
		return nil, err
	}
	if s.End, err = model.ParseTimeOfDay(end); err != nil {
		return nil, err
	}
	return &s, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *Repository) Create(ctx context.Context, s *model.Schedule) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO schedules (id, location_id, schedule_date, start_time, end_time, activity_type,
			description, expected_attendees, active, cancelled, cancellation_reason, created_by)
		VALUES ($1,$2,$3::date,$4::time,$5::time,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at
	`, s.ID, s.LocationID, s.Date.String(), s.Start.String(), s.End.String(), s.ActivityType,
		s.Description, s.ExpectedAttendees, s.Active, s.Cancelled, s.CancellationReason, nullable(s.CreatedBy)).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*model.Schedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return s, nil
}

func (r *Repository) Update(ctx context.Context, s *model.Schedule) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE schedules
		SET schedule_date = $2::date, start_time = $3::time, end_time = $4::time, activity_type = $5,
			description = $6, expected_attendees = $7, active = $8, cancelled = $9,
			cancellation_reason = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, s.ID, s.Date.String(), s.Start.String(), s.End.String(), s.ActivityType, s.Description,
		s.ExpectedAttendees, s.Active, s.Cancelled, s.CancellationReason).Scan(&s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

func (r *Repository) ForLocationOnDate(ctx context.Context, locationID string, date model.Date) ([]model.Schedule, error) {
	return r.list(ctx, `SELECT `+scheduleColumns+` FROM schedules
		WHERE location_id = $1 AND schedule_date = $2::date ORDER BY start_time, created_at`, locationID, date.String())
}

func (r *Repository) ListForDate(ctx context.Context, date model.Date) ([]model.Schedule, error) {
	return r.list(ctx, `SELECT `+scheduleColumns+` FROM schedules
		WHERE schedule_date = $1::date ORDER BY start_time, created_at`, date.String())
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]model.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()
	var res []model.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}

func (r *Repository) CountActiveForLocation(ctx context.Context, locationID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schedules WHERE location_id = $1 AND active`, locationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active schedules: %w", err)
	}
	return n, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM schedules s
		WHERE s.id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM attendance a
			WHERE a.location_id = s.location_id AND a.attendance_date = s.schedule_date
		  )
	`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete schedule rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schedules WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("delete schedule existence check: %w", err)
	}
	if exists {
		return ErrScheduleReferenced
	}
	return model.ErrNotFound
}
