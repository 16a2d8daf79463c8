package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"venueattend/internal/model"
	"venueattend/internal/store"
)

const uniqueViolation = "23505"

const attendanceColumns = `id, member_id, location_id, COALESCE(schedule_id::text, ''), check_in_time, check_out_time,
		to_char(attendance_date, 'YYYY-MM-DD'), recognition_method, confidence_score, status, notes,
		verified_by_admin, admin_notes, created_at, updated_at`

// Repository persists attendance in Postgres. The unique index
// attendance_member_location_date_uniq backs the one-record-per-slot rule.
type Repository struct {
	db store.DBTX
}

func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttendance(row scanner) (*model.Attendance, error) {
	var (
		a          model.Attendance
		scheduleID string
		date       string
	)
	if err := row.Scan(&a.ID, &a.MemberID, &a.LocationID, &scheduleID, &a.CheckIn, &a.CheckOut, &date,
		&a.Method, &a.Confidence, &a.Status, &a.Notes, &a.VerifiedByAdmin, &a.AdminNotes,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if scheduleID != "" {
		a.ScheduleID = &scheduleID
	}
	d, err := model.ParseDate(date)
	if err != nil {
		return nil, err
	}
	a.Date = d
	return &a, nil
}

func (r *Repository) Existing(ctx context.Context, memberID, locationID string, date model.Date) (*model.Attendance, error) {
	a, err := scanAttendance(r.db.QueryRowContext(ctx, `SELECT `+attendanceColumns+` FROM attendance
		WHERE member_id = $1 AND location_id = $2 AND attendance_date = $3::date`,
		memberID, locationID, date.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("existing attendance: %w", err)
	}
	return a, nil
}

func (r *Repository) Insert(ctx context.Context, rec *model.Attendance) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, member_id, location_id, schedule_id, check_in_time, attendance_date,
			recognition_method, confidence_score, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6::date,$7,$8,$9,$10)
		ON CONFLICT (member_id, location_id, attendance_date) DO NOTHING
		RETURNING created_at, updated_at
	`, rec.ID, rec.MemberID, rec.LocationID, rec.ScheduleID, rec.CheckIn, rec.Date.String(),
		rec.Method, rec.Confidence, rec.Status, rec.Notes).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.Is(err, sql.ErrNoRows) && !(errors.As(err, &pgErr) && pgErr.Code == uniqueViolation) {
		return fmt.Errorf("insert attendance: %w", err)
	}
	existing, lookupErr := r.Existing(ctx, rec.MemberID, rec.LocationID, rec.Date)
	if lookupErr != nil {
		return &DuplicateError{}
	}
	return &DuplicateError{Existing: existing}
}

func (r *Repository) Get(ctx context.Context, id string) (*model.Attendance, error) {
	a, err := scanAttendance(r.db.QueryRowContext(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return a, nil
}

// where renders the filter as a WHERE clause with positional arguments.
func where(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.MemberID != "" {
		add("member_id = $%d", f.MemberID)
	}
	if f.LocationID != "" {
		add("location_id = $%d", f.LocationID)
	}
	if !f.From.IsZero() {
		add("attendance_date >= $%d::date", f.From.String())
	}
	if !f.To.IsZero() {
		add("attendance_date <= $%d::date", f.To.String())
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Method != "" {
		add("recognition_method = $%d", string(f.Method))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *Repository) Query(ctx context.Context, f Filter) ([]model.Attendance, error) {
	clause, args := where(f)
	query := `SELECT ` + attendanceColumns + ` FROM attendance` + clause + ` ORDER BY check_in_time DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()
	var res []model.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		res = append(res, *a)
	}
	return res, rows.Err()
}

func (r *Repository) Count(ctx context.Context, f Filter) (int, error) {
	clause, args := where(f)
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance`+clause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return n, nil
}

func (r *Repository) CheckOut(ctx context.Context, id string, at time.Time) (*model.Attendance, error) {
	a, err := scanAttendance(r.db.QueryRowContext(ctx, `
		UPDATE attendance SET check_out_time = $2, updated_at = NOW()
		WHERE id = $1 AND check_out_time IS NULL
		RETURNING `+attendanceColumns, id, at))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check out: %w", err)
	}
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrAlreadyCheckedOut
}

func (r *Repository) Annotate(ctx context.Context, id string, verified bool, adminNotes string) (*model.Attendance, error) {
	a, err := scanAttendance(r.db.QueryRowContext(ctx, `
		UPDATE attendance SET verified_by_admin = $2, admin_notes = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+attendanceColumns, id, verified, adminNotes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("annotate attendance: %w", err)
	}
	return a, nil
}

func (r *Repository) HasAttendance(ctx context.Context, locationID string, date model.Date) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM attendance WHERE location_id = $1 AND attendance_date = $2::date)`,
		locationID, date.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has attendance: %w", err)
	}
	return exists, nil
}
