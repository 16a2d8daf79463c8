package identity

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venueattend/internal/model"
)

func newRepoWithMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db), mock
}

func TestRecordFailedAttempt_SingleAtomicUpdate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	lockUntil := time.Date(2026, 3, 7, 8, 30, 0, 0, time.UTC)

	q := `(?s)^\s*UPDATE\s+members\s+SET\s+failed_attempts\s*=\s*CASE.*locked_until\s*=\s*CASE.*WHERE\s+id\s*=\s*\$1\s+RETURNING\s+failed_attempts,\s*locked_until\s*$`
	mock.ExpectQuery(q).
		WithArgs("m-1", 5, lockUntil).
		WillReturnRows(sqlmock.NewRows([]string{"failed_attempts", "locked_until"}).AddRow(0, lockUntil))

	l, err := repo.RecordFailedAttempt(context.Background(), "m-1", 5, lockUntil)
	require.NoError(t, err)
	assert.Equal(t, 0, l.FailedAttempts)
	require.NotNil(t, l.LockedUntil)
	assert.Equal(t, lockUntil, *l.LockedUntil)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailedAttempt_UnknownMember(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`UPDATE\s+members`).WillReturnError(sql.ErrNoRows)

	_, err := repo.RecordFailedAttempt(context.Background(), "ghost", 5, time.Now())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestGetByCode(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "code", "full_name", "email", "phone", "active", "is_admin", "password_hash",
		"pin_hash", "template", "failed_attempts", "locked_until", "created_at", "updated_at"}

	mock.ExpectQuery(`(?s)SELECT .* FROM members WHERE code = \$1`).
		WithArgs("NY/1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("m-1", "NY/1", "Ada", "ada@example.com", nil, true, false, "ph", "pin", nil, 2, nil, created, created))

	m, err := repo.GetByCode(context.Background(), "NY/1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", m.ID)
	assert.Nil(t, m.Phone)
	assert.Equal(t, 2, m.FailedAttempts)
	assert.Nil(t, m.LockedUntil)

	mock.ExpectQuery(`(?s)SELECT .* FROM members WHERE code = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByCode(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestResetFailedAttempts(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)UPDATE members SET failed_attempts = 0, locked_until = NULL`).
		WithArgs("m-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.ResetFailedAttempts(context.Background(), "m-1"))

	mock.ExpectExec(`(?s)UPDATE members SET failed_attempts = 0`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.ResetFailedAttempts(context.Background(), "ghost"), model.ErrNotFound)

	mock.ExpectExec(`(?s)UPDATE members SET failed_attempts = 0`).
		WithArgs("m-1").
		WillReturnError(errors.New("db down"))
	err := repo.ResetFailedAttempts(context.Background(), "m-1")
	assert.ErrorContains(t, err, "reset failed attempts: db down")
}

func TestCreate_Conflict(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`(?s)INSERT INTO members .* ON CONFLICT DO NOTHING`).
		WillReturnError(sql.ErrNoRows)

	err := repo.Create(context.Background(), &model.Member{Code: "NY/1", Email: "a@b.c"})
	assert.ErrorIs(t, err, model.ErrConflict)
}
