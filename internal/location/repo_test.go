package location

import (
	"context"
	"errors"
	"testing"

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

const deleteGuarded = `(?s)DELETE FROM locations WHERE id = \$1 AND NOT EXISTS \(SELECT 1 FROM schedules WHERE location_id = \$1 AND active\)`

func TestRepositoryDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("deleted", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(deleteGuarded).WithArgs("loc-1").WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.Delete(ctx, "loc-1"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("in use", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(deleteGuarded).WithArgs("loc-1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs("loc-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		assert.ErrorIs(t, repo.Delete(ctx, "loc-1"), ErrLocationInUse)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(deleteGuarded).WithArgs("loc-1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs("loc-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		assert.ErrorIs(t, repo.Delete(ctx, "loc-1"), model.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(deleteGuarded).WillReturnError(errors.New("boom"))
		err := repo.Delete(ctx, "loc-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "delete location")
	})
}

func TestRepositoryGetNotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`SELECT .* FROM locations WHERE id = \$1`).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
