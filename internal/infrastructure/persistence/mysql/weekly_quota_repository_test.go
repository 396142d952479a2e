package mysql

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"press-pass-server/internal/domain/quota"
)

func TestWeeklyQuotaRepository_EnsureWeek(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewWeeklyQuotaRepository(&DB{DB: db})
	weekStart := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	t.Run("正常系: 行がなければ作成される", func(t *testing.T) {
		mock.ExpectExec(`INSERT IGNORE INTO weekly_quotas`).
			WithArgs(weekStart).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.EnsureWeek(context.Background(), nil, weekStart))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("正常系: 既に行があっても成功する", func(t *testing.T) {
		mock.ExpectExec(`INSERT IGNORE INTO weekly_quotas`).
			WithArgs(weekStart).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, repo.EnsureWeek(context.Background(), nil, weekStart))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("異常系: DBエラー", func(t *testing.T) {
		mock.ExpectExec(`INSERT IGNORE INTO weekly_quotas`).
			WillReturnError(sql.ErrConnDone)

		assert.Error(t, repo.EnsureWeek(context.Background(), nil, weekStart))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWeeklyQuotaRepository_IncrementIfBelowCap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewWeeklyQuotaRepository(&DB{DB: db})
	weekStart := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	t.Run("正常系: 上限未満なら加算できる", func(t *testing.T) {
		mock.ExpectExec(`UPDATE weekly_quotas`).
			WithArgs(weekStart, 200).
			WillReturnResult(sqlmock.NewResult(0, 1))

		admitted, err := repo.IncrementIfBelowCap(context.Background(), nil, weekStart, 200)
		require.NoError(t, err)
		assert.True(t, admitted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("正常系: 上限到達後は加算されない", func(t *testing.T) {
		mock.ExpectExec(`UPDATE weekly_quotas`).
			WithArgs(weekStart, 200).
			WillReturnResult(sqlmock.NewResult(0, 0))

		admitted, err := repo.IncrementIfBelowCap(context.Background(), nil, weekStart, 200)
		require.NoError(t, err)
		assert.False(t, admitted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("異常系: DBエラー", func(t *testing.T) {
		mock.ExpectExec(`UPDATE weekly_quotas`).
			WillReturnError(sql.ErrConnDone)

		admitted, err := repo.IncrementIfBelowCap(context.Background(), nil, weekStart, 200)
		assert.Error(t, err)
		assert.False(t, admitted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWeeklyQuotaRepository_MarkLimitReached(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewWeeklyQuotaRepository(&DB{DB: db})
	weekStart := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	t.Run("正常系: フラグを立てる", func(t *testing.T) {
		mock.ExpectExec(`UPDATE weekly_quotas`).
			WithArgs(weekStart).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkLimitReached(context.Background(), nil, weekStart))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("異常系: DBエラー", func(t *testing.T) {
		mock.ExpectExec(`UPDATE weekly_quotas`).
			WillReturnError(sql.ErrConnDone)

		assert.Error(t, repo.MarkLimitReached(context.Background(), nil, weekStart))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWeeklyQuotaRepository_FindByWeekStart(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewWeeklyQuotaRepository(&DB{DB: db})
	weekStart := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	t.Run("正常系: カウンターが見つかる", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"week_start_date", "accounts_created", "limit_reached"}).
			AddRow(weekStart, 42, false)
		mock.ExpectQuery(`SELECT week_start_date, accounts_created, limit_reached`).
			WithArgs(weekStart).
			WillReturnRows(rows)

		got, err := repo.FindByWeekStart(context.Background(), nil, weekStart)
		require.NoError(t, err)
		assert.True(t, got.WeekStartDate().Equal(weekStart))
		assert.Equal(t, 42, got.AccountsCreated())
		assert.False(t, got.LimitReached())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("異常系: 行のない週", func(t *testing.T) {
		mock.ExpectQuery(`SELECT week_start_date, accounts_created, limit_reached`).
			WithArgs(weekStart).
			WillReturnError(sql.ErrNoRows)

		got, err := repo.FindByWeekStart(context.Background(), nil, weekStart)
		assert.ErrorIs(t, err, quota.ErrQuotaNotFound)
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
