package mysql

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetWarningRepository_MarkWarned(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewResetWarningRepository(&DB{DB: db})
	warnDate := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("正常系: 初回の警告はtrue", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO reset_warnings`).
			WithArgs("user123", "2026-03-15", 60).
			WillReturnResult(sqlmock.NewResult(1, 1))

		got, err := repo.MarkWarned(context.Background(), "user123", warnDate, 60)
		require.NoError(t, err)
		assert.True(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("正常系: 送信済みならfalseでエラーなし", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO reset_warnings`).
			WithArgs("user123", "2026-03-15", 60).
			WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"})

		got, err := repo.MarkWarned(context.Background(), "user123", warnDate, 60)
		require.NoError(t, err)
		assert.False(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("異常系: DBエラー", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO reset_warnings`).
			WillReturnError(sql.ErrConnDone)

		got, err := repo.MarkWarned(context.Background(), "user123", warnDate, 60)
		assert.Error(t, err)
		assert.False(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResetWarningRepository_Unmark(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewResetWarningRepository(&DB{DB: db})
	warnDate := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("正常系: 警告の記録を取り消す", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM reset_warnings`).
			WithArgs("user123", "2026-03-15", 60).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Unmark(context.Background(), "user123", warnDate, 60)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("正常系: 記録がなくてもエラーにならない", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM reset_warnings`).
			WithArgs("ghost", "2026-03-15", 15).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Unmark(context.Background(), "ghost", warnDate, 15)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("異常系: DBエラー", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM reset_warnings`).
			WillReturnError(sql.ErrConnDone)

		err := repo.Unmark(context.Background(), "user123", warnDate, 60)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
