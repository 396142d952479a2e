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

	"press-pass-server/internal/domain/shadowstat"
)

func TestShadowStatRepository_FindByUserID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewShadowStatRepository(&DB{DB: db})
	lastReset := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("正常系: 統計が見つかる", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"user_id", "xp_earned_today", "trades_executed_today",
			"wins_today", "losses_today", "total_resets", "last_reset_at", "version",
		}).AddRow("user123", 80, 5, 3, 2, 4, lastReset, 12)
		mock.ExpectQuery(`SELECT user_id, xp_earned_today, trades_executed_today`).
			WithArgs("user123").
			WillReturnRows(rows)

		got, err := repo.FindByUserID(context.Background(), nil, "user123")
		require.NoError(t, err)
		assert.Equal(t, int64(80), got.XPEarnedToday())
		assert.Equal(t, 5, got.TradesExecutedToday())
		assert.Equal(t, 4, got.TotalResets())
		require.NotNil(t, got.LastResetAt())
		assert.True(t, got.LastResetAt().Equal(lastReset))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("正常系: last_reset_atがNULLでも復元できる", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"user_id", "xp_earned_today", "trades_executed_today",
			"wins_today", "losses_today", "total_resets", "last_reset_at", "version",
		}).AddRow("rookie", 25, 1, 1, 0, 0, nil, 1)
		mock.ExpectQuery(`SELECT user_id, xp_earned_today, trades_executed_today`).
			WithArgs("rookie").
			WillReturnRows(rows)

		got, err := repo.FindByUserID(context.Background(), nil, "rookie")
		require.NoError(t, err)
		assert.Nil(t, got.LastResetAt())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("異常系: 統計が見つからない", func(t *testing.T) {
		mock.ExpectQuery(`SELECT user_id, xp_earned_today, trades_executed_today`).
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		got, err := repo.FindByUserID(context.Background(), nil, "ghost")
		assert.ErrorIs(t, err, shadowstat.ErrShadowStatNotFound)
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestShadowStatRepository_FindAllWithXPToday(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewShadowStatRepository(&DB{DB: db})

	t.Run("正常系: 当日XPのあるユーザーだけが返る", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"user_id", "xp_earned_today", "trades_executed_today",
			"wins_today", "losses_today", "total_resets", "last_reset_at", "version",
		}).
			AddRow("userA", 60, 3, 2, 1, 0, nil, 3).
			AddRow("userB", 40, 1, 1, 0, 2, nil, 7)
		mock.ExpectQuery(`SELECT user_id, xp_earned_today, trades_executed_today`).
			WillReturnRows(rows)

		got, err := repo.FindAllWithXPToday(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "userA", got[0].UserID())
		assert.Equal(t, int64(40), got[1].XPEarnedToday())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("正常系: 対象がいなければ空", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"user_id", "xp_earned_today", "trades_executed_today",
			"wins_today", "losses_today", "total_resets", "last_reset_at", "version",
		})
		mock.ExpectQuery(`SELECT user_id, xp_earned_today, trades_executed_today`).
			WillReturnRows(rows)

		got, err := repo.FindAllWithXPToday(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestShadowStatRepository_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewShadowStatRepository(&DB{DB: db})

	t.Run("正常系: 統計を保存", func(t *testing.T) {
		stat := shadowstat.MustNewShadowStat("user123", 100, 3, 2, 1, 0, nil, 3)

		mock.ExpectExec(`UPDATE shadow_stats`).
			WithArgs(int64(100), 3, 2, 1, 0, nil, 3, "user123", 2).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Save(context.Background(), nil, stat))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("異常系: 楽観的ロック衝突", func(t *testing.T) {
		stat := shadowstat.MustNewShadowStat("user123", 100, 3, 2, 1, 0, nil, 3)

		mock.ExpectExec(`UPDATE shadow_stats`).
			WithArgs(int64(100), 3, 2, 1, 0, nil, 3, "user123", 2).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Save(context.Background(), nil, stat), shadowstat.ErrConcurrencyConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestShadowStatRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewShadowStatRepository(&DB{DB: db})

	t.Run("正常系: ゼロ統計を作成", func(t *testing.T) {
		stat, err := shadowstat.NewZeroShadowStat("rookie")
		require.NoError(t, err)

		mock.ExpectExec(`INSERT INTO shadow_stats`).
			WithArgs("rookie", int64(0), 0, 0, 0, 0, nil, 0).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Create(context.Background(), nil, stat))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("異常系: 並行する初回作成はErrConcurrencyConflict", func(t *testing.T) {
		stat, err := shadowstat.NewZeroShadowStat("rookie")
		require.NoError(t, err)

		mock.ExpectExec(`INSERT INTO shadow_stats`).
			WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"})

		assert.ErrorIs(t, repo.Create(context.Background(), nil, stat), shadowstat.ErrConcurrencyConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("異常系: DBエラー", func(t *testing.T) {
		stat, err := shadowstat.NewZeroShadowStat("rookie")
		require.NoError(t, err)

		mock.ExpectExec(`INSERT INTO shadow_stats`).
			WillReturnError(sql.ErrConnDone)

		assert.Error(t, repo.Create(context.Background(), nil, stat))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
