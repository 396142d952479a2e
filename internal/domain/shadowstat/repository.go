package shadowstat

import (
	"context"
	"database/sql"
)

// ShadowStatRepository シャドウ統計リポジトリインターフェース
type ShadowStatRepository interface {
	// FindByUserID ユーザーIDでシャドウ統計を取得
	FindByUserID(ctx context.Context, tx *sql.Tx, userID string) (*ShadowStat, error)

	// FindAllWithXPToday xp_earned_today > 0 の行をすべて取得（リセット/警告バッチ用）
	FindAllWithXPToday(ctx context.Context, tx *sql.Tx) ([]*ShadowStat, error)

	// Save シャドウ統計を保存（更新、楽観的ロック対応）
	// バージョン不一致の場合はErrConcurrencyConflictを返す
	Save(ctx context.Context, tx *sql.Tx, stat *ShadowStat) error

	// Create 新しいシャドウ統計を作成
	Create(ctx context.Context, tx *sql.Tx, stat *ShadowStat) error
}

// ProcessedTradeRepository 処理済みトレードの記録リポジトリインターフェース
// XP付与の有無にかかわらず、トレードIDごとに一度しか処理しないための台帳
type ProcessedTradeRepository interface {
	// Mark トレードを処理済みとして記録する
	// 既に記録済みの場合はErrDuplicateTradeを返す
	Mark(ctx context.Context, tx *sql.Tx, tradeID, userID string) error
}
