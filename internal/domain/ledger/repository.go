package ledger

import (
	"context"
	"database/sql"
)

// BalanceRepository XP残高リポジトリインターフェース
// txがnilでない場合、そのトランザクション内で実行される
type BalanceRepository interface {
	// FindByUserID ユーザーIDで残高を取得
	FindByUserID(ctx context.Context, tx *sql.Tx, userID string) (*Balance, error)

	// Save 残高を保存（更新、楽観的ロック対応）
	// バージョン不一致の場合はErrConcurrencyConflictを返す
	Save(ctx context.Context, tx *sql.Tx, balance *Balance) error

	// Create 新しい残高を作成
	Create(ctx context.Context, tx *sql.Tx, balance *Balance) error
}
