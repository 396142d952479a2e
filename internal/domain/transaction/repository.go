package transaction

import (
	"context"
	"database/sql"
	"time"
)

// ListFilter トランザクション履歴の検索条件
type ListFilter struct {
	Kind   *TransactionKind
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// KindSum 種別ごとの集計値（レポート用）
type KindSum struct {
	Kind  TransactionKind
	Count int64
	Total int64
}

// TransactionRepository XPトランザクションリポジトリインターフェース
type TransactionRepository interface {
	// Save トランザクションを保存（追記専用）
	// 同一IDの行が既に存在する場合はErrDuplicateTransactionを返す
	Save(ctx context.Context, tx *sql.Tx, t *Transaction) error

	// FindByTransactionID トランザクションIDでトランザクションを取得
	FindByTransactionID(ctx context.Context, transactionID string) (*Transaction, error)

	// FindByUserID ユーザーIDでトランザクション履歴を取得（新しい順）
	FindByUserID(ctx context.Context, userID string, filter ListFilter) ([]*Transaction, error)

	// SumByKindForRange 期間内の種別ごとの件数と合計を集計（読み取り専用）
	SumByKindForRange(ctx context.Context, from, to time.Time) ([]KindSum, error)
}
