package transaction

import "errors"

var (
	// ErrInvalidKind 無効なトランザクション種別エラー
	ErrInvalidKind = errors.New("invalid transaction kind")
	// ErrDuplicateTransaction 重複トランザクションエラー
	// 同一トランザクションIDの再投入（at-least-once配信の2回目以降）を示す
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	// ErrTransactionNotFound トランザクションが見つからないエラー
	ErrTransactionNotFound = errors.New("transaction not found")
)
