package ledger

import "errors"

var (
	// ErrInsufficientBalance 残高不足エラー
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAmount 無効な金額エラー
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrBalanceNotFound 残高が見つからないエラー
	ErrBalanceNotFound = errors.New("balance not found")
	// ErrConcurrencyConflict 楽観的ロックの競合（リトライ可能）
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)
