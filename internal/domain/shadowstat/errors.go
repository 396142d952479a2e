package shadowstat

import "errors"

var (
	// ErrShadowStatNotFound シャドウ統計が見つからないエラー
	ErrShadowStatNotFound = errors.New("shadow stat not found")
	// ErrConcurrencyConflict 楽観的ロックの競合（リトライ可能）
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrDuplicateTrade 同一trade_idの取引が処理済み
	ErrDuplicateTrade = errors.New("duplicate trade")
)
