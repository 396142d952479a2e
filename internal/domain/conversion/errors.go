package conversion

import "errors"

var (
	// ErrRecordNotFound ConversionRecordが見つからないエラー
	ErrRecordNotFound = errors.New("conversion record not found")
	// ErrAlreadyFinalized 既に確定済みの記録への再確定
	// at-least-once配信の重複イベントとして呼び出し側で無視する
	ErrAlreadyFinalized = errors.New("conversion record already finalized")
	// ErrDuplicateRecord 同一ユーザーの記録が既に存在するエラー
	ErrDuplicateRecord = errors.New("duplicate conversion record")
	// ErrConcurrencyConflict 楽観的ロックの競合（リトライ可能）
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)
