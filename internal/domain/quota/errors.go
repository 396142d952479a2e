package quota

import "errors"

var (
	// ErrQuotaExceeded 週次サインアップ上限到達
	// システム障害ではなく、正常な拒否結果
	ErrQuotaExceeded = errors.New("weekly signup quota exceeded")
	// ErrQuotaNotFound 週次カウンターが見つからないエラー
	ErrQuotaNotFound = errors.New("weekly quota not found")
)
