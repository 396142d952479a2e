// Package resetwarn リセット警告の送信済み記録を扱う
// 同一ユーザー・同一日・同一閾値の警告は一度しか送らない
package resetwarn

import (
	"context"
	"time"
)

// WarningLogRepository 警告送信ログリポジトリインターフェース
type WarningLogRepository interface {
	// MarkWarned 警告送信を記録する
	// 初回の記録ならtrue、既に記録済み（送信済み）ならfalseを返す
	MarkWarned(ctx context.Context, userID string, warnDate time.Time, thresholdMinutes int) (bool, error)

	// Unmark 警告送信の記録を取り消す
	// 配信に失敗したユーザーを次回の実行で再び対象にするために使う
	Unmark(ctx context.Context, userID string, warnDate time.Time, thresholdMinutes int) error
}
