package quota

import (
	"context"
	"database/sql"
	"time"
)

// WeeklyQuotaRepository 週次カウンターリポジトリインターフェース
type WeeklyQuotaRepository interface {
	// EnsureWeek 週の行が存在することを保証する（なければカウンター0で作成）
	EnsureWeek(ctx context.Context, tx *sql.Tx, weekStartDate time.Time) error

	// IncrementIfBelowCap accounts_created < cap の場合のみアトミックに+1する
	// 加算できた場合はtrueを返す。行ロックにより同時サインアップは直列化される
	IncrementIfBelowCap(ctx context.Context, tx *sql.Tx, weekStartDate time.Time, cap int) (bool, error)

	// MarkLimitReached limit_reachedフラグを立てる（一度立てたら下ろさない）
	MarkLimitReached(ctx context.Context, tx *sql.Tx, weekStartDate time.Time) error

	// FindByWeekStart 週開始日でカウンターを取得
	FindByWeekStart(ctx context.Context, tx *sql.Tx, weekStartDate time.Time) (*WeeklyQuota, error)
}
