package conversion

import (
	"context"
	"database/sql"
	"time"
)

// FunnelStats コンバージョンファネルの集計値（レポート用）
type FunnelStats struct {
	TrialActive        int64
	Converted          int64
	ExpiredUnconverted int64
	AvgTimeToEnlist    float64 // 転換者の平均日数（転換者ゼロなら0）
}

// ConversionRecordRepository ConversionRecordリポジトリインターフェース
type ConversionRecordRepository interface {
	// FindByUserID ユーザーIDで記録を取得
	FindByUserID(ctx context.Context, tx *sql.Tx, userID string) (*ConversionRecord, error)

	// Create 新しい記録を作成
	// 同一ユーザーの記録が既に存在する場合はErrDuplicateRecordを返す
	Create(ctx context.Context, tx *sql.Tx, record *ConversionRecord) error

	// Save 記録を保存（更新、楽観的ロック対応）
	Save(ctx context.Context, tx *sql.Tx, record *ConversionRecord) error

	// MarkExpiredBefore 指定日時より前に開始し未確定のままの記録を一括で期限切れにする
	// 影響行数を返す
	MarkExpiredBefore(ctx context.Context, tx *sql.Tx, startedBefore, endedAt time.Time) (int64, error)

	// CountFunnel ファネル集計を取得（読み取り専用）
	CountFunnel(ctx context.Context) (*FunnelStats, error)

	// CountConvertedInRange 期間内に転換した件数を取得（読み取り専用）
	CountConvertedInRange(ctx context.Context, from, to time.Time) (int64, error)
}
