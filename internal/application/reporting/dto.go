package reporting

import "time"

// UserOverviewRequest ユーザー概況取得リクエスト
type UserOverviewRequest struct {
	UserID string
}

// UserOverviewResponse ユーザー概況取得レスポンス
// 台帳・日次統計・コンバージョン記録を1つにまとめたもの
type UserOverviewResponse struct {
	UserID              string
	CurrentBalance      int64
	LifetimeEarned      int64
	LifetimeSpent       int64
	PrestigeLevel       int
	XPEarnedToday       int64
	TradesExecutedToday int
	WinsToday           int
	LossesToday         int
	TotalResets         int
	TrialStartDate      *time.Time
	TrialEndDate        *time.Time
	EnlistedAfter       bool
	EnlistedTier        *string
}

// ActivityRollupRequest 期間集計リクエスト
type ActivityRollupRequest struct {
	From time.Time
	To   time.Time
}

// KindRollup 種別ごとの集計
type KindRollup struct {
	Kind  string
	Count int64
	Total int64
}

// ActivityRollupResponse 期間集計レスポンス
type ActivityRollupResponse struct {
	From        time.Time
	To          time.Time
	ByKind      []KindRollup
	Conversions int64
}

// FunnelResponse コンバージョンファネルレスポンス
type FunnelResponse struct {
	TrialActive        int64
	Converted          int64
	ExpiredUnconverted int64
	ConversionRate     float64 // 確定済み記録に占める転換者の割合
	AvgTimeToEnlist    float64
}
