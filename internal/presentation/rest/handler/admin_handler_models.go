package handler

import "time"

// KindRollupItem 種別ごとの集計
type KindRollupItem struct {
	Kind  string `json:"kind"`
	Count int64  `json:"count"`
	Total int64  `json:"total"`
}

// ActivityReportResponse 期間集計レスポンス
type ActivityReportResponse struct {
	From        time.Time        `json:"from"`
	To          time.Time        `json:"to"`
	ByKind      []KindRollupItem `json:"by_kind"`
	Conversions int64            `json:"conversions"`
}

// FunnelReportResponse コンバージョンファネルレスポンス
type FunnelReportResponse struct {
	TrialActive        int64   `json:"trial_active"`
	Converted          int64   `json:"converted"`
	ExpiredUnconverted int64   `json:"expired_unconverted"`
	ConversionRate     float64 `json:"conversion_rate"`
	AvgTimeToEnlist    float64 `json:"avg_time_to_enlist_days"`
}

// UserOverviewResponse ユーザー概況レスポンス
type UserOverviewResponse struct {
	UserID              string     `json:"user_id"`
	CurrentBalance      int64      `json:"current_balance"`
	LifetimeEarned      int64      `json:"lifetime_earned"`
	LifetimeSpent       int64      `json:"lifetime_spent"`
	PrestigeLevel       int        `json:"prestige_level"`
	XPEarnedToday       int64      `json:"xp_earned_today"`
	TradesExecutedToday int        `json:"trades_executed_today"`
	WinsToday           int        `json:"wins_today"`
	LossesToday         int        `json:"losses_today"`
	TotalResets         int        `json:"total_resets"`
	TrialStartDate      *time.Time `json:"trial_start_date,omitempty"`
	TrialEndDate        *time.Time `json:"trial_end_date,omitempty"`
	EnlistedAfter       bool       `json:"enlisted_after"`
	EnlistedTier        *string    `json:"enlisted_tier,omitempty"`
}

// JobExecutionItem ジョブ実行履歴の1件
type JobExecutionItem struct {
	JobName         string    `json:"job_name"`
	ExecutedAt      time.Time `json:"executed_at"`
	Success         bool      `json:"success"`
	RecordsAffected int       `json:"records_affected"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}

// JobHistoryResponse ジョブ実行履歴レスポンス
type JobHistoryResponse struct {
	Executions []JobExecutionItem `json:"executions"`
}

// TriggerJobResponse ジョブ手動実行レスポンス
type TriggerJobResponse struct {
	JobName         string `json:"job_name"`
	RecordsAffected int64  `json:"records_affected"`
	AlreadyDone     bool   `json:"already_done,omitempty"`
}
