// Package messaging NATS JetStreamによるイベントの受信と配信を扱う
package messaging

import "time"

// 受信サブジェクト
const (
	SubjectTradeCompleted = "press_pass.trades.completed"
	SubjectTierChanged    = "press_pass.tiers.changed"
	SubjectTrialStarted   = "press_pass.trials.started"
)

// 配信サブジェクト
const (
	SubjectResetWarning        = "press_pass.events.reset_warning"
	SubjectNightlyResetSummary = "press_pass.events.nightly_reset_summary"
	SubjectConversionFinalized = "press_pass.events.conversion_finalized"
)

// TradeCompletedEvent 取引完了イベント（受信）
type TradeCompletedEvent struct {
	TradeID   string    `json:"trade_id"`
	UserID    string    `json:"user_id"`
	Tier      string    `json:"tier"`
	XPDelta   int64     `json:"xp_delta"`
	IsWin     bool      `json:"is_win"`
	Timestamp time.Time `json:"timestamp"`
}

// TierChangedEvent ティア変更イベント（受信）
// press_pass以外のティアへの変更はコンバージョン確定として扱う
type TierChangedEvent struct {
	UserID    string    `json:"user_id"`
	OldTier   string    `json:"old_tier"`
	NewTier   string    `json:"new_tier"`
	Timestamp time.Time `json:"timestamp"`
}

// TrialStartedEvent トライアル開始イベント（受信）
type TrialStartedEvent struct {
	UserID    string    `json:"user_id"`
	Source    string    `json:"source"`
	Campaign  string    `json:"campaign"`
	Timestamp time.Time `json:"timestamp"`
}

// ResetWarningEvent リセット警告イベント（配信）
type ResetWarningEvent struct {
	UserID           string    `json:"user_id"`
	XPToLose         int64     `json:"xp_to_lose"`
	ThresholdMinutes int       `json:"threshold_minutes"`
	Timestamp        time.Time `json:"timestamp"`
}

// NightlyResetSummaryEvent 夜間リセット完了サマリーイベント（配信）
type NightlyResetSummaryEvent struct {
	ResetDate     string    `json:"reset_date"`
	AffectedUsers int       `json:"affected_users"`
	TotalXPBurned int64     `json:"total_xp_burned"`
	Timestamp     time.Time `json:"timestamp"`
}

// ConversionFinalizedEvent コンバージョン確定イベント（配信）
type ConversionFinalizedEvent struct {
	UserID           string    `json:"user_id"`
	EnlistedTier     string    `json:"enlisted_tier"`
	TimeToEnlistDays int       `json:"time_to_enlist_days"`
	XPPreserved      int64     `json:"xp_preserved"`
	Timestamp        time.Time `json:"timestamp"`
}
