package handler

import "time"

// ShadowStatsResponse シャドウ統計レスポンス
type ShadowStatsResponse struct {
	UserID              string     `json:"user_id"`
	XPEarnedToday       int64      `json:"xp_earned_today"`
	TradesExecutedToday int        `json:"trades_executed_today"`
	WinsToday           int        `json:"wins_today"`
	LossesToday         int        `json:"losses_today"`
	TotalResets         int        `json:"total_resets"`
	LastResetAt         *time.Time `json:"last_reset_at,omitempty"`
}

// ConversionRecordResponse コンバージョン記録レスポンス
type ConversionRecordResponse struct {
	UserID             string     `json:"user_id"`
	PressPassStartDate time.Time  `json:"press_pass_start_date"`
	PressPassEndDate   *time.Time `json:"press_pass_end_date,omitempty"`
	EnlistedAfter      bool       `json:"enlisted_after"`
	EnlistedDate       *time.Time `json:"enlisted_date,omitempty"`
	EnlistedTier       *string    `json:"enlisted_tier,omitempty"`
	TimeToEnlistDays   *int       `json:"time_to_enlist_days,omitempty"`
	XPPreserved        *int64     `json:"xp_preserved,omitempty"`
	Source             string     `json:"source,omitempty"`
	Campaign           string     `json:"campaign,omitempty"`
}
