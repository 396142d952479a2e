package shadowstat

import "time"

// RecordTradeRequest 取引記録リクエスト
type RecordTradeRequest struct {
	TradeID string
	UserID  string
	XPDelta int64
	IsWin   bool
}

// RecordTradeResponse 取引記録レスポンス
type RecordTradeResponse struct {
	BalanceAfter  int64
	XPEarnedToday int64
	Duplicate     bool // 処理済みのトレードIDだった場合true
}

// GetStatsRequest シャドウ統計取得リクエスト
type GetStatsRequest struct {
	UserID string
}

// GetStatsResponse シャドウ統計取得レスポンス
type GetStatsResponse struct {
	UserID              string
	XPEarnedToday       int64
	TradesExecutedToday int
	WinsToday           int
	LossesToday         int
	TotalResets         int
	LastResetAt         *time.Time
}
