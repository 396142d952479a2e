package quota

import "time"

// AdmitRequest サインアップ枠の消費リクエスト
type AdmitRequest struct {
	UserID string
}

// AdmitResponse サインアップ枠の消費レスポンス
type AdmitResponse struct {
	WeekStartDate   time.Time
	AccountsCreated int
	Remaining       int
}

// StatusRequest 週次枠の状態取得リクエスト
type StatusRequest struct {
	At time.Time // ゼロ値なら現在時刻の週
}

// StatusResponse 週次枠の状態取得レスポンス
type StatusResponse struct {
	WeekStartDate   time.Time
	AccountsCreated int
	Cap             int
	Remaining       int
	LimitReached    bool
}
