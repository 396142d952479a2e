package handler

import "time"

// AdmitRequest サインアップ許可リクエスト
type AdmitRequest struct {
	UserID string `json:"user_id"`
}

// AdmitResponse サインアップ許可レスポンス
type AdmitResponse struct {
	Admitted        bool      `json:"admitted"`
	WeekStartDate   time.Time `json:"week_start_date"`
	AccountsCreated int       `json:"accounts_created"`
	Remaining       int       `json:"remaining"`
}

// QuotaStatusResponse 週次枠の状態レスポンス
type QuotaStatusResponse struct {
	WeekStartDate   time.Time `json:"week_start_date"`
	AccountsCreated int       `json:"accounts_created"`
	Cap             int       `json:"cap"`
	Remaining       int       `json:"remaining"`
	LimitReached    bool      `json:"limit_reached"`
}
