package conversion

import "time"

// TrialStartRequest トライアル開始リクエスト
type TrialStartRequest struct {
	UserID   string
	Source   string
	Campaign string
	At       time.Time // ゼロ値なら現在時刻
}

// TrialStartResponse トライアル開始レスポンス
type TrialStartResponse struct {
	Duplicate bool // 既に記録が存在した場合true
}

// TierChangeRequest ティア変更リクエスト
type TierChangeRequest struct {
	UserID  string
	OldTier string
	NewTier string
}

// TierChangeResponse ティア変更レスポンス
type TierChangeResponse struct {
	Finalized   bool  // 今回の呼び出しで確定した場合true
	XPPreserved int64 // 確定時に保全されたXP（ボーナス込み）
}

// SweepExpiredResponse 期限切れスイープレスポンス
type SweepExpiredResponse struct {
	ExpiredRecords int64
}

// GetRecordRequest コンバージョン記録取得リクエスト
type GetRecordRequest struct {
	UserID string
}

// GetRecordResponse コンバージョン記録取得レスポンス
type GetRecordResponse struct {
	UserID             string
	PressPassStartDate time.Time
	PressPassEndDate   *time.Time
	EnlistedAfter      bool
	EnlistedDate       *time.Time
	EnlistedTier       *string
	TimeToEnlistDays   *int
	XPPreserved        *int64
	Source             string
	Campaign           string
}
