package reset

import "time"

// WarnRequest リセット警告送信リクエスト
type WarnRequest struct {
	ThresholdMinutes int // リセットまでの残り分数（60, 15 など）
}

// WarnResponse リセット警告送信レスポンス
type WarnResponse struct {
	WarnedUsers  int // 今回新たに警告を送ったユーザー数
	SkippedUsers int // 送信済みでスキップしたユーザー数
}

// NightlyResetResponse 夜間リセット実行レスポンス
type NightlyResetResponse struct {
	ResetDate     string // リセット対象のUTC日付 (YYYY-MM-DD)
	AffectedUsers int
	TotalXPBurned int64
	AlreadyDone   bool // 当日分が実行済みだった場合true
}

// JobHistoryRequest ジョブ実行履歴取得リクエスト
type JobHistoryRequest struct {
	JobName string
	From    time.Time
	To      time.Time
	Limit   int
}

// JobHistoryItem ジョブ実行履歴の1件
type JobHistoryItem struct {
	JobName         string
	ExecutedAt      time.Time
	Success         bool
	RecordsAffected int
	ErrorMessage    string
}

// JobHistoryResponse ジョブ実行履歴取得レスポンス
type JobHistoryResponse struct {
	Executions []JobHistoryItem
}
