package ledger

import "time"

// CreditRequest XP加算リクエスト
type CreditRequest struct {
	UserID        string
	Kind          string // "earn", "bonus", "refund"
	Amount        int64
	TransactionID string // 空なら自動生成。同一IDの再送は無視される
	Description   string
	Metadata      map[string]interface{}
}

// CreditResponse XP加算レスポンス
type CreditResponse struct {
	TransactionID string
	BalanceAfter  int64
	Duplicate     bool // 既に適用済みのIDだった場合true
}

// SpendRequest XP消費リクエスト
type SpendRequest struct {
	UserID        string
	Amount        int64
	TransactionID string
	Description   string
	Metadata      map[string]interface{}
}

// SpendResponse XP消費レスポンス
type SpendResponse struct {
	TransactionID string
	BalanceAfter  int64
	Duplicate     bool
}

// GetBalanceRequest 残高取得リクエスト
type GetBalanceRequest struct {
	UserID string
}

// GetBalanceResponse 残高取得レスポンス
type GetBalanceResponse struct {
	UserID         string
	CurrentBalance int64
	LifetimeEarned int64
	LifetimeSpent  int64
	PrestigeLevel  int
}

// ListTransactionsRequest トランザクション履歴取得リクエスト
type ListTransactionsRequest struct {
	UserID string
	Kind   string // 空なら全種別
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// TransactionItem トランザクション履歴の1件
type TransactionItem struct {
	TransactionID string
	Kind          string
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	Description   string
	CreatedAt     time.Time
}

// ListTransactionsResponse トランザクション履歴取得レスポンス
type ListTransactionsResponse struct {
	UserID       string
	Transactions []TransactionItem
}
