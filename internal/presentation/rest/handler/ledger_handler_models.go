package handler

import "time"

// BalanceResponse 残高レスポンス
type BalanceResponse struct {
	UserID         string `json:"user_id"`
	CurrentBalance int64  `json:"current_balance"`
	LifetimeEarned int64  `json:"lifetime_earned"`
	LifetimeSpent  int64  `json:"lifetime_spent"`
	PrestigeLevel  int    `json:"prestige_level"`
}

// TransactionItem トランザクション履歴の1件
type TransactionItem struct {
	TransactionID string    `json:"transaction_id"`
	Kind          string    `json:"kind"`
	Amount        int64     `json:"amount"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

// TransactionHistoryResponse トランザクション履歴レスポンス
type TransactionHistoryResponse struct {
	UserID       string            `json:"user_id"`
	Transactions []TransactionItem `json:"transactions"`
}

// ManualTransactionRequest 手動トランザクションリクエスト（管理API用）
type ManualTransactionRequest struct {
	Kind          string                 `json:"kind"` // "bonus", "refund", "spend"
	Amount        int64                  `json:"amount"`
	TransactionID string                 `json:"transaction_id,omitempty"`
	Description   string                 `json:"description,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// ManualTransactionResponse 手動トランザクションレスポンス
type ManualTransactionResponse struct {
	TransactionID string `json:"transaction_id"`
	BalanceAfter  int64  `json:"balance_after"`
	Duplicate     bool   `json:"duplicate"`
}
