package transaction

import (
	"errors"
	"regexp"
	"time"
)

var (
	// ErrInvalidTransactionID トランザクションIDが無効
	ErrInvalidTransactionID = errors.New("invalid transaction id")
	// ErrInvalidUserID ユーザーIDが無効
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrInvalidAmount 金額が無効（ゼロ、または種別と符号が不一致）
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrAmountTooLarge 金額が大きすぎる
	ErrAmountTooLarge = errors.New("amount too large")
	// ErrBalanceMismatch balance_after != balance_before + amount
	ErrBalanceMismatch = errors.New("balance mismatch")
)

const (
	// MaxAmount 1回のトランザクションで扱える最大XP
	MaxAmount = 1_000_000_000
)

var (
	idRegex     = regexp.MustCompile(`^[a-zA-Z0-9_\-\.\@]{1,255}$`)
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.\@]{1,255}$`)
)

// Transaction XPトランザクションエンティティ（追記専用、書き込み後は不変）
// amountは符号付き: earn/bonus/refundは正、spend/resetは負
type Transaction struct {
	transactionID string
	userID        string
	kind          TransactionKind
	amount        int64
	balanceBefore int64
	balanceAfter  int64
	description   string
	metadata      map[string]interface{}
	createdAt     time.Time
}

// NewTransaction 新しいTransactionエンティティを作成
// 不変条件: balanceAfter = balanceBefore + amount、符号は種別と一致
func NewTransaction(
	transactionID string,
	userID string,
	kind TransactionKind,
	amount int64,
	balanceBefore int64,
	balanceAfter int64,
	description string,
	metadata map[string]interface{},
) (*Transaction, error) {
	if !idRegex.MatchString(transactionID) {
		return nil, ErrInvalidTransactionID
	}
	if !userIDRegex.MatchString(userID) {
		return nil, ErrInvalidUserID
	}
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if (amount > 0) != (kind.Sign() > 0) {
		return nil, ErrInvalidAmount
	}
	if amount > MaxAmount || amount < -MaxAmount {
		return nil, ErrAmountTooLarge
	}
	if balanceBefore < 0 || balanceAfter < 0 {
		return nil, ErrBalanceMismatch
	}
	if balanceAfter != balanceBefore+amount {
		return nil, ErrBalanceMismatch
	}

	return &Transaction{
		transactionID: transactionID,
		userID:        userID,
		kind:          kind,
		amount:        amount,
		balanceBefore: balanceBefore,
		balanceAfter:  balanceAfter,
		description:   description,
		metadata:      metadata,
		createdAt:     time.Now(),
	}, nil
}

// Reconstruct 永続化済みの行からTransactionを復元する（リポジトリ用）
func Reconstruct(
	transactionID string,
	userID string,
	kind TransactionKind,
	amount int64,
	balanceBefore int64,
	balanceAfter int64,
	description string,
	metadata map[string]interface{},
	createdAt time.Time,
) *Transaction {
	return &Transaction{
		transactionID: transactionID,
		userID:        userID,
		kind:          kind,
		amount:        amount,
		balanceBefore: balanceBefore,
		balanceAfter:  balanceAfter,
		description:   description,
		metadata:      metadata,
		createdAt:     createdAt,
	}
}

// TransactionID トランザクションIDを返す
func (t *Transaction) TransactionID() string {
	return t.transactionID
}

// UserID ユーザーIDを返す
func (t *Transaction) UserID() string {
	return t.userID
}

// Kind トランザクション種別を返す
func (t *Transaction) Kind() TransactionKind {
	return t.kind
}

// Amount 符号付き金額を返す
func (t *Transaction) Amount() int64 {
	return t.amount
}

// BalanceBefore 処理前の残高を返す
func (t *Transaction) BalanceBefore() int64 {
	return t.balanceBefore
}

// BalanceAfter 処理後の残高を返す
func (t *Transaction) BalanceAfter() int64 {
	return t.balanceAfter
}

// Description 摘要を返す
func (t *Transaction) Description() string {
	return t.description
}

// Metadata メタデータを返す
func (t *Transaction) Metadata() map[string]interface{} {
	return t.metadata
}

// CreatedAt 作成日時を返す
func (t *Transaction) CreatedAt() time.Time {
	return t.createdAt
}

// MustNewTransaction テスト用ヘルパー: NewTransactionを呼び出し、エラーが発生した場合はpanicする
func MustNewTransaction(
	transactionID string,
	userID string,
	kind TransactionKind,
	amount int64,
	balanceBefore int64,
	balanceAfter int64,
	description string,
	metadata map[string]interface{},
) *Transaction {
	t, err := NewTransaction(transactionID, userID, kind, amount, balanceBefore, balanceAfter, description, metadata)
	if err != nil {
		panic(err)
	}
	return t
}
