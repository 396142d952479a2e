package ledger

import (
	"errors"
	"regexp"
)

var (
	// ErrInvalidUserID ユーザーIDが無効
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrBalanceInvariantViolated 残高不変条件違反 (current != earned - spent)
	ErrBalanceInvariantViolated = errors.New("balance invariant violated")
	// ErrAmountTooLarge 金額が大きすぎる
	ErrAmountTooLarge = errors.New("amount too large")
)

const (
	// MaxAmount 1回のトランザクションで扱える最大XP
	MaxAmount = 1_000_000_000
)

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.\@]{1,255}$`)

// Balance XP残高エンティティ
// 不変条件: currentBalance = lifetimeEarned - lifetimeSpent、3値すべて非負
type Balance struct {
	userID         string
	currentBalance int64
	lifetimeEarned int64
	lifetimeSpent  int64
	prestigeLevel  int
	version        int // 楽観的ロック用
}

// NewBalance 新しいBalanceエンティティを作成
func NewBalance(userID string, currentBalance, lifetimeEarned, lifetimeSpent int64, prestigeLevel, version int) (*Balance, error) {
	if !userIDRegex.MatchString(userID) {
		return nil, ErrInvalidUserID
	}
	b := &Balance{
		userID:         userID,
		currentBalance: currentBalance,
		lifetimeEarned: lifetimeEarned,
		lifetimeSpent:  lifetimeSpent,
		prestigeLevel:  prestigeLevel,
		version:        version,
	}
	if err := b.CheckInvariant(); err != nil {
		return nil, err
	}
	return b, nil
}

// NewZeroBalance 初回トランザクション用にゼロ残高のBalanceを作成
func NewZeroBalance(userID string) (*Balance, error) {
	return NewBalance(userID, 0, 0, 0, 0, 0)
}

// UserID ユーザーIDを返す
func (b *Balance) UserID() string {
	return b.userID
}

// CurrentBalance 現在の残高を返す
func (b *Balance) CurrentBalance() int64 {
	return b.currentBalance
}

// LifetimeEarned 累計獲得XPを返す
func (b *Balance) LifetimeEarned() int64 {
	return b.lifetimeEarned
}

// LifetimeSpent 累計消費XPを返す
func (b *Balance) LifetimeSpent() int64 {
	return b.lifetimeSpent
}

// PrestigeLevel プレステージレベルを返す
func (b *Balance) PrestigeLevel() int {
	return b.prestigeLevel
}

// Version バージョンを返す（楽観的ロック用）
func (b *Balance) Version() int {
	return b.version
}

// Earn XPを加算する (earn/bonus/refundトランザクション用)
func (b *Balance) Earn(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > MaxAmount {
		return ErrAmountTooLarge
	}
	b.currentBalance += amount
	b.lifetimeEarned += amount
	b.version++
	return b.CheckInvariant()
}

// Spend XPを減算する (spend/resetトランザクション用)
// 残高を超える減算はErrInsufficientBalance
func (b *Balance) Spend(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > MaxAmount {
		return ErrAmountTooLarge
	}
	if b.currentBalance < amount {
		return ErrInsufficientBalance
	}
	b.currentBalance -= amount
	b.lifetimeSpent += amount
	b.version++
	return b.CheckInvariant()
}

// CheckInvariant 残高不変条件を検証する
// すべての書き込み経路で呼ばれる（ストレージエンジン任せにしない）
func (b *Balance) CheckInvariant() error {
	if b.currentBalance < 0 || b.lifetimeEarned < 0 || b.lifetimeSpent < 0 {
		return ErrBalanceInvariantViolated
	}
	if b.currentBalance != b.lifetimeEarned-b.lifetimeSpent {
		return ErrBalanceInvariantViolated
	}
	return nil
}

// MustNewBalance テスト用ヘルパー: NewBalanceを呼び出し、エラーが発生した場合はpanicする
func MustNewBalance(userID string, currentBalance, lifetimeEarned, lifetimeSpent int64, prestigeLevel, version int) *Balance {
	b, err := NewBalance(userID, currentBalance, lifetimeEarned, lifetimeSpent, prestigeLevel, version)
	if err != nil {
		panic(err)
	}
	return b
}
