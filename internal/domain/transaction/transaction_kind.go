package transaction

import (
	"fmt"
)

// TransactionKind トランザクション種別を表す値オブジェクト
type TransactionKind string

const (
	TransactionKindEarn   TransactionKind = "earn"   // トレードによる獲得
	TransactionKindSpend  TransactionKind = "spend"  // 消費
	TransactionKindBonus  TransactionKind = "bonus"  // ボーナス付与
	TransactionKindRefund TransactionKind = "refund" // 返金（履歴の訂正は常にrefundで行う）
	TransactionKindReset  TransactionKind = "reset"  // 日次リセットによる焼却
)

// NewTransactionKind 新しいTransactionKindを作成
func NewTransactionKind(s string) (TransactionKind, error) {
	switch s {
	case "earn", "spend", "bonus", "refund", "reset":
		return TransactionKind(s), nil
	default:
		return "", fmt.Errorf("invalid transaction kind: %s", s)
	}
}

// String 文字列表現を返す
func (tk TransactionKind) String() string {
	return string(tk)
}

// Valid 有効なトランザクション種別かどうかを返す
func (tk TransactionKind) Valid() bool {
	switch tk {
	case TransactionKindEarn, TransactionKindSpend, TransactionKindBonus, TransactionKindRefund, TransactionKindReset:
		return true
	default:
		return false
	}
}

// Sign 種別に対応する金額の符号を返す (+1 or -1)
// earn/bonus/refundは正、spend/resetは負
func (tk TransactionKind) Sign() int {
	switch tk {
	case TransactionKindSpend, TransactionKindReset:
		return -1
	default:
		return 1
	}
}
