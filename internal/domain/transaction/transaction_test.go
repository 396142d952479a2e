package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransactionKind(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      TransactionKind
		wantError bool
	}{
		{name: "正常系: earn", input: "earn", want: TransactionKindEarn},
		{name: "正常系: spend", input: "spend", want: TransactionKindSpend},
		{name: "正常系: bonus", input: "bonus", want: TransactionKindBonus},
		{name: "正常系: refund", input: "refund", want: TransactionKindRefund},
		{name: "正常系: reset", input: "reset", want: TransactionKindReset},
		{name: "異常系: 未知の種別", input: "grant", wantError: true},
		{name: "異常系: 空文字", input: "", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewTransactionKind(tt.input)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestTransactionKind_Sign(t *testing.T) {
	assert.Equal(t, 1, TransactionKindEarn.Sign())
	assert.Equal(t, 1, TransactionKindBonus.Sign())
	assert.Equal(t, 1, TransactionKindRefund.Sign())
	assert.Equal(t, -1, TransactionKindSpend.Sign())
	assert.Equal(t, -1, TransactionKindReset.Sign())
}

func TestNewTransaction(t *testing.T) {
	tests := []struct {
		name          string
		transactionID string
		userID        string
		kind          TransactionKind
		amount        int64
		balanceBefore int64
		balanceAfter  int64
		wantError     error
	}{
		{
			name:          "正常系: earnトランザクション",
			transactionID: "trade_t1",
			userID:        "user123",
			kind:          TransactionKindEarn,
			amount:        40,
			balanceBefore: 0,
			balanceAfter:  40,
		},
		{
			name:          "正常系: resetトランザクション（負の金額）",
			transactionID: "reset_2026-08-31_user123",
			userID:        "user123",
			kind:          TransactionKindReset,
			amount:        -40,
			balanceBefore: 40,
			balanceAfter:  0,
		},
		{
			name:          "異常系: ゼロ金額",
			transactionID: "tx1",
			userID:        "user123",
			kind:          TransactionKindEarn,
			amount:        0,
			wantError:     ErrInvalidAmount,
		},
		{
			name:          "異常系: 種別と符号が不一致 (earnに負の金額)",
			transactionID: "tx1",
			userID:        "user123",
			kind:          TransactionKindEarn,
			amount:        -40,
			balanceBefore: 40,
			balanceAfter:  0,
			wantError:     ErrInvalidAmount,
		},
		{
			name:          "異常系: 種別と符号が不一致 (spendに正の金額)",
			transactionID: "tx1",
			userID:        "user123",
			kind:          TransactionKindSpend,
			amount:        40,
			balanceBefore: 0,
			balanceAfter:  40,
			wantError:     ErrInvalidAmount,
		},
		{
			name:          "異常系: 残高の整合が取れない",
			transactionID: "tx1",
			userID:        "user123",
			kind:          TransactionKindEarn,
			amount:        40,
			balanceBefore: 0,
			balanceAfter:  50,
			wantError:     ErrBalanceMismatch,
		},
		{
			name:          "異常系: 負の残高",
			transactionID: "tx1",
			userID:        "user123",
			kind:          TransactionKindReset,
			amount:        -40,
			balanceBefore: 30,
			balanceAfter:  -10,
			wantError:     ErrBalanceMismatch,
		},
		{
			name:          "異常系: 金額の上限超過",
			transactionID: "tx1",
			userID:        "user123",
			kind:          TransactionKindEarn,
			amount:        MaxAmount + 1,
			balanceBefore: 0,
			balanceAfter:  MaxAmount + 1,
			wantError:     ErrAmountTooLarge,
		},
		{
			name:          "異常系: 空のトランザクションID",
			transactionID: "",
			userID:        "user123",
			kind:          TransactionKindEarn,
			amount:        40,
			balanceBefore: 0,
			balanceAfter:  40,
			wantError:     ErrInvalidTransactionID,
		},
		{
			name:          "異常系: 不正なユーザーID",
			transactionID: "tx1",
			userID:        "user 123",
			kind:          TransactionKindEarn,
			amount:        40,
			balanceBefore: 0,
			balanceAfter:  40,
			wantError:     ErrInvalidUserID,
		},
		{
			name:          "異常系: 無効な種別",
			transactionID: "tx1",
			userID:        "user123",
			kind:          TransactionKind("grant"),
			amount:        40,
			balanceBefore: 0,
			balanceAfter:  40,
			wantError:     ErrInvalidKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewTransaction(
				tt.transactionID, tt.userID, tt.kind, tt.amount,
				tt.balanceBefore, tt.balanceAfter, "", nil,
			)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.transactionID, got.TransactionID())
			assert.Equal(t, tt.userID, got.UserID())
			assert.Equal(t, tt.kind, got.Kind())
			assert.Equal(t, tt.amount, got.Amount())
			assert.Equal(t, tt.balanceBefore, got.BalanceBefore())
			assert.Equal(t, tt.balanceAfter, got.BalanceAfter())
			assert.False(t, got.CreatedAt().IsZero())
		})
	}
}

func TestNewTransaction_WithMetadata(t *testing.T) {
	metadata := map[string]interface{}{
		"trade_id": "t42",
		"symbol":   "EURUSD",
	}

	tx, err := NewTransaction("trade_t42", "user123", TransactionKindEarn, 15, 0, 15, "trade xp", metadata)
	require.NoError(t, err)
	assert.Equal(t, metadata, tx.Metadata())
	assert.Equal(t, "trade xp", tx.Description())
}
