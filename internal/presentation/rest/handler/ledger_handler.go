package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	ledgerapp "press-pass-server/internal/application/ledger"
	"press-pass-server/internal/domain/transaction"
)

// LedgerHandler XP台帳関連ハンドラー
type LedgerHandler struct {
	ledgerService *ledgerapp.LedgerApplicationService
}

// NewLedgerHandler 新しいLedgerHandlerを作成
func NewLedgerHandler(ledgerService *ledgerapp.LedgerApplicationService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
	}
}

// GetBalance 残高取得ハンドラー（ユーザーAPI用）
func (h *LedgerHandler) GetBalance(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "user_id not found in token")
	}
	return h.respondBalance(c, userID)
}

// GetBalanceAdmin 残高取得ハンドラー（管理API用）
func (h *LedgerHandler) GetBalanceAdmin(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	return h.respondBalance(c, userID)
}

// GetTransactions トランザクション履歴取得ハンドラー（ユーザーAPI用）
func (h *LedgerHandler) GetTransactions(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "user_id not found in token")
	}
	return h.respondTransactions(c, userID)
}

// GetTransactionsAdmin トランザクション履歴取得ハンドラー（管理API用）
func (h *LedgerHandler) GetTransactionsAdmin(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	return h.respondTransactions(c, userID)
}

// CreateTransaction 手動トランザクションハンドラー（管理API用）
// 運用対応でのボーナス付与や履歴の訂正に使う
func (h *LedgerHandler) CreateTransaction(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	var reqBody ManualTransactionRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if reqBody.Amount <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be positive")
	}

	switch reqBody.Kind {
	case transaction.TransactionKindBonus.String(), transaction.TransactionKindRefund.String():
		resp, err := h.ledgerService.Credit(c.Request().Context(), &ledgerapp.CreditRequest{
			UserID:        userID,
			Kind:          reqBody.Kind,
			Amount:        reqBody.Amount,
			TransactionID: reqBody.TransactionID,
			Description:   reqBody.Description,
			Metadata:      reqBody.Metadata,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, ManualTransactionResponse{
			TransactionID: resp.TransactionID,
			BalanceAfter:  resp.BalanceAfter,
			Duplicate:     resp.Duplicate,
		})

	case transaction.TransactionKindSpend.String():
		resp, err := h.ledgerService.Spend(c.Request().Context(), &ledgerapp.SpendRequest{
			UserID:        userID,
			Amount:        reqBody.Amount,
			TransactionID: reqBody.TransactionID,
			Description:   reqBody.Description,
			Metadata:      reqBody.Metadata,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, ManualTransactionResponse{
			TransactionID: resp.TransactionID,
			BalanceAfter:  resp.BalanceAfter,
			Duplicate:     resp.Duplicate,
		})

	default:
		// earnはトレードイベント、resetは夜間バッチの専用経路
		return echo.NewHTTPError(http.StatusBadRequest, "kind must be bonus, refund or spend")
	}
}

func (h *LedgerHandler) respondBalance(c echo.Context, userID string) error {
	resp, err := h.ledgerService.GetBalance(c.Request().Context(), &ledgerapp.GetBalanceRequest{
		UserID: userID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, BalanceResponse{
		UserID:         userID,
		CurrentBalance: resp.CurrentBalance,
		LifetimeEarned: resp.LifetimeEarned,
		LifetimeSpent:  resp.LifetimeSpent,
		PrestigeLevel:  resp.PrestigeLevel,
	})
}

func (h *LedgerHandler) respondTransactions(c echo.Context, userID string) error {
	req := &ledgerapp.ListTransactionsRequest{
		UserID: userID,
		Kind:   c.QueryParam("kind"),
	}

	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		req.Limit = limit
	}
	if v := c.QueryParam("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
		}
		req.Offset = offset
	}
	if v := c.QueryParam("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
		}
		req.From = &from
	}
	if v := c.QueryParam("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
		}
		req.To = &to
	}

	resp, err := h.ledgerService.ListTransactions(c.Request().Context(), req)
	if err != nil {
		return err
	}

	items := make([]TransactionItem, 0, len(resp.Transactions))
	for _, t := range resp.Transactions {
		items = append(items, TransactionItem{
			TransactionID: t.TransactionID,
			Kind:          t.Kind,
			Amount:        t.Amount,
			BalanceBefore: t.BalanceBefore,
			BalanceAfter:  t.BalanceAfter,
			Description:   t.Description,
			CreatedAt:     t.CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, TransactionHistoryResponse{
		UserID:       userID,
		Transactions: items,
	})
}
