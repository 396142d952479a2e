package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	quotaapp "press-pass-server/internal/application/quota"
)

// SignupHandler サインアップ許可ハンドラー
// アカウント作成サービスが同期的に呼び出す
type SignupHandler struct {
	quotaService *quotaapp.QuotaApplicationService
}

// NewSignupHandler 新しいSignupHandlerを作成
func NewSignupHandler(quotaService *quotaapp.QuotaApplicationService) *SignupHandler {
	return &SignupHandler{
		quotaService: quotaService,
	}
}

// Admit 今週のサインアップ枠を1つ消費する
// 枠が尽きている場合は429（エラーハンドラーで変換）
func (h *SignupHandler) Admit(c echo.Context) error {
	var reqBody AdmitRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if reqBody.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	resp, err := h.quotaService.TryAdmit(c.Request().Context(), &quotaapp.AdmitRequest{
		UserID: reqBody.UserID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, AdmitResponse{
		Admitted:        true,
		WeekStartDate:   resp.WeekStartDate,
		AccountsCreated: resp.AccountsCreated,
		Remaining:       resp.Remaining,
	})
}

// QuotaStatus 今週の枠の状態を取得する
func (h *SignupHandler) QuotaStatus(c echo.Context) error {
	resp, err := h.quotaService.Status(c.Request().Context(), &quotaapp.StatusRequest{})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, QuotaStatusResponse{
		WeekStartDate:   resp.WeekStartDate,
		AccountsCreated: resp.AccountsCreated,
		Cap:             resp.Cap,
		Remaining:       resp.Remaining,
		LimitReached:    resp.LimitReached,
	})
}
