package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	conversionapp "press-pass-server/internal/application/conversion"
	shadowstatapp "press-pass-server/internal/application/shadowstat"
)

// StatsHandler 日次統計・コンバージョン記録ハンドラー
type StatsHandler struct {
	shadowStatService *shadowstatapp.ShadowStatApplicationService
	conversionService *conversionapp.ConversionApplicationService
}

// NewStatsHandler 新しいStatsHandlerを作成
func NewStatsHandler(
	shadowStatService *shadowstatapp.ShadowStatApplicationService,
	conversionService *conversionapp.ConversionApplicationService,
) *StatsHandler {
	return &StatsHandler{
		shadowStatService: shadowStatService,
		conversionService: conversionService,
	}
}

// GetShadowStats シャドウ統計取得ハンドラー（ユーザーAPI用）
func (h *StatsHandler) GetShadowStats(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "user_id not found in token")
	}
	return h.respondStats(c, userID)
}

// GetShadowStatsAdmin シャドウ統計取得ハンドラー（管理API用）
func (h *StatsHandler) GetShadowStatsAdmin(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	return h.respondStats(c, userID)
}

// GetConversion コンバージョン記録取得ハンドラー（ユーザーAPI用）
func (h *StatsHandler) GetConversion(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "user_id not found in token")
	}
	return h.respondConversion(c, userID)
}

// GetConversionAdmin コンバージョン記録取得ハンドラー（管理API用）
func (h *StatsHandler) GetConversionAdmin(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	return h.respondConversion(c, userID)
}

func (h *StatsHandler) respondStats(c echo.Context, userID string) error {
	resp, err := h.shadowStatService.GetStats(c.Request().Context(), &shadowstatapp.GetStatsRequest{
		UserID: userID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ShadowStatsResponse{
		UserID:              userID,
		XPEarnedToday:       resp.XPEarnedToday,
		TradesExecutedToday: resp.TradesExecutedToday,
		WinsToday:           resp.WinsToday,
		LossesToday:         resp.LossesToday,
		TotalResets:         resp.TotalResets,
		LastResetAt:         resp.LastResetAt,
	})
}

func (h *StatsHandler) respondConversion(c echo.Context, userID string) error {
	resp, err := h.conversionService.GetRecord(c.Request().Context(), &conversionapp.GetRecordRequest{
		UserID: userID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ConversionRecordResponse{
		UserID:             resp.UserID,
		PressPassStartDate: resp.PressPassStartDate,
		PressPassEndDate:   resp.PressPassEndDate,
		EnlistedAfter:      resp.EnlistedAfter,
		EnlistedDate:       resp.EnlistedDate,
		EnlistedTier:       resp.EnlistedTier,
		TimeToEnlistDays:   resp.TimeToEnlistDays,
		XPPreserved:        resp.XPPreserved,
		Source:             resp.Source,
		Campaign:           resp.Campaign,
	})
}
