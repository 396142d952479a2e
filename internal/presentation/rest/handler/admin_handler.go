package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	conversionapp "press-pass-server/internal/application/conversion"
	reportingapp "press-pass-server/internal/application/reporting"
	resetapp "press-pass-server/internal/application/reset"
)

// AdminHandler 管理者向けレポート・ジョブ操作ハンドラー
type AdminHandler struct {
	reportingService  *reportingapp.ReportingApplicationService
	resetService      *resetapp.ResetApplicationService
	conversionService *conversionapp.ConversionApplicationService
}

// NewAdminHandler 新しいAdminHandlerを作成
func NewAdminHandler(
	reportingService *reportingapp.ReportingApplicationService,
	resetService *resetapp.ResetApplicationService,
	conversionService *conversionapp.ConversionApplicationService,
) *AdminHandler {
	return &AdminHandler{
		reportingService:  reportingService,
		resetService:      resetService,
		conversionService: conversionService,
	}
}

// GetUserOverview ユーザー概況取得ハンドラー（管理API用）
func (h *AdminHandler) GetUserOverview(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	resp, err := h.reportingService.UserOverview(c.Request().Context(), &reportingapp.UserOverviewRequest{
		UserID: userID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, UserOverviewResponse{
		UserID:              resp.UserID,
		CurrentBalance:      resp.CurrentBalance,
		LifetimeEarned:      resp.LifetimeEarned,
		LifetimeSpent:       resp.LifetimeSpent,
		PrestigeLevel:       resp.PrestigeLevel,
		XPEarnedToday:       resp.XPEarnedToday,
		TradesExecutedToday: resp.TradesExecutedToday,
		WinsToday:           resp.WinsToday,
		LossesToday:         resp.LossesToday,
		TotalResets:         resp.TotalResets,
		TrialStartDate:      resp.TrialStartDate,
		TrialEndDate:        resp.TrialEndDate,
		EnlistedAfter:       resp.EnlistedAfter,
		EnlistedTier:        resp.EnlistedTier,
	})
}

// GetDailyReport 日次集計取得ハンドラー
// dateクエリ（YYYY-MM-DD）省略時は当日UTC
func (h *AdminHandler) GetDailyReport(c echo.Context) error {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	if v := c.QueryParam("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date format (expected YYYY-MM-DD)")
		}
		day = parsed
	}

	return h.respondRollup(c, day, day.Add(24*time.Hour))
}

// GetWeeklyReport 週次集計取得ハンドラー
// week_startクエリ（YYYY-MM-DD）省略時は当週月曜UTC
func (h *AdminHandler) GetWeeklyReport(c echo.Context) error {
	var weekStart time.Time
	if v := c.QueryParam("week_start"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid week_start format (expected YYYY-MM-DD)")
		}
		weekStart = parsed
	} else {
		now := time.Now().UTC().Truncate(24 * time.Hour)
		offset := (int(now.Weekday()) + 6) % 7 // 月曜始まり
		weekStart = now.AddDate(0, 0, -offset)
	}

	return h.respondRollup(c, weekStart, weekStart.AddDate(0, 0, 7))
}

// GetFunnel コンバージョンファネル取得ハンドラー
func (h *AdminHandler) GetFunnel(c echo.Context) error {
	resp, err := h.reportingService.Funnel(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, FunnelReportResponse{
		TrialActive:        resp.TrialActive,
		Converted:          resp.Converted,
		ExpiredUnconverted: resp.ExpiredUnconverted,
		ConversionRate:     resp.ConversionRate,
		AvgTimeToEnlist:    resp.AvgTimeToEnlist,
	})
}

// GetJobs ジョブ実行履歴取得ハンドラー
func (h *AdminHandler) GetJobs(c echo.Context) error {
	req := &resetapp.JobHistoryRequest{
		JobName: c.QueryParam("job_name"),
	}

	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		req.Limit = limit
	}
	if v := c.QueryParam("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
		}
		req.From = from
	}
	if v := c.QueryParam("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
		}
		req.To = to
	}

	resp, err := h.resetService.JobHistory(c.Request().Context(), req)
	if err != nil {
		return err
	}

	items := make([]JobExecutionItem, 0, len(resp.Executions))
	for _, e := range resp.Executions {
		items = append(items, JobExecutionItem{
			JobName:         e.JobName,
			ExecutedAt:      e.ExecutedAt,
			Success:         e.Success,
			RecordsAffected: e.RecordsAffected,
			ErrorMessage:    e.ErrorMessage,
		})
	}

	return c.JSON(http.StatusOK, JobHistoryResponse{Executions: items})
}

// TriggerNightlyReset 夜間リセット手動実行ハンドラー
// 当日分が実行済みならalready_done=trueで何もしない
func (h *AdminHandler) TriggerNightlyReset(c echo.Context) error {
	resp, err := h.resetService.NightlyReset(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, TriggerJobResponse{
		JobName:         "nightly_reset",
		RecordsAffected: int64(resp.AffectedUsers),
		AlreadyDone:     resp.AlreadyDone,
	})
}

// TriggerWarn リセット警告手動実行ハンドラー
// threshold_minutesクエリ省略時は60分前警告として扱う
func (h *AdminHandler) TriggerWarn(c echo.Context) error {
	threshold := 60
	if v := c.QueryParam("threshold_minutes"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid threshold_minutes")
		}
		threshold = parsed
	}

	resp, err := h.resetService.Warn(c.Request().Context(), &resetapp.WarnRequest{
		ThresholdMinutes: threshold,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, TriggerJobResponse{
		JobName:         "reset_warning",
		RecordsAffected: int64(resp.WarnedUsers),
	})
}

// TriggerSweep 期限切れスイープ手動実行ハンドラー
func (h *AdminHandler) TriggerSweep(c echo.Context) error {
	resp, err := h.conversionService.SweepExpired(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, TriggerJobResponse{
		JobName:         "expiry_sweep",
		RecordsAffected: resp.ExpiredRecords,
	})
}

func (h *AdminHandler) respondRollup(c echo.Context, from, to time.Time) error {
	resp, err := h.reportingService.ActivityRollup(c.Request().Context(), &reportingapp.ActivityRollupRequest{
		From: from,
		To:   to,
	})
	if err != nil {
		return err
	}

	byKind := make([]KindRollupItem, 0, len(resp.ByKind))
	for _, k := range resp.ByKind {
		byKind = append(byKind, KindRollupItem{
			Kind:  k.Kind,
			Count: k.Count,
			Total: k.Total,
		})
	}

	return c.JSON(http.StatusOK, ActivityReportResponse{
		From:        resp.From,
		To:          resp.To,
		ByKind:      byKind,
		Conversions: resp.Conversions,
	})
}
