package reporting

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"press-pass-server/internal/domain/conversion"
	"press-pass-server/internal/domain/ledger"
	"press-pass-server/internal/domain/shadowstat"
	"press-pass-server/internal/domain/transaction"
	otelinfra "press-pass-server/internal/infrastructure/observability/otel"
)

// ReportingApplicationService 管理者向けレポートアプリケーションサービス
// 読み取り専用で、すべてプールへ直接クエリする
type ReportingApplicationService struct {
	balanceRepo     ledger.BalanceRepository
	transactionRepo transaction.TransactionRepository
	shadowStatRepo  shadowstat.ShadowStatRepository
	conversionRepo  conversion.ConversionRecordRepository
	logger          *otelinfra.Logger
	tracer          trace.Tracer
}

// NewReportingApplicationService 新しいReportingApplicationServiceを作成
func NewReportingApplicationService(
	balanceRepo ledger.BalanceRepository,
	transactionRepo transaction.TransactionRepository,
	shadowStatRepo shadowstat.ShadowStatRepository,
	conversionRepo conversion.ConversionRecordRepository,
	logger *otelinfra.Logger,
) *ReportingApplicationService {
	return &ReportingApplicationService{
		balanceRepo:     balanceRepo,
		transactionRepo: transactionRepo,
		shadowStatRepo:  shadowStatRepo,
		conversionRepo:  conversionRepo,
		logger:          logger,
		tracer:          otel.Tracer("reporting-service"),
	}
}

// UserOverview 台帳・日次統計・コンバージョン記録をまとめて取得
// 存在しない部分はゼロ値として埋める
func (s *ReportingApplicationService) UserOverview(ctx context.Context, req *UserOverviewRequest) (*UserOverviewResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ReportingApplicationService.UserOverview")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", req.UserID))

	resp := &UserOverviewResponse{UserID: req.UserID}

	balance, err := s.balanceRepo.FindByUserID(ctx, nil, req.UserID)
	if err != nil && !errors.Is(err, ledger.ErrBalanceNotFound) {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find balance: %w", err)
	}
	if balance != nil {
		resp.CurrentBalance = balance.CurrentBalance()
		resp.LifetimeEarned = balance.LifetimeEarned()
		resp.LifetimeSpent = balance.LifetimeSpent()
		resp.PrestigeLevel = balance.PrestigeLevel()
	}

	stat, err := s.shadowStatRepo.FindByUserID(ctx, nil, req.UserID)
	if err != nil && !errors.Is(err, shadowstat.ErrShadowStatNotFound) {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find shadow stat: %w", err)
	}
	if stat != nil {
		resp.XPEarnedToday = stat.XPEarnedToday()
		resp.TradesExecutedToday = stat.TradesExecutedToday()
		resp.WinsToday = stat.WinsToday()
		resp.LossesToday = stat.LossesToday()
		resp.TotalResets = stat.TotalResets()
	}

	record, err := s.conversionRepo.FindByUserID(ctx, nil, req.UserID)
	if err != nil && !errors.Is(err, conversion.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find conversion record: %w", err)
	}
	if record != nil {
		start := record.PressPassStartDate()
		resp.TrialStartDate = &start
		resp.TrialEndDate = record.PressPassEndDate()
		resp.EnlistedAfter = record.EnlistedAfter()
		if record.EnlistedTier() != nil {
			tier := record.EnlistedTier().String()
			resp.EnlistedTier = &tier
		}
	}

	return resp, nil
}

// ActivityRollup 期間内のトランザクション集計とコンバージョン件数を取得
func (s *ReportingApplicationService) ActivityRollup(ctx context.Context, req *ActivityRollupRequest) (*ActivityRollupResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ReportingApplicationService.ActivityRollup")
	defer span.End()

	span.SetAttributes(
		attribute.String("from", req.From.Format("2006-01-02")),
		attribute.String("to", req.To.Format("2006-01-02")),
	)

	sums, err := s.transactionRepo.SumByKindForRange(ctx, req.From, req.To)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to sum transactions: %w", err)
	}

	conversions, err := s.conversionRepo.CountConvertedInRange(ctx, req.From, req.To)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to count conversions: %w", err)
	}

	byKind := make([]KindRollup, 0, len(sums))
	for _, sum := range sums {
		byKind = append(byKind, KindRollup{
			Kind:  sum.Kind.String(),
			Count: sum.Count,
			Total: sum.Total,
		})
	}

	return &ActivityRollupResponse{
		From:        req.From,
		To:          req.To,
		ByKind:      byKind,
		Conversions: conversions,
	}, nil
}

// Funnel コンバージョンファネルを取得
func (s *ReportingApplicationService) Funnel(ctx context.Context) (*FunnelResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ReportingApplicationService.Funnel")
	defer span.End()

	stats, err := s.conversionRepo.CountFunnel(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to count funnel: %w", err)
	}

	rate := 0.0
	finalized := stats.Converted + stats.ExpiredUnconverted
	if finalized > 0 {
		rate = float64(stats.Converted) / float64(finalized)
	}

	return &FunnelResponse{
		TrialActive:        stats.TrialActive,
		Converted:          stats.Converted,
		ExpiredUnconverted: stats.ExpiredUnconverted,
		ConversionRate:     rate,
		AvgTimeToEnlist:    stats.AvgTimeToEnlist,
	}, nil
}
