package shadowstat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"press-pass-server/internal/domain/ledger"
	"press-pass-server/internal/domain/shadowstat"
	"press-pass-server/internal/domain/transaction"
	otelinfra "press-pass-server/internal/infrastructure/observability/otel"
	"press-pass-server/internal/infrastructure/persistence/mysql"
)

// ShadowStatApplicationService シャドウ統計アプリケーションサービス
// 取引完了イベントを台帳と日次統計の両方へ反映する
type ShadowStatApplicationService struct {
	balanceRepo        ledger.BalanceRepository
	transactionRepo    transaction.TransactionRepository
	shadowStatRepo     shadowstat.ShadowStatRepository
	processedTradeRepo shadowstat.ProcessedTradeRepository
	txManager          *mysql.TransactionManager
	logger             *otelinfra.Logger
	metrics            *otelinfra.Metrics
	tracer             trace.Tracer
	maxRetries         int
}

// NewShadowStatApplicationService 新しいShadowStatApplicationServiceを作成
func NewShadowStatApplicationService(
	balanceRepo ledger.BalanceRepository,
	transactionRepo transaction.TransactionRepository,
	shadowStatRepo shadowstat.ShadowStatRepository,
	processedTradeRepo shadowstat.ProcessedTradeRepository,
	txManager *mysql.TransactionManager,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *ShadowStatApplicationService {
	return &ShadowStatApplicationService{
		balanceRepo:        balanceRepo,
		transactionRepo:    transactionRepo,
		shadowStatRepo:     shadowStatRepo,
		processedTradeRepo: processedTradeRepo,
		txManager:          txManager,
		logger:             logger,
		metrics:            metrics,
		tracer:             otel.Tracer("shadow-stat-service"),
		maxRetries:         3,
	}
}

// RecordTrade 完了した取引を記録する
// トレードIDごとに処理済みマークを残すため、同一トレードの再配信は
// XPの有無を問わず台帳も統計も変更せずDuplicate=trueで終わる
func (s *ShadowStatApplicationService) RecordTrade(ctx context.Context, req *RecordTradeRequest) (*RecordTradeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ShadowStatApplicationService.RecordTrade")
	defer span.End()

	span.SetAttributes(
		attribute.String("trade_id", req.TradeID),
		attribute.String("user_id", req.UserID),
		attribute.Int64("xp_delta", req.XPDelta),
		attribute.Bool("is_win", req.IsWin),
	)

	if req.XPDelta < 0 {
		err := transaction.ErrInvalidKind
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "negative xp delta")
		return nil, fmt.Errorf("trade %s has negative xp delta: %w", req.TradeID, err)
	}

	transactionID := "trade_" + req.TradeID

	s.logger.Info(ctx, "Recording trade", map[string]interface{}{
		"trade_id": req.TradeID,
		"user_id":  req.UserID,
		"xp_delta": req.XPDelta,
		"is_win":   req.IsWin,
	})

	var result *RecordTradeResponse
	err := s.withConflictRetry(ctx, func(tx *sql.Tx) error {
		var balanceAfter int64

		// trade_idごとに一度だけ処理する。XPゼロの取引は台帳行を作らないため、
		// 処理済みマークが台帳のID重複とは独立した冪等キーになる
		if err := s.processedTradeRepo.Mark(ctx, tx, req.TradeID, req.UserID); err != nil {
			return err
		}

		// XPゼロの取引は台帳行を作らない（統計のみ更新）
		if req.XPDelta > 0 {
			balance, err := s.findOrCreateBalance(ctx, tx, req.UserID)
			if err != nil {
				return err
			}

			balanceBefore := balance.CurrentBalance()
			if err := balance.Earn(req.XPDelta); err != nil {
				return err
			}

			txn, err := transaction.NewTransaction(
				transactionID,
				req.UserID,
				transaction.TransactionKindEarn,
				req.XPDelta,
				balanceBefore,
				balance.CurrentBalance(),
				"trade "+req.TradeID,
				map[string]interface{}{"trade_id": req.TradeID, "is_win": req.IsWin},
			)
			if err != nil {
				return err
			}

			// 重複トレードはここで弾かれ、ロールバックで統計も無傷に保たれる
			if err := s.transactionRepo.Save(ctx, tx, txn); err != nil {
				return err
			}

			if err := s.balanceRepo.Save(ctx, tx, balance); err != nil {
				return err
			}
			balanceAfter = balance.CurrentBalance()
		}

		stat, err := s.findOrCreateStat(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if err := stat.RecordTrade(req.XPDelta, req.IsWin); err != nil {
			return err
		}
		if err := s.shadowStatRepo.Save(ctx, tx, stat); err != nil {
			return err
		}

		if req.XPDelta > 0 {
			s.metrics.RecordXPTransaction(ctx, transaction.TransactionKindEarn.String())
			s.metrics.RecordXPBalance(ctx, req.UserID, balanceAfter)
		}

		result = &RecordTradeResponse{
			BalanceAfter:  balanceAfter,
			XPEarnedToday: stat.XPEarnedToday(),
		}
		return nil
	})

	if errors.Is(err, shadowstat.ErrDuplicateTrade) || errors.Is(err, transaction.ErrDuplicateTransaction) {
		s.logger.Info(ctx, "Duplicate trade ignored", map[string]interface{}{
			"trade_id": req.TradeID,
		})
		return &RecordTradeResponse{Duplicate: true}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to record trade", err, map[string]interface{}{
			"trade_id": req.TradeID,
			"user_id":  req.UserID,
		})
		s.metrics.RecordError(ctx, "record_trade_failed")
		return nil, err
	}

	return result, nil
}

// GetStats シャドウ統計を取得
// 統計レコードがないユーザーはゼロ統計として返す
func (s *ShadowStatApplicationService) GetStats(ctx context.Context, req *GetStatsRequest) (*GetStatsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ShadowStatApplicationService.GetStats")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", req.UserID))

	stat, err := s.shadowStatRepo.FindByUserID(ctx, nil, req.UserID)
	if err != nil {
		if errors.Is(err, shadowstat.ErrShadowStatNotFound) {
			return &GetStatsResponse{UserID: req.UserID}, nil
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find shadow stat: %w", err)
	}

	return &GetStatsResponse{
		UserID:              stat.UserID(),
		XPEarnedToday:       stat.XPEarnedToday(),
		TradesExecutedToday: stat.TradesExecutedToday(),
		WinsToday:           stat.WinsToday(),
		LossesToday:         stat.LossesToday(),
		TotalResets:         stat.TotalResets(),
		LastResetAt:         stat.LastResetAt(),
	}, nil
}

func (s *ShadowStatApplicationService) findOrCreateBalance(ctx context.Context, tx *sql.Tx, userID string) (*ledger.Balance, error) {
	balance, err := s.balanceRepo.FindByUserID(ctx, tx, userID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, ledger.ErrBalanceNotFound) {
		return nil, fmt.Errorf("failed to find balance: %w", err)
	}

	balance, err = ledger.NewZeroBalance(userID)
	if err != nil {
		return nil, err
	}
	if err := s.balanceRepo.Create(ctx, tx, balance); err != nil {
		return nil, fmt.Errorf("failed to create balance: %w", err)
	}
	return balance, nil
}

func (s *ShadowStatApplicationService) findOrCreateStat(ctx context.Context, tx *sql.Tx, userID string) (*shadowstat.ShadowStat, error) {
	stat, err := s.shadowStatRepo.FindByUserID(ctx, tx, userID)
	if err == nil {
		return stat, nil
	}
	if !errors.Is(err, shadowstat.ErrShadowStatNotFound) {
		return nil, fmt.Errorf("failed to find shadow stat: %w", err)
	}

	stat, err = shadowstat.NewZeroShadowStat(userID)
	if err != nil {
		return nil, err
	}
	if err := s.shadowStatRepo.Create(ctx, tx, stat); err != nil {
		return nil, fmt.Errorf("failed to create shadow stat: %w", err)
	}
	return stat, nil
}

func (s *ShadowStatApplicationService) withConflictRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * 10 * time.Millisecond
			time.Sleep(backoff)
		}
		err = s.txManager.WithTransaction(ctx, fn)
		if !errors.Is(err, ledger.ErrConcurrencyConflict) && !errors.Is(err, shadowstat.ErrConcurrencyConflict) {
			return err
		}
	}
	return err
}
