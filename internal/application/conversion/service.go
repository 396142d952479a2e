package conversion

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

	"press-pass-server/internal/domain/conversion"
	"press-pass-server/internal/domain/joblog"
	"press-pass-server/internal/domain/ledger"
	"press-pass-server/internal/domain/shadowstat"
	"press-pass-server/internal/domain/transaction"
	"press-pass-server/internal/infrastructure/messaging"
	otelinfra "press-pass-server/internal/infrastructure/observability/otel"
	"press-pass-server/internal/infrastructure/persistence/mysql"
)

// EventPublisher コンバージョン確定イベントの配信先
type EventPublisher interface {
	PublishConversionFinalized(ctx context.Context, event messaging.ConversionFinalizedEvent) error
}

// ConversionApplicationService コンバージョン追跡アプリケーションサービス
// トライアルの開始・転換・期限切れのライフサイクルを管理する
type ConversionApplicationService struct {
	conversionRepo  conversion.ConversionRecordRepository
	shadowStatRepo  shadowstat.ShadowStatRepository
	balanceRepo     ledger.BalanceRepository
	transactionRepo transaction.TransactionRepository
	jobLogRepo      joblog.JobExecutionRepository
	txManager       *mysql.TransactionManager
	publisher       EventPublisher
	logger          *otelinfra.Logger
	metrics         *otelinfra.Metrics
	tracer          trace.Tracer
	maxRetries      int
	now             func() time.Time

	trialDuration time.Duration
	bonusXP       int64
}

// NewConversionApplicationService 新しいConversionApplicationServiceを作成
func NewConversionApplicationService(
	conversionRepo conversion.ConversionRecordRepository,
	shadowStatRepo shadowstat.ShadowStatRepository,
	balanceRepo ledger.BalanceRepository,
	transactionRepo transaction.TransactionRepository,
	jobLogRepo joblog.JobExecutionRepository,
	txManager *mysql.TransactionManager,
	publisher EventPublisher,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
	trialDurationDays int,
	bonusXP int64,
) *ConversionApplicationService {
	return &ConversionApplicationService{
		conversionRepo:  conversionRepo,
		shadowStatRepo:  shadowStatRepo,
		balanceRepo:     balanceRepo,
		transactionRepo: transactionRepo,
		jobLogRepo:      jobLogRepo,
		txManager:       txManager,
		publisher:       publisher,
		logger:          logger,
		metrics:         metrics,
		tracer:          otel.Tracer("conversion-service"),
		maxRetries:      3,
		now:             time.Now,
		trialDuration:   time.Duration(trialDurationDays) * 24 * time.Hour,
		bonusXP:         bonusXP,
	}
}

// SetClock テスト用に現在時刻の供給元を差し替える
func (s *ConversionApplicationService) SetClock(now func() time.Time) {
	s.now = now
}

// OnTrialStart トライアル開始を記録する
// 同一ユーザーの再配信はDuplicate=trueの no-op
func (s *ConversionApplicationService) OnTrialStart(ctx context.Context, req *TrialStartRequest) (*TrialStartResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ConversionApplicationService.OnTrialStart")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("source", req.Source),
	)

	startDate := req.At
	if startDate.IsZero() {
		startDate = s.now().UTC()
	}

	record, err := conversion.NewConversionRecord(req.UserID, startDate, req.Source, req.Campaign)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(tx *sql.Tx) error {
		return s.conversionRepo.Create(ctx, tx, record)
	})
	if errors.Is(err, conversion.ErrDuplicateRecord) {
		s.logger.Info(ctx, "Duplicate trial start ignored", map[string]interface{}{
			"user_id": req.UserID,
		})
		return &TrialStartResponse{Duplicate: true}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to record trial start", err, map[string]interface{}{
			"user_id": req.UserID,
		})
		return nil, err
	}

	s.logger.Info(ctx, "Trial started", map[string]interface{}{
		"user_id":  req.UserID,
		"source":   req.Source,
		"campaign": req.Campaign,
	})
	return &TrialStartResponse{}, nil
}

// OnTierChange ティア変更を処理する
// トライアルから有料ティアへの変更を一度だけ確定し、ボーナスXPを台帳へ付与する
// 既に確定済みの記録への再適用は no-op
func (s *ConversionApplicationService) OnTierChange(ctx context.Context, req *TierChangeRequest) (*TierChangeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ConversionApplicationService.OnTierChange")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("old_tier", req.OldTier),
		attribute.String("new_tier", req.NewTier),
	)

	oldTier, err := conversion.NewTier(req.OldTier)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	newTier, err := conversion.NewTier(req.NewTier)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	// トライアルからの昇格以外は追跡対象外
	if !oldTier.IsTrial() || newTier.IsTrial() {
		return &TierChangeResponse{}, nil
	}

	at := s.now().UTC()
	var resp *TierChangeResponse
	var timeToEnlistDays int

	err = s.withConflictRetry(ctx, func(tx *sql.Tx) error {
		record, err := s.conversionRepo.FindByUserID(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if record.IsFinalized() {
			resp = &TierChangeResponse{}
			return nil
		}

		xpToday := int64(0)
		stat, err := s.shadowStatRepo.FindByUserID(ctx, tx, req.UserID)
		if err != nil && !errors.Is(err, shadowstat.ErrShadowStatNotFound) {
			return err
		}
		if stat != nil {
			xpToday = stat.XPEarnedToday()
		}

		xpPreserved := xpToday + s.bonusXP
		if err := record.Finalize(newTier, xpPreserved, at); err != nil {
			return err
		}
		if err := s.conversionRepo.Save(ctx, tx, record); err != nil {
			return err
		}

		// 記録確定と同一トランザクションなのでボーナスの二重付与はない
		if s.bonusXP > 0 {
			if err := s.creditBonus(ctx, tx, req.UserID); err != nil {
				return err
			}
		}

		if record.TimeToEnlistDays() != nil {
			timeToEnlistDays = *record.TimeToEnlistDays()
		}
		resp = &TierChangeResponse{Finalized: true, XPPreserved: xpPreserved}
		return nil
	})

	if errors.Is(err, conversion.ErrRecordNotFound) {
		// トライアル経由でないユーザーのティア変更は追跡しない
		s.logger.Warn(ctx, "Tier change for unknown trial user", map[string]interface{}{
			"user_id":  req.UserID,
			"new_tier": req.NewTier,
		})
		return &TierChangeResponse{}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to process tier change", err, map[string]interface{}{
			"user_id": req.UserID,
		})
		s.metrics.RecordError(ctx, "tier_change_failed")
		return nil, err
	}

	if resp.Finalized {
		s.metrics.RecordConversion(ctx, newTier.String())
		event := messaging.ConversionFinalizedEvent{
			UserID:           req.UserID,
			EnlistedTier:     newTier.String(),
			TimeToEnlistDays: timeToEnlistDays,
			XPPreserved:      resp.XPPreserved,
			Timestamp:        at,
		}
		if err := s.publisher.PublishConversionFinalized(ctx, event); err != nil {
			s.logger.Error(ctx, "Failed to publish conversion event", err, map[string]interface{}{
				"user_id": req.UserID,
			})
		}
		s.logger.Info(ctx, "Conversion finalized", map[string]interface{}{
			"user_id":             req.UserID,
			"enlisted_tier":       newTier.String(),
			"time_to_enlist_days": timeToEnlistDays,
			"xp_preserved":        resp.XPPreserved,
		})
	}

	return resp, nil
}

// SweepExpired トライアル期間を過ぎた未確定の記録を期限切れにする
func (s *ConversionApplicationService) SweepExpired(ctx context.Context) (*SweepExpiredResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ConversionApplicationService.SweepExpired")
	defer span.End()

	started := s.now()
	at := started.UTC()
	cutoff := at.Add(-s.trialDuration)

	var expired int64
	err := s.txManager.WithTransaction(ctx, func(tx *sql.Tx) error {
		n, err := s.conversionRepo.MarkExpiredBefore(ctx, tx, cutoff, at)
		if err != nil {
			return err
		}
		expired = n
		return nil
	})

	success := err == nil
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	s.recordJobExecution(ctx, started, success, int(expired), errMsg)
	s.metrics.RecordJobDuration(ctx, joblog.JobNameExpirySweep, s.now().Sub(started).Seconds(), success)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to sweep expired trials", err, nil)
		return nil, fmt.Errorf("failed to sweep expired trials: %w", err)
	}

	s.logger.Info(ctx, "Expired trials swept", map[string]interface{}{
		"expired_records": expired,
	})
	return &SweepExpiredResponse{ExpiredRecords: expired}, nil
}

// GetRecord コンバージョン記録を取得
func (s *ConversionApplicationService) GetRecord(ctx context.Context, req *GetRecordRequest) (*GetRecordResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ConversionApplicationService.GetRecord")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", req.UserID))

	record, err := s.conversionRepo.FindByUserID(ctx, nil, req.UserID)
	if err != nil {
		if !errors.Is(err, conversion.ErrRecordNotFound) {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		return nil, err
	}

	var tier *string
	if record.EnlistedTier() != nil {
		t := record.EnlistedTier().String()
		tier = &t
	}

	return &GetRecordResponse{
		UserID:             record.UserID(),
		PressPassStartDate: record.PressPassStartDate(),
		PressPassEndDate:   record.PressPassEndDate(),
		EnlistedAfter:      record.EnlistedAfter(),
		EnlistedDate:       record.EnlistedDate(),
		EnlistedTier:       tier,
		TimeToEnlistDays:   record.TimeToEnlistDays(),
		XPPreserved:        record.XPPreserved(),
		Source:             record.Source(),
		Campaign:           record.Campaign(),
	}, nil
}

// creditBonus 転換ボーナスXPを台帳へ付与する
func (s *ConversionApplicationService) creditBonus(ctx context.Context, tx *sql.Tx, userID string) error {
	balance, err := s.balanceRepo.FindByUserID(ctx, tx, userID)
	if err != nil {
		if !errors.Is(err, ledger.ErrBalanceNotFound) {
			return err
		}
		balance, err = ledger.NewZeroBalance(userID)
		if err != nil {
			return err
		}
		if err := s.balanceRepo.Create(ctx, tx, balance); err != nil {
			return err
		}
	}

	balanceBefore := balance.CurrentBalance()
	if err := balance.Earn(s.bonusXP); err != nil {
		return err
	}

	txn, err := transaction.NewTransaction(
		"conv_bonus_"+userID,
		userID,
		transaction.TransactionKindBonus,
		s.bonusXP,
		balanceBefore,
		balance.CurrentBalance(),
		"conversion bonus",
		nil,
	)
	if err != nil {
		return err
	}
	if err := s.transactionRepo.Save(ctx, tx, txn); err != nil {
		return err
	}
	if err := s.balanceRepo.Save(ctx, tx, balance); err != nil {
		return err
	}

	s.metrics.RecordXPTransaction(ctx, transaction.TransactionKindBonus.String())
	return nil
}

func (s *ConversionApplicationService) recordJobExecution(ctx context.Context, at time.Time, success bool, affected int, errMsg string) {
	execution, err := joblog.NewJobExecution(joblog.JobNameExpirySweep, at, success, affected, errMsg)
	if err != nil {
		s.logger.Error(ctx, "Failed to build job execution", err, nil)
		return
	}
	if err := s.jobLogRepo.Save(ctx, execution); err != nil {
		s.logger.Error(ctx, "Failed to save job execution", err, nil)
	}
}

func (s *ConversionApplicationService) withConflictRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * 10 * time.Millisecond
			time.Sleep(backoff)
		}
		err = s.txManager.WithTransaction(ctx, fn)
		if !errors.Is(err, conversion.ErrConcurrencyConflict) && !errors.Is(err, ledger.ErrConcurrencyConflict) {
			return err
		}
	}
	return err
}
