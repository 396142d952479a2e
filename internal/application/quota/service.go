package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"press-pass-server/internal/domain/quota"
	otelinfra "press-pass-server/internal/infrastructure/observability/otel"
	"press-pass-server/internal/infrastructure/persistence/mysql"
)

// QuotaApplicationService 週次サインアップ枠アプリケーションサービス
type QuotaApplicationService struct {
	quotaRepo quota.WeeklyQuotaRepository
	txManager *mysql.TransactionManager
	logger    *otelinfra.Logger
	metrics   *otelinfra.Metrics
	tracer    trace.Tracer
	cap       int
	now       func() time.Time
}

// NewQuotaApplicationService 新しいQuotaApplicationServiceを作成
func NewQuotaApplicationService(
	quotaRepo quota.WeeklyQuotaRepository,
	txManager *mysql.TransactionManager,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
	cap int,
) *QuotaApplicationService {
	return &QuotaApplicationService{
		quotaRepo: quotaRepo,
		txManager: txManager,
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer("quota-service"),
		cap:       cap,
		now:       time.Now,
	}
}

// SetClock テスト用に現在時刻の供給元を差し替える
func (s *QuotaApplicationService) SetClock(now func() time.Time) {
	s.now = now
}

// TryAdmit 今週のサインアップ枠を1つ消費する
// 枠が尽きている場合はErrQuotaExceededを返し、カウンターは上限を超えない
func (s *QuotaApplicationService) TryAdmit(ctx context.Context, req *AdmitRequest) (*AdmitResponse, error) {
	ctx, span := s.tracer.Start(ctx, "QuotaApplicationService.TryAdmit")
	defer span.End()

	weekStart := quota.WeekStart(s.now())
	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("week_start", weekStart.Format("2006-01-02")),
	)

	var result *AdmitResponse
	err := s.txManager.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.quotaRepo.EnsureWeek(ctx, tx, weekStart); err != nil {
			return err
		}

		admitted, err := s.quotaRepo.IncrementIfBelowCap(ctx, tx, weekStart, s.cap)
		if err != nil {
			return err
		}
		if !admitted {
			return quota.ErrQuotaExceeded
		}

		q, err := s.quotaRepo.FindByWeekStart(ctx, tx, weekStart)
		if err != nil {
			return err
		}
		result = &AdmitResponse{
			WeekStartDate:   q.WeekStartDate(),
			AccountsCreated: q.AccountsCreated(),
			Remaining:       s.cap - q.AccountsCreated(),
		}
		return nil
	})

	if errors.Is(err, quota.ErrQuotaExceeded) {
		// ロールバックされるトランザクションの外でフラグを立てる
		if markErr := s.quotaRepo.MarkLimitReached(ctx, nil, weekStart); markErr != nil {
			s.logger.Warn(ctx, "Failed to mark limit reached", map[string]interface{}{
				"week_start": weekStart.Format("2006-01-02"),
				"error":      markErr.Error(),
			})
		}
		s.metrics.RecordQuotaRejection(ctx)
		s.logger.Info(ctx, "Signup rejected by weekly quota", map[string]interface{}{
			"user_id":    req.UserID,
			"week_start": weekStart.Format("2006-01-02"),
		})
		return nil, err
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to admit signup", err, map[string]interface{}{
			"user_id": req.UserID,
		})
		return nil, fmt.Errorf("failed to admit signup: %w", err)
	}

	s.logger.Info(ctx, "Signup admitted", map[string]interface{}{
		"user_id":          req.UserID,
		"week_start":       weekStart.Format("2006-01-02"),
		"accounts_created": result.AccountsCreated,
	})
	return result, nil
}

// Status 指定週の枠の状態を取得
// まだ行がない週はカウンター0として返す
func (s *QuotaApplicationService) Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	ctx, span := s.tracer.Start(ctx, "QuotaApplicationService.Status")
	defer span.End()

	at := req.At
	if at.IsZero() {
		at = s.now()
	}
	weekStart := quota.WeekStart(at)
	span.SetAttributes(attribute.String("week_start", weekStart.Format("2006-01-02")))

	q, err := s.quotaRepo.FindByWeekStart(ctx, nil, weekStart)
	if err != nil {
		if errors.Is(err, quota.ErrQuotaNotFound) {
			return &StatusResponse{
				WeekStartDate: weekStart,
				Cap:           s.cap,
				Remaining:     s.cap,
			}, nil
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find weekly quota: %w", err)
	}

	return &StatusResponse{
		WeekStartDate:   q.WeekStartDate(),
		AccountsCreated: q.AccountsCreated(),
		Cap:             s.cap,
		Remaining:       s.cap - q.AccountsCreated(),
		LimitReached:    q.LimitReached(),
	}, nil
}
