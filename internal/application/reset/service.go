package reset

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

	"press-pass-server/internal/domain/joblog"
	"press-pass-server/internal/domain/ledger"
	"press-pass-server/internal/domain/resetwarn"
	"press-pass-server/internal/domain/shadowstat"
	"press-pass-server/internal/domain/transaction"
	"press-pass-server/internal/infrastructure/messaging"
	otelinfra "press-pass-server/internal/infrastructure/observability/otel"
	"press-pass-server/internal/infrastructure/persistence/mysql"
)

// EventPublisher リセット関連イベントの配信先
type EventPublisher interface {
	PublishResetWarning(ctx context.Context, event messaging.ResetWarningEvent) error
	PublishNightlyResetSummary(ctx context.Context, event messaging.NightlyResetSummaryEvent) error
}

// ResetApplicationService 日次リセットアプリケーションサービス
// 警告送信と夜間リセットバッチを担う
type ResetApplicationService struct {
	balanceRepo     ledger.BalanceRepository
	transactionRepo transaction.TransactionRepository
	shadowStatRepo  shadowstat.ShadowStatRepository
	jobLogRepo      joblog.JobExecutionRepository
	warnLogRepo     resetwarn.WarningLogRepository
	txManager       *mysql.TransactionManager
	publisher       EventPublisher
	logger          *otelinfra.Logger
	metrics         *otelinfra.Metrics
	tracer          trace.Tracer
	maxRetries      int
	now             func() time.Time
}

// NewResetApplicationService 新しいResetApplicationServiceを作成
func NewResetApplicationService(
	balanceRepo ledger.BalanceRepository,
	transactionRepo transaction.TransactionRepository,
	shadowStatRepo shadowstat.ShadowStatRepository,
	jobLogRepo joblog.JobExecutionRepository,
	warnLogRepo resetwarn.WarningLogRepository,
	txManager *mysql.TransactionManager,
	publisher EventPublisher,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *ResetApplicationService {
	return &ResetApplicationService{
		balanceRepo:     balanceRepo,
		transactionRepo: transactionRepo,
		shadowStatRepo:  shadowStatRepo,
		jobLogRepo:      jobLogRepo,
		warnLogRepo:     warnLogRepo,
		txManager:       txManager,
		publisher:       publisher,
		logger:          logger,
		metrics:         metrics,
		tracer:          otel.Tracer("reset-service"),
		maxRetries:      3,
		now:             time.Now,
	}
}

// SetClock テスト用に現在時刻の供給元を差し替える
func (s *ResetApplicationService) SetClock(now func() time.Time) {
	s.now = now
}

// Warn 当日XPを獲得している全ユーザーへリセット警告を配信する
// (user_id, 日付, 閾値)ごとに一度しか配信されず、
// 実行ごとに閾値付きジョブ名でジョブログが1行書かれる
func (s *ResetApplicationService) Warn(ctx context.Context, req *WarnRequest) (*WarnResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ResetApplicationService.Warn")
	defer span.End()

	span.SetAttributes(attribute.Int("threshold_minutes", req.ThresholdMinutes))

	started := s.now()
	nowUTC := started.UTC()
	warnDate := time.Date(nowUTC.Year(), nowUTC.Month(), nowUTC.Day(), 0, 0, 0, 0, time.UTC)
	jobName := fmt.Sprintf("%s_%d", joblog.JobNameResetWarning, req.ThresholdMinutes)

	stats, err := s.shadowStatRepo.FindAllWithXPToday(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.recordJobExecution(ctx, jobName, started, false, 0, err.Error())
		return nil, fmt.Errorf("failed to list users with xp today: %w", err)
	}

	resp := &WarnResponse{}
	var lastErr error
	for _, stat := range stats {
		first, err := s.warnLogRepo.MarkWarned(ctx, stat.UserID(), warnDate, req.ThresholdMinutes)
		if err != nil {
			lastErr = err
			s.logger.Error(ctx, "Failed to mark warning", err, map[string]interface{}{
				"user_id": stat.UserID(),
			})
			continue
		}
		if !first {
			resp.SkippedUsers++
			continue
		}

		xpToLose, err := s.xpToLose(ctx, stat)
		if err != nil {
			lastErr = err
			s.logger.Error(ctx, "Failed to compute xp at risk", err, map[string]interface{}{
				"user_id": stat.UserID(),
			})
			continue
		}
		if xpToLose <= 0 {
			resp.SkippedUsers++
			continue
		}

		event := messaging.ResetWarningEvent{
			UserID:           stat.UserID(),
			XPToLose:         xpToLose,
			ThresholdMinutes: req.ThresholdMinutes,
			Timestamp:        nowUTC,
		}
		if err := s.publisher.PublishResetWarning(ctx, event); err != nil {
			lastErr = err
			s.logger.Error(ctx, "Failed to publish reset warning", err, map[string]interface{}{
				"user_id": stat.UserID(),
			})
			// 警告マークを消しておくと次回の実行で再び配信対象になる
			if unmarkErr := s.warnLogRepo.Unmark(ctx, stat.UserID(), warnDate, req.ThresholdMinutes); unmarkErr != nil {
				s.logger.Error(ctx, "Failed to unmark warning", unmarkErr, map[string]interface{}{
					"user_id": stat.UserID(),
				})
			}
			continue
		}

		s.metrics.RecordResetWarning(ctx, req.ThresholdMinutes)
		resp.WarnedUsers++
	}

	success := lastErr == nil
	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	s.recordJobExecution(ctx, jobName, started, success, resp.WarnedUsers, errMsg)
	s.metrics.RecordJobDuration(ctx, jobName, s.now().Sub(started).Seconds(), success)

	s.logger.Info(ctx, "Reset warnings dispatched", map[string]interface{}{
		"threshold_minutes": req.ThresholdMinutes,
		"warned":            resp.WarnedUsers,
		"skipped":           resp.SkippedUsers,
		"success":           success,
	})
	return resp, nil
}

// NightlyReset 当日分のXPを焼却し日次統計をゼロに戻す
// ユーザーごとに reset_{日付}_{user_id} のトランザクションIDで冪等化されるため、
// ジョブの再実行で二重焼却は起きない
func (s *ResetApplicationService) NightlyReset(ctx context.Context) (*NightlyResetResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ResetApplicationService.NightlyReset")
	defer span.End()

	started := s.now()
	nowUTC := started.UTC()
	// 実行日をキーにする（ジョブログの成功判定と揃える）
	resetDate := nowUTC.Format("2006-01-02")
	span.SetAttributes(attribute.String("reset_date", resetDate))

	// 当日分が成功済みなら何もしない（手動トリガーとの競合対策）
	done, err := s.jobLogRepo.CountSuccessForDay(ctx, joblog.JobNameNightlyReset, nowUTC)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to check reset history: %w", err)
	}
	if done > 0 {
		s.logger.Info(ctx, "Nightly reset already done", map[string]interface{}{
			"reset_date": resetDate,
		})
		return &NightlyResetResponse{ResetDate: resetDate, AlreadyDone: true}, nil
	}

	s.logger.Info(ctx, "Starting nightly reset", map[string]interface{}{
		"reset_date": resetDate,
	})

	stats, err := s.shadowStatRepo.FindAllWithXPToday(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.recordJobExecution(ctx, joblog.JobNameNightlyReset, started, false, 0, err.Error())
		return nil, fmt.Errorf("failed to list users with xp today: %w", err)
	}

	var affectedUsers int
	var totalXPBurned int64
	var lastErr error

	for _, stat := range stats {
		burned, err := s.resetUser(ctx, stat.UserID(), resetDate, nowUTC)
		if err != nil {
			if errors.Is(err, transaction.ErrDuplicateTransaction) {
				// 前回実行が途中で落ちた場合の再処理: このユーザーは処理済み
				continue
			}
			lastErr = err
			s.logger.Error(ctx, "Failed to reset user", err, map[string]interface{}{
				"user_id": stat.UserID(),
			})
			continue
		}
		affectedUsers++
		totalXPBurned += burned
	}

	success := lastErr == nil
	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	s.recordJobExecution(ctx, joblog.JobNameNightlyReset, started, success, affectedUsers, errMsg)
	s.metrics.RecordXPBurned(ctx, totalXPBurned)
	s.metrics.RecordJobDuration(ctx, joblog.JobNameNightlyReset, s.now().Sub(started).Seconds(), success)

	event := messaging.NightlyResetSummaryEvent{
		ResetDate:     resetDate,
		AffectedUsers: affectedUsers,
		TotalXPBurned: totalXPBurned,
		Timestamp:     s.now().UTC(),
	}
	if err := s.publisher.PublishNightlyResetSummary(ctx, event); err != nil {
		s.logger.Error(ctx, "Failed to publish reset summary", err, nil)
	}

	s.logger.Info(ctx, "Nightly reset finished", map[string]interface{}{
		"reset_date":      resetDate,
		"affected_users":  affectedUsers,
		"total_xp_burned": totalXPBurned,
		"success":         success,
	})

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(otelcodes.Error, lastErr.Error())
	}

	return &NightlyResetResponse{
		ResetDate:     resetDate,
		AffectedUsers: affectedUsers,
		TotalXPBurned: totalXPBurned,
	}, lastErr
}

// JobHistory ジョブ実行履歴を取得
func (s *ResetApplicationService) JobHistory(ctx context.Context, req *JobHistoryRequest) (*JobHistoryResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ResetApplicationService.JobHistory")
	defer span.End()

	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	executions, err := s.jobLogRepo.FindByJobName(ctx, req.JobName, req.From, req.To, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to list job executions: %w", err)
	}

	items := make([]JobHistoryItem, 0, len(executions))
	for _, e := range executions {
		items = append(items, JobHistoryItem{
			JobName:         e.JobName(),
			ExecutedAt:      e.ExecutedAt(),
			Success:         e.Success(),
			RecordsAffected: e.RecordsAffected(),
			ErrorMessage:    e.ErrorMessage(),
		})
	}
	return &JobHistoryResponse{Executions: items}, nil
}

// resetUser 1ユーザー分のリセットを実行し、焼却したXP量を返す
func (s *ResetApplicationService) resetUser(ctx context.Context, userID, resetDate string, at time.Time) (int64, error) {
	var burned int64
	err := s.withConflictRetry(ctx, func(tx *sql.Tx) error {
		stat, err := s.shadowStatRepo.FindByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if stat.XPEarnedToday() == 0 {
			// 別の実行が先に処理済み
			burned = 0
			return nil
		}

		balance, err := s.balanceRepo.FindByUserID(ctx, tx, userID)
		if err != nil && !errors.Is(err, ledger.ErrBalanceNotFound) {
			return err
		}

		// 当日獲得分だけを焼く。残高が既にそれを下回っている場合は残高全額まで
		burn := int64(0)
		if balance != nil {
			burn = stat.XPEarnedToday()
			if balance.CurrentBalance() < burn {
				burn = balance.CurrentBalance()
			}
		}

		if burn > 0 {
			balanceBefore := balance.CurrentBalance()
			if err := balance.Spend(burn); err != nil {
				return err
			}

			txn, err := transaction.NewTransaction(
				fmt.Sprintf("reset_%s_%s", resetDate, userID),
				userID,
				transaction.TransactionKindReset,
				-burn,
				balanceBefore,
				balance.CurrentBalance(),
				"nightly reset "+resetDate,
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
		}

		stat.Reset(at)
		if err := s.shadowStatRepo.Save(ctx, tx, stat); err != nil {
			return err
		}

		burned = burn
		return nil
	})
	return burned, err
}

func (s *ResetApplicationService) xpToLose(ctx context.Context, stat *shadowstat.ShadowStat) (int64, error) {
	balance, err := s.balanceRepo.FindByUserID(ctx, nil, stat.UserID())
	if err != nil {
		if errors.Is(err, ledger.ErrBalanceNotFound) {
			return 0, nil
		}
		return 0, err
	}
	xpToLose := stat.XPEarnedToday()
	if balance.CurrentBalance() < xpToLose {
		xpToLose = balance.CurrentBalance()
	}
	return xpToLose, nil
}

// recordJobExecution ジョブログを書く
// バッチ本体と同じトランザクションには乗せない（失敗の記録を残すため）
func (s *ResetApplicationService) recordJobExecution(ctx context.Context, jobName string, at time.Time, success bool, affected int, errMsg string) {
	execution, err := joblog.NewJobExecution(jobName, at, success, affected, errMsg)
	if err != nil {
		s.logger.Error(ctx, "Failed to build job execution", err, nil)
		return
	}
	if err := s.jobLogRepo.Save(ctx, execution); err != nil {
		s.logger.Error(ctx, "Failed to save job execution", err, map[string]interface{}{
			"job_name": jobName,
		})
	}
}

func (s *ResetApplicationService) withConflictRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
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
