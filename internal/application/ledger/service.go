package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"press-pass-server/internal/domain/ledger"
	"press-pass-server/internal/domain/transaction"
	otelinfra "press-pass-server/internal/infrastructure/observability/otel"
	"press-pass-server/internal/infrastructure/persistence/mysql"
)

// LedgerApplicationService XP台帳アプリケーションサービス
type LedgerApplicationService struct {
	balanceRepo     ledger.BalanceRepository
	transactionRepo transaction.TransactionRepository
	txManager       *mysql.TransactionManager
	logger          *otelinfra.Logger
	metrics         *otelinfra.Metrics
	tracer          trace.Tracer
	maxRetries      int
}

// NewLedgerApplicationService 新しいLedgerApplicationServiceを作成
func NewLedgerApplicationService(
	balanceRepo ledger.BalanceRepository,
	transactionRepo transaction.TransactionRepository,
	txManager *mysql.TransactionManager,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *LedgerApplicationService {
	return &LedgerApplicationService{
		balanceRepo:     balanceRepo,
		transactionRepo: transactionRepo,
		txManager:       txManager,
		logger:          logger,
		metrics:         metrics,
		tracer:          otel.Tracer("ledger-service"),
		maxRetries:      3,
	}
}

// Credit XPを加算する（earn/bonus/refund）
// 同一TransactionIDの再実行は台帳を変更せずDuplicate=trueを返す
func (s *LedgerApplicationService) Credit(ctx context.Context, req *CreditRequest) (*CreditResponse, error) {
	ctx, span := s.tracer.Start(ctx, "LedgerApplicationService.Credit")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("kind", req.Kind),
		attribute.Int64("amount", req.Amount),
	)

	kind, err := transaction.NewTransactionKind(req.Kind)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	if kind.Sign() < 0 {
		err := transaction.ErrInvalidKind
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	transactionID := req.TransactionID
	if transactionID == "" {
		transactionID = uuid.New().String()
	}

	s.logger.Info(ctx, "Crediting XP", map[string]interface{}{
		"user_id":        req.UserID,
		"kind":           req.Kind,
		"amount":         req.Amount,
		"transaction_id": transactionID,
	})

	var result *CreditResponse
	err = s.withConflictRetry(ctx, func(tx *sql.Tx) error {
		balance, err := s.findOrCreateBalance(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		balanceBefore := balance.CurrentBalance()
		if err := balance.Earn(req.Amount); err != nil {
			return err
		}

		txn, err := transaction.NewTransaction(
			transactionID,
			req.UserID,
			kind,
			req.Amount,
			balanceBefore,
			balance.CurrentBalance(),
			req.Description,
			req.Metadata,
		)
		if err != nil {
			return err
		}

		// 重複IDはロールバックで台帳を無傷に保つ
		if err := s.transactionRepo.Save(ctx, tx, txn); err != nil {
			return err
		}

		if err := s.balanceRepo.Save(ctx, tx, balance); err != nil {
			return err
		}

		s.metrics.RecordXPTransaction(ctx, kind.String())
		s.metrics.RecordXPBalance(ctx, req.UserID, balance.CurrentBalance())

		result = &CreditResponse{
			TransactionID: transactionID,
			BalanceAfter:  balance.CurrentBalance(),
		}
		return nil
	})

	if errors.Is(err, transaction.ErrDuplicateTransaction) {
		s.logger.Info(ctx, "Duplicate credit ignored", map[string]interface{}{
			"transaction_id": transactionID,
		})
		return s.duplicateCreditResponse(ctx, transactionID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to credit XP", err, map[string]interface{}{
			"user_id": req.UserID,
		})
		s.metrics.RecordError(ctx, "credit_failed")
		return nil, err
	}

	return result, nil
}

// Spend XPを消費する
// 残高不足はErrInsufficientBalance（部分消費はしない）
func (s *LedgerApplicationService) Spend(ctx context.Context, req *SpendRequest) (*SpendResponse, error) {
	ctx, span := s.tracer.Start(ctx, "LedgerApplicationService.Spend")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.Int64("amount", req.Amount),
	)

	transactionID := req.TransactionID
	if transactionID == "" {
		transactionID = uuid.New().String()
	}

	s.logger.Info(ctx, "Spending XP", map[string]interface{}{
		"user_id":        req.UserID,
		"amount":         req.Amount,
		"transaction_id": transactionID,
	})

	var result *SpendResponse
	err := s.withConflictRetry(ctx, func(tx *sql.Tx) error {
		balance, err := s.balanceRepo.FindByUserID(ctx, tx, req.UserID)
		if err != nil {
			if errors.Is(err, ledger.ErrBalanceNotFound) {
				return ledger.ErrInsufficientBalance
			}
			return err
		}

		balanceBefore := balance.CurrentBalance()
		if err := balance.Spend(req.Amount); err != nil {
			return err
		}

		txn, err := transaction.NewTransaction(
			transactionID,
			req.UserID,
			transaction.TransactionKindSpend,
			-req.Amount,
			balanceBefore,
			balance.CurrentBalance(),
			req.Description,
			req.Metadata,
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

		s.metrics.RecordXPTransaction(ctx, transaction.TransactionKindSpend.String())
		s.metrics.RecordXPBalance(ctx, req.UserID, balance.CurrentBalance())

		result = &SpendResponse{
			TransactionID: transactionID,
			BalanceAfter:  balance.CurrentBalance(),
		}
		return nil
	})

	if errors.Is(err, transaction.ErrDuplicateTransaction) {
		s.logger.Info(ctx, "Duplicate spend ignored", map[string]interface{}{
			"transaction_id": transactionID,
		})
		return s.duplicateSpendResponse(ctx, transactionID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to spend XP", err, map[string]interface{}{
			"user_id": req.UserID,
		})
		s.metrics.RecordError(ctx, "spend_failed")
		return nil, err
	}

	return result, nil
}

// GetBalance 残高を取得
// 残高レコードがないユーザーはゼロ残高として返す
func (s *LedgerApplicationService) GetBalance(ctx context.Context, req *GetBalanceRequest) (*GetBalanceResponse, error) {
	ctx, span := s.tracer.Start(ctx, "LedgerApplicationService.GetBalance")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", req.UserID))

	balance, err := s.balanceRepo.FindByUserID(ctx, nil, req.UserID)
	if err != nil {
		if errors.Is(err, ledger.ErrBalanceNotFound) {
			return &GetBalanceResponse{UserID: req.UserID}, nil
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find balance: %w", err)
	}

	s.metrics.RecordXPBalance(ctx, req.UserID, balance.CurrentBalance())

	return &GetBalanceResponse{
		UserID:         balance.UserID(),
		CurrentBalance: balance.CurrentBalance(),
		LifetimeEarned: balance.LifetimeEarned(),
		LifetimeSpent:  balance.LifetimeSpent(),
		PrestigeLevel:  balance.PrestigeLevel(),
	}, nil
}

// ListTransactions トランザクション履歴を取得（新しい順）
func (s *LedgerApplicationService) ListTransactions(ctx context.Context, req *ListTransactionsRequest) (*ListTransactionsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "LedgerApplicationService.ListTransactions")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", req.UserID))

	filter := transaction.ListFilter{
		From:   req.From,
		To:     req.To,
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if req.Kind != "" {
		kind, err := transaction.NewTransactionKind(req.Kind)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, err
		}
		filter.Kind = &kind
	}

	transactions, err := s.transactionRepo.FindByUserID(ctx, req.UserID, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	items := make([]TransactionItem, 0, len(transactions))
	for _, t := range transactions {
		items = append(items, TransactionItem{
			TransactionID: t.TransactionID(),
			Kind:          t.Kind().String(),
			Amount:        t.Amount(),
			BalanceBefore: t.BalanceBefore(),
			BalanceAfter:  t.BalanceAfter(),
			Description:   t.Description(),
			CreatedAt:     t.CreatedAt(),
		})
	}

	return &ListTransactionsResponse{
		UserID:       req.UserID,
		Transactions: items,
	}, nil
}

// findOrCreateBalance 残高を取得し、なければゼロ残高で作成する
func (s *LedgerApplicationService) findOrCreateBalance(ctx context.Context, tx *sql.Tx, userID string) (*ledger.Balance, error) {
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

// withConflictRetry 楽観的ロック衝突時にトランザクション全体をやり直す
// （同一SQLトランザクション内での再読み込みはREPEATABLE READ下で無意味なため）
func (s *LedgerApplicationService) withConflictRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * 10 * time.Millisecond
			time.Sleep(backoff)
		}
		err = s.txManager.WithTransaction(ctx, fn)
		if !errors.Is(err, ledger.ErrConcurrencyConflict) {
			return err
		}
	}
	return err
}

func (s *LedgerApplicationService) duplicateCreditResponse(ctx context.Context, transactionID string) (*CreditResponse, error) {
	existing, err := s.transactionRepo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing transaction: %w", err)
	}
	return &CreditResponse{
		TransactionID: transactionID,
		BalanceAfter:  existing.BalanceAfter(),
		Duplicate:     true,
	}, nil
}

func (s *LedgerApplicationService) duplicateSpendResponse(ctx context.Context, transactionID string) (*SpendResponse, error) {
	existing, err := s.transactionRepo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing transaction: %w", err)
	}
	return &SpendResponse{
		TransactionID: transactionID,
		BalanceAfter:  existing.BalanceAfter(),
		Duplicate:     true,
	}, nil
}
