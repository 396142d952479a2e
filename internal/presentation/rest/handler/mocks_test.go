package handler

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	conversionapp "press-pass-server/internal/application/conversion"
	ledgerapp "press-pass-server/internal/application/ledger"
	quotaapp "press-pass-server/internal/application/quota"
	reportingapp "press-pass-server/internal/application/reporting"
	resetapp "press-pass-server/internal/application/reset"
	shadowstatapp "press-pass-server/internal/application/shadowstat"
	"press-pass-server/internal/domain/conversion"
	"press-pass-server/internal/domain/joblog"
	"press-pass-server/internal/domain/ledger"
	"press-pass-server/internal/domain/quota"
	"press-pass-server/internal/domain/shadowstat"
	"press-pass-server/internal/domain/transaction"
	"press-pass-server/internal/infrastructure/messaging"
	otelinfra "press-pass-server/internal/infrastructure/observability/otel"
	"press-pass-server/internal/infrastructure/persistence/mysql"
	restmiddleware "press-pass-server/internal/presentation/rest/middleware"
)

// MockBalanceRepository モックXP残高リポジトリ
type MockBalanceRepository struct {
	mock.Mock
}

func (m *MockBalanceRepository) FindByUserID(ctx context.Context, tx *sql.Tx, userID string) (*ledger.Balance, error) {
	args := m.Called(ctx, tx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Balance), args.Error(1)
}

func (m *MockBalanceRepository) Save(ctx context.Context, tx *sql.Tx, balance *ledger.Balance) error {
	args := m.Called(ctx, tx, balance)
	return args.Error(0)
}

func (m *MockBalanceRepository) Create(ctx context.Context, tx *sql.Tx, balance *ledger.Balance) error {
	args := m.Called(ctx, tx, balance)
	return args.Error(0)
}

// MockTransactionRepository モックXPトランザクションリポジトリ
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Save(ctx context.Context, tx *sql.Tx, t *transaction.Transaction) error {
	args := m.Called(ctx, tx, t)
	return args.Error(0)
}

func (m *MockTransactionRepository) FindByTransactionID(ctx context.Context, transactionID string) (*transaction.Transaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) FindByUserID(ctx context.Context, userID string, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) SumByKindForRange(ctx context.Context, from, to time.Time) ([]transaction.KindSum, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]transaction.KindSum), args.Error(1)
}

// MockShadowStatRepository モックシャドウ統計リポジトリ
type MockShadowStatRepository struct {
	mock.Mock
}

func (m *MockShadowStatRepository) FindByUserID(ctx context.Context, tx *sql.Tx, userID string) (*shadowstat.ShadowStat, error) {
	args := m.Called(ctx, tx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shadowstat.ShadowStat), args.Error(1)
}

func (m *MockShadowStatRepository) FindAllWithXPToday(ctx context.Context, tx *sql.Tx) ([]*shadowstat.ShadowStat, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*shadowstat.ShadowStat), args.Error(1)
}

func (m *MockShadowStatRepository) Save(ctx context.Context, tx *sql.Tx, stat *shadowstat.ShadowStat) error {
	args := m.Called(ctx, tx, stat)
	return args.Error(0)
}

func (m *MockShadowStatRepository) Create(ctx context.Context, tx *sql.Tx, stat *shadowstat.ShadowStat) error {
	args := m.Called(ctx, tx, stat)
	return args.Error(0)
}

// MockConversionRecordRepository モックコンバージョン記録リポジトリ
type MockConversionRecordRepository struct {
	mock.Mock
}

func (m *MockConversionRecordRepository) FindByUserID(ctx context.Context, tx *sql.Tx, userID string) (*conversion.ConversionRecord, error) {
	args := m.Called(ctx, tx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversion.ConversionRecord), args.Error(1)
}

func (m *MockConversionRecordRepository) Create(ctx context.Context, tx *sql.Tx, record *conversion.ConversionRecord) error {
	args := m.Called(ctx, tx, record)
	return args.Error(0)
}

func (m *MockConversionRecordRepository) Save(ctx context.Context, tx *sql.Tx, record *conversion.ConversionRecord) error {
	args := m.Called(ctx, tx, record)
	return args.Error(0)
}

func (m *MockConversionRecordRepository) MarkExpiredBefore(ctx context.Context, tx *sql.Tx, startedBefore, endedAt time.Time) (int64, error) {
	args := m.Called(ctx, tx, startedBefore, endedAt)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockConversionRecordRepository) CountFunnel(ctx context.Context) (*conversion.FunnelStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversion.FunnelStats), args.Error(1)
}

func (m *MockConversionRecordRepository) CountConvertedInRange(ctx context.Context, from, to time.Time) (int64, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(int64), args.Error(1)
}

// MockWeeklyQuotaRepository モック週次枠リポジトリ
type MockWeeklyQuotaRepository struct {
	mock.Mock
}

func (m *MockWeeklyQuotaRepository) EnsureWeek(ctx context.Context, tx *sql.Tx, weekStartDate time.Time) error {
	args := m.Called(ctx, tx, weekStartDate)
	return args.Error(0)
}

func (m *MockWeeklyQuotaRepository) IncrementIfBelowCap(ctx context.Context, tx *sql.Tx, weekStartDate time.Time, cap int) (bool, error) {
	args := m.Called(ctx, tx, weekStartDate, cap)
	return args.Bool(0), args.Error(1)
}

func (m *MockWeeklyQuotaRepository) MarkLimitReached(ctx context.Context, tx *sql.Tx, weekStartDate time.Time) error {
	args := m.Called(ctx, tx, weekStartDate)
	return args.Error(0)
}

func (m *MockWeeklyQuotaRepository) FindByWeekStart(ctx context.Context, tx *sql.Tx, weekStartDate time.Time) (*quota.WeeklyQuota, error) {
	args := m.Called(ctx, tx, weekStartDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quota.WeeklyQuota), args.Error(1)
}

// MockJobExecutionRepository モックジョブ実行ログリポジトリ
type MockJobExecutionRepository struct {
	mock.Mock
}

func (m *MockJobExecutionRepository) Save(ctx context.Context, execution *joblog.JobExecution) error {
	args := m.Called(ctx, execution)
	return args.Error(0)
}

func (m *MockJobExecutionRepository) FindByJobName(ctx context.Context, jobName string, from, to time.Time, limit int) ([]*joblog.JobExecution, error) {
	args := m.Called(ctx, jobName, from, to, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*joblog.JobExecution), args.Error(1)
}

func (m *MockJobExecutionRepository) CountSuccessForDay(ctx context.Context, jobName string, day time.Time) (int, error) {
	args := m.Called(ctx, jobName, day)
	return args.Int(0), args.Error(1)
}

// MockWarningLogRepository モック警告送信ログリポジトリ
type MockWarningLogRepository struct {
	mock.Mock
}

func (m *MockWarningLogRepository) MarkWarned(ctx context.Context, userID string, warnDate time.Time, thresholdMinutes int) (bool, error) {
	args := m.Called(ctx, userID, warnDate, thresholdMinutes)
	return args.Bool(0), args.Error(1)
}

func (m *MockWarningLogRepository) Unmark(ctx context.Context, userID string, warnDate time.Time, thresholdMinutes int) error {
	args := m.Called(ctx, userID, warnDate, thresholdMinutes)
	return args.Error(0)
}

// MockProcessedTradeRepository モック処理済みトレードリポジトリ
type MockProcessedTradeRepository struct {
	mock.Mock
}

func (m *MockProcessedTradeRepository) Mark(ctx context.Context, tx *sql.Tx, tradeID, userID string) error {
	args := m.Called(ctx, tx, tradeID, userID)
	return args.Error(0)
}

// MockResetPublisher モックリセットイベント配信
type MockResetPublisher struct {
	mock.Mock
}

func (m *MockResetPublisher) PublishResetWarning(ctx context.Context, event messaging.ResetWarningEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockResetPublisher) PublishNightlyResetSummary(ctx context.Context, event messaging.NightlyResetSummaryEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockConversionPublisher モックコンバージョンイベント配信
type MockConversionPublisher struct {
	mock.Mock
}

func (m *MockConversionPublisher) PublishConversionFinalized(ctx context.Context, event messaging.ConversionFinalizedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// handlerEnv ハンドラーテスト共通のモック束とサービス群
type handlerEnv struct {
	echo           *echo.Echo
	balanceRepo    *MockBalanceRepository
	txnRepo        *MockTransactionRepository
	statRepo       *MockShadowStatRepository
	conversionRepo *MockConversionRecordRepository
	quotaRepo      *MockWeeklyQuotaRepository
	jobLogRepo     *MockJobExecutionRepository
	warnLogRepo    *MockWarningLogRepository
	tradeRepo      *MockProcessedTradeRepository
	dbMock         sqlmock.Sqlmock

	ledgerService     *ledgerapp.LedgerApplicationService
	shadowStatService *shadowstatapp.ShadowStatApplicationService
	conversionService *conversionapp.ConversionApplicationService
	quotaService      *quotaapp.QuotaApplicationService
	resetService      *resetapp.ResetApplicationService
	reportingService  *reportingapp.ReportingApplicationService
	logger            *otelinfra.Logger
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	rawDB, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })

	db := &mysql.DB{DB: rawDB}
	txManager := mysql.NewTransactionManager(db)

	tracer := noop.NewTracerProvider().Tracer("test")
	logger := otelinfra.NewLogger(tracer)
	metrics, err := otelinfra.NewMetrics("test")
	require.NoError(t, err)

	env := &handlerEnv{
		echo:           echo.New(),
		balanceRepo:    new(MockBalanceRepository),
		txnRepo:        new(MockTransactionRepository),
		statRepo:       new(MockShadowStatRepository),
		conversionRepo: new(MockConversionRecordRepository),
		quotaRepo:      new(MockWeeklyQuotaRepository),
		jobLogRepo:     new(MockJobExecutionRepository),
		warnLogRepo:    new(MockWarningLogRepository),
		tradeRepo:      new(MockProcessedTradeRepository),
		dbMock:         dbMock,
		logger:         logger,
	}

	env.ledgerService = ledgerapp.NewLedgerApplicationService(
		env.balanceRepo, env.txnRepo, txManager, logger, metrics,
	)
	env.shadowStatService = shadowstatapp.NewShadowStatApplicationService(
		env.balanceRepo, env.txnRepo, env.statRepo, env.tradeRepo, txManager, logger, metrics,
	)
	env.conversionService = conversionapp.NewConversionApplicationService(
		env.conversionRepo, env.statRepo, env.balanceRepo, env.txnRepo, env.jobLogRepo,
		txManager, new(MockConversionPublisher), logger, metrics, 7, 50,
	)
	env.quotaService = quotaapp.NewQuotaApplicationService(
		env.quotaRepo, txManager, logger, metrics, 200,
	)
	env.resetService = resetapp.NewResetApplicationService(
		env.balanceRepo, env.txnRepo, env.statRepo, env.jobLogRepo, env.warnLogRepo,
		txManager, new(MockResetPublisher), logger, metrics,
	)
	env.reportingService = reportingapp.NewReportingApplicationService(
		env.balanceRepo, env.txnRepo, env.statRepo, env.conversionRepo, logger,
	)

	return env
}

// invoke エラーハンドリングミドルウェアを通してハンドラーを実行する
func (env *handlerEnv) invoke(c echo.Context, h echo.HandlerFunc) {
	middlewareFunc := restmiddleware.ErrorHandlerMiddleware(env.logger)
	if err := middlewareFunc(h)(c); err != nil {
		env.echo.HTTPErrorHandler(err, c)
	}
}
