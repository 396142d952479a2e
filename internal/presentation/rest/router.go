package rest

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	conversionapp "press-pass-server/internal/application/conversion"
	ledgerapp "press-pass-server/internal/application/ledger"
	quotaapp "press-pass-server/internal/application/quota"
	reportingapp "press-pass-server/internal/application/reporting"
	resetapp "press-pass-server/internal/application/reset"
	shadowstatapp "press-pass-server/internal/application/shadowstat"
	"press-pass-server/internal/infrastructure/config"
	otelinfra "press-pass-server/internal/infrastructure/observability/otel"
	"press-pass-server/internal/presentation/rest/handler"
	restmiddleware "press-pass-server/internal/presentation/rest/middleware"
)

// Router REST APIルーター
type Router struct {
	echo          *echo.Echo
	ledgerHandler *handler.LedgerHandler
	statsHandler  *handler.StatsHandler
	signupHandler *handler.SignupHandler
	adminHandler  *handler.AdminHandler
}

// NewRouter 新しいRouterを作成
func NewRouter(
	cfg *config.Config,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
	ledgerService *ledgerapp.LedgerApplicationService,
	shadowStatService *shadowstatapp.ShadowStatApplicationService,
	conversionService *conversionapp.ConversionApplicationService,
	quotaService *quotaapp.QuotaApplicationService,
	resetService *resetapp.ResetApplicationService,
	reportingService *reportingapp.ReportingApplicationService,
) (*Router, error) {
	e := echo.New()

	// Echoのデフォルトエラーハンドラーを無効化（カスタムエラーハンドラーを使用）
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		// エラーハンドリングミドルウェアで処理される
	}

	// ミドルウェアの設定
	setupMiddleware(e, cfg, logger, metrics)

	// ハンドラーの作成
	ledgerHandler := handler.NewLedgerHandler(ledgerService)
	statsHandler := handler.NewStatsHandler(shadowStatService, conversionService)
	signupHandler := handler.NewSignupHandler(quotaService)
	adminHandler := handler.NewAdminHandler(reportingService, resetService, conversionService)

	// ルーティングの設定
	setupRoutes(e, cfg, logger, ledgerHandler, statsHandler, signupHandler, adminHandler)

	return &Router{
		echo:          e,
		ledgerHandler: ledgerHandler,
		statsHandler:  statsHandler,
		signupHandler: signupHandler,
		adminHandler:  adminHandler,
	}, nil
}

// setupMiddleware ミドルウェアを設定
func setupMiddleware(e *echo.Echo, cfg *config.Config, logger *otelinfra.Logger, metrics *otelinfra.Metrics) {
	// リカバリーミドルウェア
	e.Use(middleware.Recover())

	// セキュリティヘッダー
	e.Use(restmiddleware.SecurityHeadersMiddleware())

	// CORS設定
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"}, // 本番環境では適切に設定
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// リクエストIDの設定
	e.Use(middleware.RequestID())

	// トレーシングミドルウェア
	e.Use(restmiddleware.TracingMiddleware())

	// メトリクスミドルウェア
	e.Use(restmiddleware.MetricsMiddleware(metrics))

	// ログミドルウェア
	e.Use(restmiddleware.LoggingMiddleware(logger))

	// エラーハンドリングミドルウェア
	e.Use(restmiddleware.ErrorHandlerMiddleware(logger))
}

// setupRoutes ルーティングを設定
func setupRoutes(
	e *echo.Echo,
	cfg *config.Config,
	logger *otelinfra.Logger,
	ledgerHandler *handler.LedgerHandler,
	statsHandler *handler.StatsHandler,
	signupHandler *handler.SignupHandler,
	adminHandler *handler.AdminHandler,
) {
	// API v1グループ
	api := e.Group("/api/v1")

	// JWT認証が必要なユーザー向けエンドポイント
	meGroup := api.Group("/me", restmiddleware.AuthMiddleware(&cfg.JWT, logger))
	meGroup.GET("/balance", ledgerHandler.GetBalance)
	meGroup.GET("/transactions", ledgerHandler.GetTransactions)
	meGroup.GET("/shadow-stats", statsHandler.GetShadowStats)
	meGroup.GET("/conversion", statsHandler.GetConversion)

	// APIキー認証の内部エンドポイント（サインアップゲートはアカウント基盤から呼ばれる）
	internalGroup := api.Group("", restmiddleware.APIKeyMiddleware(&cfg.AdminAPI, logger))
	internalGroup.POST("/signups/admit", signupHandler.Admit)
	internalGroup.GET("/signups/quota", signupHandler.QuotaStatus)

	// APIキー認証の管理エンドポイント
	adminGroup := api.Group("/admin", restmiddleware.APIKeyMiddleware(&cfg.AdminAPI, logger))
	adminGroup.GET("/users/:user_id/balance", ledgerHandler.GetBalanceAdmin)
	adminGroup.GET("/users/:user_id/transactions", ledgerHandler.GetTransactionsAdmin)
	adminGroup.POST("/users/:user_id/transactions", ledgerHandler.CreateTransaction)
	adminGroup.GET("/users/:user_id/shadow-stats", statsHandler.GetShadowStatsAdmin)
	adminGroup.GET("/users/:user_id/conversion", statsHandler.GetConversionAdmin)
	adminGroup.GET("/users/:user_id/overview", adminHandler.GetUserOverview)
	adminGroup.GET("/reports/daily", adminHandler.GetDailyReport)
	adminGroup.GET("/reports/weekly", adminHandler.GetWeeklyReport)
	adminGroup.GET("/reports/funnel", adminHandler.GetFunnel)
	adminGroup.GET("/jobs", adminHandler.GetJobs)
	adminGroup.POST("/jobs/nightly-reset", adminHandler.TriggerNightlyReset)
	adminGroup.POST("/jobs/warn", adminHandler.TriggerWarn)
	adminGroup.POST("/jobs/sweep", adminHandler.TriggerSweep)

	// ヘルスチェックエンドポイント（認証不要）
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
}

// Start サーバーを起動
func (r *Router) Start(address string) error {
	return r.echo.Start(address)
}

// Shutdown サーバーをシャットダウン
func (r *Router) Shutdown() error {
	return r.echo.Close()
}
