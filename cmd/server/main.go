package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	conversionapp "press-pass-server/internal/application/conversion"
	ledgerapp "press-pass-server/internal/application/ledger"
	quotaapp "press-pass-server/internal/application/quota"
	reportingapp "press-pass-server/internal/application/reporting"
	resetapp "press-pass-server/internal/application/reset"
	shadowstatapp "press-pass-server/internal/application/shadowstat"
	conversiondomain "press-pass-server/internal/domain/conversion"
	"press-pass-server/internal/infrastructure/config"
	"press-pass-server/internal/infrastructure/messaging"
	otelinfra "press-pass-server/internal/infrastructure/observability/otel"
	"press-pass-server/internal/infrastructure/persistence/mysql"
	"press-pass-server/internal/infrastructure/scheduler"
	"press-pass-server/internal/presentation/rest"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// OpenTelemetryの初期化
	tracerShutdown, err := otelinfra.InitTracer(&cfg.OpenTelemetry)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(ctx); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	meterShutdown, err := otelinfra.InitMeter(&cfg.OpenTelemetry)
	if err != nil {
		log.Fatalf("Failed to initialize meter: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterShutdown(ctx); err != nil {
			log.Printf("Failed to shutdown meter: %v", err)
		}
	}()

	// ロガーとメトリクスの初期化
	tracer := otelinfra.Tracer("press-pass-server")
	logger := otelinfra.NewLogger(tracer)
	metrics, err := otelinfra.NewMetrics("press-pass-server")
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	// データベース接続の初期化
	db, err := mysql.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// マイグレーションの適用
	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := mysql.NewMigrator(db.DB).Up(migrateCtx); err != nil {
		migrateCancel()
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	migrateCancel()

	// リポジトリの初期化
	balanceRepo := mysql.NewBalanceRepository(db)
	transactionRepo := mysql.NewTransactionRepository(db)
	shadowStatRepo := mysql.NewShadowStatRepository(db)
	conversionRepo := mysql.NewConversionRecordRepository(db)
	quotaRepo := mysql.NewWeeklyQuotaRepository(db)
	jobLogRepo := mysql.NewJobExecutionRepository(db)
	warnLogRepo := mysql.NewResetWarningRepository(db)
	processedTradeRepo := mysql.NewProcessedTradeRepository(db)

	// トランザクションマネージャーの初期化
	txManager := mysql.NewTransactionManager(db)

	// NATS接続とイベント配信の初期化
	var resetPublisher resetapp.EventPublisher = messaging.NoopPublisher{}
	var conversionPublisher conversionapp.EventPublisher = messaging.NoopPublisher{}
	var natsCloser func()
	var subscriberStarter func(ctx context.Context, handlers messaging.EventHandlers) (*messaging.EventSubscriber, error)
	if cfg.NATS.Enabled {
		nc, js, err := messaging.Connect(cfg.NATS.URL, logger)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		natsCloser = nc.Close

		streamCtx, streamCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := messaging.EnsureStreams(streamCtx, js); err != nil {
			streamCancel()
			log.Fatalf("Failed to ensure streams: %v", err)
		}
		streamCancel()

		publisher := messaging.NewEventPublisher(js)
		resetPublisher = publisher
		conversionPublisher = publisher

		subscriberStarter = func(ctx context.Context, handlers messaging.EventHandlers) (*messaging.EventSubscriber, error) {
			sub := messaging.NewEventSubscriber(js, handlers, logger)
			if err := sub.Subscribe(ctx); err != nil {
				return nil, err
			}
			return sub, nil
		}
	}
	if natsCloser != nil {
		defer natsCloser()
	}

	// アプリケーションサービスの初期化
	ledgerAppService := ledgerapp.NewLedgerApplicationService(
		balanceRepo,
		transactionRepo,
		txManager,
		logger,
		metrics,
	)

	shadowStatAppService := shadowstatapp.NewShadowStatApplicationService(
		balanceRepo,
		transactionRepo,
		shadowStatRepo,
		processedTradeRepo,
		txManager,
		logger,
		metrics,
	)

	conversionAppService := conversionapp.NewConversionApplicationService(
		conversionRepo,
		shadowStatRepo,
		balanceRepo,
		transactionRepo,
		jobLogRepo,
		txManager,
		conversionPublisher,
		logger,
		metrics,
		cfg.PressPass.TrialDurationDays,
		cfg.PressPass.ConversionBonusXP,
	)

	quotaAppService := quotaapp.NewQuotaApplicationService(
		quotaRepo,
		txManager,
		logger,
		metrics,
		cfg.PressPass.WeeklySignupCap,
	)

	resetAppService := resetapp.NewResetApplicationService(
		balanceRepo,
		transactionRepo,
		shadowStatRepo,
		jobLogRepo,
		warnLogRepo,
		txManager,
		resetPublisher,
		logger,
		metrics,
	)

	reportingAppService := reportingapp.NewReportingApplicationService(
		balanceRepo,
		transactionRepo,
		shadowStatRepo,
		conversionRepo,
		logger,
	)

	// イベント購読の開始
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	var subscriber *messaging.EventSubscriber
	if subscriberStarter != nil {
		handlers := messaging.EventHandlers{
			TradeCompleted: func(ctx context.Context, event messaging.TradeCompletedEvent) error {
				tier, err := conversiondomain.NewTier(event.Tier)
				if err != nil || !tier.IsTrial() {
					// Press Pass外のトレードはこのサービスの対象外
					return nil
				}
				_, err = shadowStatAppService.RecordTrade(ctx, &shadowstatapp.RecordTradeRequest{
					TradeID: event.TradeID,
					UserID:  event.UserID,
					XPDelta: event.XPDelta,
					IsWin:   event.IsWin,
				})
				return err
			},
			TierChanged: func(ctx context.Context, event messaging.TierChangedEvent) error {
				_, err := conversionAppService.OnTierChange(ctx, &conversionapp.TierChangeRequest{
					UserID:  event.UserID,
					OldTier: event.OldTier,
					NewTier: event.NewTier,
				})
				return err
			},
			TrialStarted: func(ctx context.Context, event messaging.TrialStartedEvent) error {
				_, err := conversionAppService.OnTrialStart(ctx, &conversionapp.TrialStartRequest{
					UserID:   event.UserID,
					Source:   event.Source,
					Campaign: event.Campaign,
					At:       event.Timestamp,
				})
				return err
			},
		}

		subscriber, err = subscriberStarter(rootCtx, handlers)
		if err != nil {
			log.Fatalf("Failed to start subscriber: %v", err)
		}
	}

	// スケジューラの起動
	sched := scheduler.NewScheduler(
		resetAppService,
		conversionAppService,
		logger,
		cfg.PressPass.SchedulerInterval,
		cfg.PressPass.ResetHourUTC,
		cfg.PressPass.WarnThresholds,
	)
	go sched.Run(rootCtx)

	// REST APIルーターの初期化
	router, err := rest.NewRouter(
		cfg,
		logger,
		metrics,
		ledgerAppService,
		shadowStatAppService,
		conversionAppService,
		quotaAppService,
		resetAppService,
		reportingAppService,
	)
	if err != nil {
		log.Fatalf("Failed to create router: %v", err)
	}

	// サーバーアドレスの設定
	address := fmt.Sprintf(":%d", cfg.Server.Port)

	// グレースフルシャットダウンの設定
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// REST APIサーバーを別ゴルーチンで起動
	go func() {
		log.Printf("REST API server starting on %s", address)
		if err := router.Start(address); err != nil {
			log.Printf("REST API server error: %v", err)
		}
	}()

	// シグナルを待機
	<-quit
	log.Println("Shutting down server...")

	// スケジューラと購読を停止
	rootCancel()
	if subscriber != nil {
		subscriber.Stop()
	}

	// REST APIサーバーのシャットダウン
	if err := router.Shutdown(); err != nil {
		log.Printf("Error shutting down REST API server: %v", err)
	}

	log.Println("Server stopped")
}
