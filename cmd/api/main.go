package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-space-reservation/internal/api"
	"github.com/sanosuguru/go-space-reservation/internal/api/handler"
	custommw "github.com/sanosuguru/go-space-reservation/internal/api/middleware"
	"github.com/sanosuguru/go-space-reservation/internal/application"
	"github.com/sanosuguru/go-space-reservation/internal/config"
	"github.com/sanosuguru/go-space-reservation/internal/domain/notification"
	"github.com/sanosuguru/go-space-reservation/internal/infrastructure/amqpout"
	"github.com/sanosuguru/go-space-reservation/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-space-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/metrics"
	"github.com/sanosuguru/go-space-reservation/internal/worker"
)

func main() {
	// .env はローカル開発用（無ければ環境変数のみ）
	_ = godotenv.Load()

	cfg := config.Load()

	env := os.Getenv("APP_ENV")
	logger.Set(logger.NewLogger(env))
	defer logger.Sync()

	m := metrics.Init()

	// PostgreSQL
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("データベース接続に失敗", zap.Error(err))
	}
	defer db.Close()

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "migrations"
	}
	if err := postgres.RunMigrations(db.DB, migrationsPath); err != nil {
		logger.Fatal("マイグレーションに失敗", zap.Error(err))
	}

	// Redis
	redisClient := redisinfra.NewClient(&cfg.Redis)
	defer redisClient.Close()
	if err := redisinfra.Ping(context.Background(), redisClient); err != nil {
		logger.Fatal("Redis接続に失敗", zap.Error(err))
	}

	// 通知チャネル（RabbitMQ）。通知無効時はNoop
	var dispatcher notification.Dispatcher = notification.Noop{}
	if cfg.Notification.MailsEnabled {
		publisher, err := amqpout.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Fatal("RabbitMQ接続に失敗", zap.Error(err))
		}
		defer publisher.Close()
		dispatcher = publisher
	}

	// リポジトリ
	txManager := postgres.NewTxManager(db)
	unitRepo := postgres.NewUnitRepository(db)
	resourceRepo := postgres.NewResourceRepository(db)
	reservationRepo := postgres.NewReservationRepository(db)
	periodRepo := postgres.NewPeriodRepository(db)
	intervalRepo := postgres.NewOpeningIntervalRepository(db)
	metadataRepo := postgres.NewMetadataRepository(db)
	authRepo := postgres.NewAuthorizationRepository(db)

	openingCache := redisinfra.NewOpeningCache(redisClient, cfg.Reservation.OpeningCacheTTL)
	lockManager := redisinfra.NewLockManager(redisClient)

	// アプリケーションサービス
	openingService := application.NewOpeningService(
		txManager, periodRepo, intervalRepo, resourceRepo, unitRepo, openingCache, cfg.Reservation)
	reservationService := application.NewReservationService(
		txManager, reservationRepo, resourceRepo, unitRepo, metadataRepo, authRepo,
		openingService, dispatcher, cfg.Reservation, cfg.Features)
	availabilityService := application.NewAvailabilityService(
		resourceRepo, unitRepo, reservationRepo, openingService, cfg.Reservation)

	// 支払い待ち予約スイーパー
	sweeper := worker.NewPaymentSweeper(reservationService, lockManager, cfg.Reservation.SweeperInterval)
	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	defer cancelSweeper()
	go sweeper.Start(sweeperCtx)

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	custommw.SetupMiddleware(e)
	e.Use(custommw.PrometheusMiddleware(m))

	// ハンドラー
	healthHandler := handler.NewHealthHandler()
	reservationHandler := handler.NewReservationHandler(reservationService)
	resourceHandler := handler.NewResourceHandler(reservationService, availabilityService, resourceRepo)
	periodHandler := handler.NewPeriodHandler(reservationService, openingService)

	// ルーティング
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), custommw.MetricsBasicAuth())

	v1 := e.Group("/api/v1")
	v1.GET("/health", healthHandler.Check)

	v1.POST("/reservations", reservationHandler.Create)
	v1.GET("/reservations", reservationHandler.List)
	v1.GET("/reservations/:id", reservationHandler.GetByID)
	v1.PUT("/reservations/:id", reservationHandler.Update)
	v1.DELETE("/reservations/:id", reservationHandler.Cancel)
	v1.POST("/reservations/:id/approve", reservationHandler.Approve)
	v1.POST("/reservations/:id/deny", reservationHandler.Deny)
	v1.POST("/reservations/:id/payment/confirm", reservationHandler.ConfirmPayment)
	v1.POST("/reservations/:id/payment/fail", reservationHandler.FailPayment)

	v1.GET("/resources", resourceHandler.List)
	v1.GET("/resources/:id", resourceHandler.GetByID)
	v1.GET("/resources/:id/periods", periodHandler.ListForResource)
	v1.POST("/resources/:id/recompute", periodHandler.Recompute)

	v1.POST("/periods", periodHandler.Create)
	v1.PUT("/periods/:id", periodHandler.Update)
	v1.DELETE("/periods/:id", periodHandler.Delete)

	// サーバー起動
	go func() {
		addr := ":" + cfg.Server.Port
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	cancelSweeper()
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("サーバーシャットダウンエラー", zap.Error(err))
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
