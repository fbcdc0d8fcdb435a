package e2e

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-space-reservation/internal/api"
	"github.com/sanosuguru/go-space-reservation/internal/api/handler"
	"github.com/sanosuguru/go-space-reservation/internal/api/middleware"
	"github.com/sanosuguru/go-space-reservation/internal/application"
	"github.com/sanosuguru/go-space-reservation/internal/config"
	"github.com/sanosuguru/go-space-reservation/internal/domain/notification"
	"github.com/sanosuguru/go-space-reservation/internal/domain/resource"
	"github.com/sanosuguru/go-space-reservation/internal/domain/unit"
	"github.com/sanosuguru/go-space-reservation/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-space-reservation/internal/infrastructure/redis"
)

var (
	testServer   *TestServer
	testDB       *sqlx.DB
	redisClient  *goredis.Client
	unitRepo     unit.Repository
	resourceRepo resource.Repository
)

// TestMain はE2Eテストのエントリポイント
// パッケージ全体で1回だけサーバーを組み立てることで高速化
func TestMain(m *testing.M) {
	cfg := config.Load()

	// DB接続
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		os.Exit(0) // DB未起動時はスキップ
	}
	testDB = db

	// Redis接続
	rc := redisinfra.NewClient(&cfg.Redis)
	if err := redisinfra.Ping(context.Background(), rc); err != nil {
		db.Close()
		os.Exit(0) // Redis未起動時はスキップ
	}
	redisClient = rc

	// リポジトリとサービス
	txManager := postgres.NewTxManager(db)
	unitRepo = postgres.NewUnitRepository(db)
	resourceRepo = postgres.NewResourceRepository(db)
	reservationRepo := postgres.NewReservationRepository(db)
	periodRepo := postgres.NewPeriodRepository(db)
	intervalRepo := postgres.NewOpeningIntervalRepository(db)
	metadataRepo := postgres.NewMetadataRepository(db)
	authRepo := postgres.NewAuthorizationRepository(db)
	openingCache := redisinfra.NewOpeningCache(redisClient, cfg.Reservation.OpeningCacheTTL)

	openingService := application.NewOpeningService(
		txManager, periodRepo, intervalRepo, resourceRepo, unitRepo, openingCache, cfg.Reservation)
	reservationService := application.NewReservationService(
		txManager, reservationRepo, resourceRepo, unitRepo, metadataRepo, authRepo,
		openingService, notification.Noop{}, cfg.Reservation, config.FeatureFlags{CommentsEnabled: true})
	availabilityService := application.NewAvailabilityService(
		resourceRepo, unitRepo, reservationRepo, openingService, cfg.Reservation)

	healthHandler := handler.NewHealthHandler()
	reservationHandler := handler.NewReservationHandler(reservationService)
	resourceHandler := handler.NewResourceHandler(reservationService, availabilityService, resourceRepo)
	periodHandler := handler.NewPeriodHandler(reservationService, openingService)

	// Echo セットアップ
	e := echo.New()
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	middleware.SetupMiddleware(e)

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

	testServer = &TestServer{Echo: e}

	// テスト実行
	code := m.Run()

	// 最終クリーンアップ
	cleanupTables()
	redisClient.Close()
	db.Close()

	os.Exit(code)
}

// cleanupTables はテーブルをクリーンアップ
func cleanupTables() {
	testDB.Exec("TRUNCATE TABLE reservations, opening_intervals, period_days, periods, unit_authorizations, users, resources, units RESTART IDENTITY CASCADE")
	redisClient.FlushDB(context.Background())
}

// getTestServer は共有サーバーを取得（テスト前にテーブルをクリーンアップ）
func getTestServer(t *testing.T) *TestServer {
	t.Helper()
	if testServer == nil {
		t.Skip("テスト環境が利用できません")
	}
	cleanupTables()
	return testServer
}
