package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ashar-khursheed/care-platform-backend/internal/config"
	"github.com/ashar-khursheed/care-platform-backend/internal/db"
	httpHandlers "github.com/ashar-khursheed/care-platform-backend/internal/http/handlers"
	httpRouter "github.com/ashar-khursheed/care-platform-backend/internal/http/router"
	"github.com/ashar-khursheed/care-platform-backend/internal/logger"
	"github.com/ashar-khursheed/care-platform-backend/internal/repository"
	"github.com/ashar-khursheed/care-platform-backend/internal/service"
	"github.com/ashar-khursheed/care-platform-backend/internal/worker"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret)

	// Репозитории.
	withdrawalRepo := repository.NewWithdrawalRepository(dbConn)
	payoutRepo := repository.NewPayoutRepository(dbConn)

	// Сервисы.
	settlementService := service.NewSettlementService(withdrawalRepo, payoutRepo, nil, cfg.EscrowHoldPeriod)

	// Фоновая задача авторелиза эскроу.
	sweeper := worker.NewAutoReleaseWorker(settlementService, cfg.SweepInterval, int(cfg.SweepBatchSize))
	if cfg.SweepEnabled {
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	// HTTP хэндлеры.
	withdrawalHandler := httpHandlers.NewWithdrawalHandler(settlementService)
	adminHandler := httpHandlers.NewSettlementAdminHandler(settlementService, sweeper)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, withdrawalHandler, adminHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
