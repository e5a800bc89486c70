package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ashar-khursheed/care-platform-backend/internal/config"
	"github.com/ashar-khursheed/care-platform-backend/internal/http/handlers"
	"github.com/ashar-khursheed/care-platform-backend/internal/http/middleware"
	"github.com/ashar-khursheed/care-platform-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	withdrawalHandler *handlers.WithdrawalHandler,
	adminHandler *handlers.SettlementAdminHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	auth := middleware.AuthMiddleware(tokenManager)

	// Операции исполнителя над собственными расчётами.
	settlements := r.Group("/api/settlements", auth, middleware.RequireRole(middleware.RoleProvider))
	{
		settlements.GET("/my", withdrawalHandler.ListMyRecords)
		settlements.GET("/:id", middleware.UUIDValidator("id"), withdrawalHandler.GetRecord)
		// Подачу заявок дополнительно ограничиваем по частоте.
		rateLimited := settlements.Group("", middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
		rateLimited.POST("/:id/request-withdrawal", middleware.UUIDValidator("id"), withdrawalHandler.RequestWithdrawal)
		rateLimited.POST("/:id/cancel-withdrawal", middleware.UUIDValidator("id"), withdrawalHandler.CancelWithdrawal)
	}

	// Администрирование расчётов.
	admin := r.Group("/api/admin/settlements", auth, middleware.RequireRole(middleware.RoleAdmin))
	{
		admin.POST("", adminHandler.CreateRecord)
		admin.GET("", adminHandler.ListRecords)
		admin.POST("/sweep", adminHandler.RunSweep)
		adminByID := admin.Group("/:id", middleware.UUIDValidator("id"))
		adminByID.POST("/approve", adminHandler.Approve)
		adminByID.POST("/reject", adminHandler.Reject)
		adminByID.POST("/release", adminHandler.Release)
		adminByID.POST("/mark-paid", adminHandler.MarkPaid)
		adminByID.POST("/dispute", adminHandler.Dispute)
	}

	// Синхронизация статуса платежа от платёжной системы.
	internal := r.Group("/api/internal", auth, middleware.RequireRole(middleware.RoleAdmin))
	{
		internal.POST("/payments/status-sync", adminHandler.SyncPaymentStatus)
	}

	return r
}
