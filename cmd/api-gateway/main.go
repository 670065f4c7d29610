package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/scolara-dev/admission-api/api/swagger"
	"github.com/scolara-dev/admission-api/internal/handler"
	"github.com/scolara-dev/admission-api/internal/middleware"
	"github.com/scolara-dev/admission-api/internal/models"
	"github.com/scolara-dev/admission-api/internal/repository"
	"github.com/scolara-dev/admission-api/internal/service"
	"github.com/scolara-dev/admission-api/pkg/cache"
	"github.com/scolara-dev/admission-api/pkg/config"
	"github.com/scolara-dev/admission-api/pkg/database"
	"github.com/scolara-dev/admission-api/pkg/logger"
	corsmiddleware "github.com/scolara-dev/admission-api/pkg/middleware/cors"
	reqidmiddleware "github.com/scolara-dev/admission-api/pkg/middleware/requestid"
)

// @title Scolara Admission API
// @version 1.0.0
// @description Admission workflow and analytics engine
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metricsService := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Analytics.CacheTTL, logr, cfg.Analytics.Enabled && redisClient != nil)

	sessionRepo := repository.NewSessionRepository(db)
	enquiryRepo := repository.NewEnquiryRepository(db)
	stageRepo := repository.NewStageRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	validate := validator.New()

	registry := service.NewStageRegistry(stageRepo, logr)
	analyticsService := service.NewAnalyticsService(analyticsRepo, feeRepo, sessionRepo, registry, cacheService, metricsService, logr, cfg.Analytics.TrendMonths)

	refreshWorker := service.NewAnalyticsRefreshWorker(analyticsService, cfg.Analytics.RefreshWorkers, logr)
	refreshWorker.Start(context.Background())
	defer refreshWorker.Stop()

	sessionService := service.NewSessionService(sessionRepo, registry, auditRepo, validate, logr)
	enquiryService := service.NewEnquiryService(enquiryRepo, sessionRepo, registry, feeRepo, auditRepo, refreshWorker, validate, logr, cfg.Admissions.TransitionLockShards)
	tokenService := service.NewTokenService(cfg.JWT.Secret)
	exportService := service.NewExportService(analyticsService, nil, nil, logr)

	sessionHandler := handler.NewSessionHandler(sessionService)
	enquiryHandler := handler.NewEnquiryHandler(enquiryService)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService)
	exportHandler := handler.NewExportHandler(exportService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenService))
	api.Use(middleware.WithResponseMeta())

	sessions := api.Group("/admission-sessions")
	{
		sessions.POST("", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), sessionHandler.Create)
		sessions.GET("", sessionHandler.List)
		sessions.GET("/:id", sessionHandler.Get)
		sessions.POST("/:id/close", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), sessionHandler.Close)
	}

	enquiries := api.Group("/enquiries")
	{
		enquiries.POST("", enquiryHandler.Create)
		enquiries.GET("", enquiryHandler.List)
		enquiries.GET("/:id", enquiryHandler.Get)
		enquiries.POST("/:id/advance", enquiryHandler.Advance)
		enquiries.POST("/:id/reject", enquiryHandler.Reject)
		enquiries.POST("/:id/bypass", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), enquiryHandler.Bypass)
	}

	analytics := api.Group("/analytics")
	{
		analytics.GET("/funnel", analyticsHandler.Funnel)
		analytics.GET("/conversion", analyticsHandler.Conversion)
		analytics.GET("/workflows", analyticsHandler.Workflows)
		analytics.GET("/fees", analyticsHandler.Fees)
		analytics.GET("/bypasses", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), analyticsHandler.Bypasses)
		analytics.GET("/sources", analyticsHandler.Sources)
		analytics.GET("/trends", analyticsHandler.Trends)
		analytics.GET("/system", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), analyticsHandler.System)
	}

	if cfg.Exports.Enabled {
		exports := api.Group("/analytics/export")
		exports.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))
		exports.Use(middleware.Audit(auditRepo, models.AuditActionExportDownload, "analytics_export"))
		{
			exports.GET("/funnel", exportHandler.Funnel)
			exports.GET("/sources", exportHandler.Sources)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
