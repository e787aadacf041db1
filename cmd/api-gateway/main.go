package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/rcolomer-cos/E-QMS-sub001/api/swagger"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/handler"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/middleware"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/repository"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/service"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/workflow"
	"github.com/rcolomer-cos/E-QMS-sub001/pkg/cache"
	"github.com/rcolomer-cos/E-QMS-sub001/pkg/config"
	"github.com/rcolomer-cos/E-QMS-sub001/pkg/database"
	"github.com/rcolomer-cos/E-QMS-sub001/pkg/export"
	"github.com/rcolomer-cos/E-QMS-sub001/pkg/logger"
	corsmiddleware "github.com/rcolomer-cos/E-QMS-sub001/pkg/middleware/cors"
	reqidmiddleware "github.com/rcolomer-cos/E-QMS-sub001/pkg/middleware/requestid"
)

// @title E-QMS API
// @version 0.1.0
// @description Quality management service: controlled documents, audits, compliance tracking
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
			cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Cache.DefaultTTL, logr, false)
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.DefaultTTL, logr, true)
		}
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Cache.DefaultTTL, logr, false)
	}

	documentRepo := repository.NewDocumentRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	revisionRepo := repository.NewRevisionRepository(db)
	complianceRepo := repository.NewComplianceRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditLogRepo := repository.NewAuditLogRepository(db)
	txRunner := repository.NewTxRunner(db)

	engine := workflow.New(txRunner, revisionRepo, logr, workflow.WithMetrics(metricsSvc))
	engine.Register(workflow.DocumentDefinition(), documentRepo)
	engine.Register(workflow.AuditDefinition(), auditRepo)

	validate := validator.New()

	authSvc := service.NewAuthService(cfg.JWT, logr)
	documentSvc := service.NewDocumentService(documentRepo, engine, revisionRepo, txRunner, cacheSvc, auditLogRepo, validate, logr)
	auditSvc := service.NewAuditService(auditRepo, engine, revisionRepo, auditLogRepo, validate, logr)
	complianceSvc := service.NewComplianceService(documentRepo, complianceRepo, userRepo, cacheSvc, auditLogRepo, export.NewCSVExporter(), cfg.Compliance, logr)
	userSvc := service.NewUserService(userRepo, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Documents:  handler.NewDocumentHandler(documentSvc),
		Audits:     handler.NewAuditHandler(auditSvc),
		Compliance: handler.NewComplianceHandler(complianceSvc),
		Users:      handler.NewUserHandler(userSvc),
		Metrics:    metricsHandler,
	}, authSvc, auditLogRepo)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
