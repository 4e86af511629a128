package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/quillforge/proposal-api/api/swagger"
	"github.com/quillforge/proposal-api/internal/handler"
	"github.com/quillforge/proposal-api/internal/middleware"
	"github.com/quillforge/proposal-api/internal/models"
	"github.com/quillforge/proposal-api/internal/repository"
	"github.com/quillforge/proposal-api/internal/service"
	"github.com/quillforge/proposal-api/pkg/cache"
	"github.com/quillforge/proposal-api/pkg/config"
	"github.com/quillforge/proposal-api/pkg/database"
	"github.com/quillforge/proposal-api/pkg/export"
	"github.com/quillforge/proposal-api/pkg/jobs"
	"github.com/quillforge/proposal-api/pkg/logger"
	corsmiddleware "github.com/quillforge/proposal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/quillforge/proposal-api/pkg/middleware/requestid"
	"github.com/quillforge/proposal-api/pkg/sharelink"
)

// @title Quillforge Proposal API
// @version 1.0.0
// @description Proposal version ledger and send history
// @BasePath /
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
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	}

	proposalRepo := repository.NewProposalRepository(db)
	versionRepo := repository.NewVersionRepository(db)
	sendRepo := repository.NewSendRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "proposal-api",
	})

	versionSvc := service.NewVersionService(proposalRepo, versionRepo, cacheRepo, userRepo, metricsSvc, logr, service.VersionServiceConfig{
		HistoryCacheTTL: cfg.Ledger.HistoryCacheTTL,
	})

	signer := sharelink.NewSigner(cfg.Ledger.ShareLinkSecret, cfg.Ledger.ShareLinkTTL)

	sendCfg := service.SendServiceConfig{HistoryLimit: cfg.Ledger.SendHistoryLimit}

	var deliverySvc *service.DeliveryService
	var sendSvc *service.SendService
	if cfg.Delivery.Enabled {
		mailer := &service.LogMailer{From: cfg.Delivery.FromAddress, Logger: logr}
		deliverySvc = service.NewDeliveryService(mailer, logr, jobs.QueueConfig{
			Workers:    cfg.Delivery.WorkerConcurrency,
			MaxRetries: cfg.Delivery.WorkerRetries,
			RetryDelay: cfg.Delivery.RetryDelay,
			Logger:     logr,
		})
		sendSvc = service.NewSendService(proposalRepo, versionRepo, sendRepo, cacheRepo, userRepo, signer, deliverySvc, metricsSvc, logr, sendCfg)
	} else {
		sendSvc = service.NewSendService(proposalRepo, versionRepo, sendRepo, cacheRepo, userRepo, signer, nil, metricsSvc, logr, sendCfg)
	}

	pdfExporter := export.NewPDFExporter(cfg.Exports.CompanyName)
	csvExporter := export.NewCSVExporter()
	exportSvc := service.NewExportService(versionSvc, sendSvc, pdfExporter, csvExporter, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	proposalHandler := handler.NewProposalHandler(versionSvc, exportSvc)
	sendHandler := handler.NewSendHandler(sendSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, func() error { return db.Ping() })

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	auth := r.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	// Recipients hit share links without an account.
	r.GET("/shared/:token", sendHandler.ResolveShareLink)

	authors := middleware.RequireRoles(models.RoleAdmin, models.RoleAuthor)
	readers := middleware.RequireRoles(models.RoleAdmin, models.RoleAuthor, models.RoleViewer)

	proposals := r.Group("/proposals", middleware.JWT(authSvc))
	{
		proposals.POST("", authors, middleware.Audit(userRepo, models.AuditActionProposalCreate, "proposal"), proposalHandler.Create)
		proposals.GET("/:id", readers, proposalHandler.Get)
		proposals.PATCH("/:id/dirty", authors, proposalHandler.MarkDirty)
		proposals.POST("/:id/versions", authors, middleware.Audit(userRepo, models.AuditActionVersionCreate, "proposal"), proposalHandler.SaveVersion)
		proposals.GET("/:id/versions", readers, proposalHandler.ListVersions)
		proposals.GET("/:id/versions/:version", readers, proposalHandler.GetVersion)
		proposals.POST("/:id/sends", authors, middleware.Audit(userRepo, models.AuditActionProposalSend, "proposal"), sendHandler.Send)
		proposals.GET("/:id/sends", readers, sendHandler.History)
		if cfg.Exports.Enabled {
			proposals.GET("/:id/versions/:version/export", readers, proposalHandler.ExportVersionPDF)
			proposals.GET("/:id/sends/export", readers, sendHandler.ExportHistoryCSV)
		}
	}

	sends := r.Group("/sends", middleware.JWT(authSvc))
	{
		sends.GET("/:id", readers, sendHandler.Get)
		sends.PATCH("/:id/status", authors, middleware.Audit(userRepo, models.AuditActionSendStatusUpdate, "send"), sendHandler.UpdateStatus)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if deliverySvc != nil {
		deliverySvc.Start(ctx)
		defer deliverySvc.Stop()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
