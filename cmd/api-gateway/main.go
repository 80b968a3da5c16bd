package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/voltdesk/voltdesk-api/api/swagger"
	"github.com/voltdesk/voltdesk-api/internal/handler"
	"github.com/voltdesk/voltdesk-api/internal/middleware"
	"github.com/voltdesk/voltdesk-api/internal/models"
	"github.com/voltdesk/voltdesk-api/internal/repository"
	"github.com/voltdesk/voltdesk-api/internal/service"
	"github.com/voltdesk/voltdesk-api/pkg/cache"
	"github.com/voltdesk/voltdesk-api/pkg/config"
	"github.com/voltdesk/voltdesk-api/pkg/database"
	"github.com/voltdesk/voltdesk-api/pkg/logger"
	corsmiddleware "github.com/voltdesk/voltdesk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/voltdesk/voltdesk-api/pkg/middleware/requestid"
	"github.com/voltdesk/voltdesk-api/pkg/storage"
)

// @title VoltDesk API
// @version 0.1.0
// @description Certificate lifecycle and compliance API for electrical contracting
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
	defer db.Close() //nolint:errcheck

	validate := validator.New()
	metricsService := service.NewMetricsService()

	cacheService := service.NewCacheService(nil, metricsService, cfg.Cache.DefaultTTL, logr, false)
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Cache.DefaultTTL, logr, true)
		}
	}

	documentStore, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	certRepo := repository.NewCertificateRepository(db)
	checklistRepo := repository.NewChecklistRepository(db)
	observationRepo := repository.NewObservationRepository(db)
	testResultRepo := repository.NewTestResultRepository(db)

	authService := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "voltdesk-api",
	})
	userService := service.NewUserService(userRepo, auditRepo, validate, logr)

	documentService := service.NewDocumentService(certRepo, checklistRepo, observationRepo, testResultRepo, auditRepo,
		documentStore, signer, logr, service.DocumentServiceConfig{
			WorkerConcurrency: cfg.Documents.WorkerConcurrency,
			WorkerRetries:     cfg.Documents.WorkerRetries,
		})

	certService := service.NewCertificateService(certRepo, checklistRepo, observationRepo, testResultRepo, auditRepo, validate, logr,
		service.WithDocumentRenderer(documentService),
		service.WithTransitionObserver(metricsService),
		service.WithPreviewCache(cacheService, cfg.Certificates.PreviewCacheTTL),
		service.WithNumberPrefix(cfg.Certificates.NumberPrefix),
	)
	amendmentService := service.NewAmendmentService(certRepo, checklistRepo, observationRepo, testResultRepo, auditRepo, validate, logr)
	childrenService := service.NewCertificateChildrenService(certRepo, checklistRepo, observationRepo, testResultRepo, validate, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	documentService.Start(ctx)
	defer documentService.Stop()

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	certHandler := handler.NewCertificateHandler(certService, amendmentService, auditRepo)
	childrenHandler := handler.NewCertificateChildrenHandler(childrenService)
	documentHandler := handler.NewDocumentHandler(documentService)
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
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	users := api.Group("/users", middleware.JWT(authService))
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleOfficeManager), userHandler.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleOfficeManager), "SELF"), userHandler.Get)
		users.POST("", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
		users.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Update)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Delete)
	}

	staff := []models.UserRole{models.RoleAdmin, models.RoleOfficeManager, models.RoleQualifiedSupervisor, models.RoleEngineer}
	reviewers := []models.UserRole{models.RoleAdmin, models.RoleQualifiedSupervisor}

	certs := api.Group("/certificates", middleware.JWT(authService))
	{
		certs.POST("", middleware.RequireRoles(staff...), certHandler.Create)
		certs.GET("", certHandler.List)
		certs.GET("/export", middleware.RequireRoles(staff...), documentHandler.ExportRegister)
		certs.GET("/:id", certHandler.Get)
		certs.PUT("/:id/data", middleware.RequireRoles(staff...), certHandler.UpdateData)
		certs.GET("/:id/readiness", certHandler.Readiness)
		certs.GET("/:id/outcome-preview", certHandler.PreviewOutcome)
		certs.GET("/:id/history", middleware.RequireRoles(staff...), certHandler.History)
		certs.GET("/:id/document", documentHandler.DownloadURL)

		certs.POST("/:id/submit-review", middleware.RequireRoles(staff...), certHandler.SubmitForReview)
		certs.POST("/:id/approve-review", middleware.RequireRoles(reviewers...), certHandler.ApproveReview)
		certs.POST("/:id/reject-review", middleware.RequireRoles(reviewers...), certHandler.RejectReview)
		certs.POST("/:id/complete", middleware.RequireRoles(staff...), certHandler.Complete)
		certs.POST("/:id/issue", middleware.RequireRoles(models.RoleAdmin, models.RoleOfficeManager, models.RoleQualifiedSupervisor), certHandler.Issue)
		certs.POST("/:id/void", middleware.RequireRoles(models.RoleAdmin, models.RoleOfficeManager), certHandler.Void)
		certs.POST("/:id/amend", middleware.RequireRoles(staff...), certHandler.Amend)
		certs.POST("/:id/reissue", middleware.RequireRoles(models.RoleAdmin, models.RoleOfficeManager), certHandler.Reissue)

		certs.GET("/:id/checklist", childrenHandler.ListChecklist)
		certs.POST("/:id/checklist", middleware.RequireRoles(staff...), childrenHandler.AddChecklistItem)
		certs.PUT("/:id/checklist/:itemId", middleware.RequireRoles(staff...), childrenHandler.AnswerChecklistItem)
		certs.GET("/:id/observations", childrenHandler.ListObservations)
		certs.POST("/:id/observations", middleware.RequireRoles(staff...), childrenHandler.AddObservation)
		certs.POST("/:id/observations/:obsId/resolve", middleware.RequireRoles(staff...), childrenHandler.ResolveObservation)
		certs.GET("/:id/test-results", childrenHandler.ListTestResults)
		certs.POST("/:id/test-results", middleware.RequireRoles(staff...), childrenHandler.AddTestResult)
	}

	// Token-authenticated document download, no JWT required.
	api.GET("/documents/download",
		middleware.OptionalJWT(authService),
		middleware.Audit(auditRepo, models.AuditActionCertDownload, "certificate"),
		documentHandler.Download)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
