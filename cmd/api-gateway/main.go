package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/tuition-portal-api/api/swagger"
	"github.com/noah-isme/tuition-portal-api/internal/handler"
	"github.com/noah-isme/tuition-portal-api/internal/middleware"
	"github.com/noah-isme/tuition-portal-api/internal/models"
	"github.com/noah-isme/tuition-portal-api/internal/repository"
	"github.com/noah-isme/tuition-portal-api/internal/service"
	"github.com/noah-isme/tuition-portal-api/pkg/cache"
	"github.com/noah-isme/tuition-portal-api/pkg/config"
	"github.com/noah-isme/tuition-portal-api/pkg/database"
	"github.com/noah-isme/tuition-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tuition-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tuition-portal-api/pkg/middleware/requestid"
)

// @title Tuition Portal API
// @version 1.0.0
// @description Student financial status and class access backend
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
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	financeRepo := repository.NewFinanceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "tuition-portal-api",
	})
	financeSvc := service.NewFinanceService(financeRepo, paymentRepo, enrollmentRepo, classRepo, cacheRepo, userRepo, metricsSvc, logr, cfg.Billing.StatusCacheTTL)
	feeSvc := service.NewFeeService(classRepo, cfg.Billing.RegistrationFee, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, enrollmentRepo, financeSvc, userRepo, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, classRepo, financeSvc, nil, logr)
	accessSvc := service.NewAccessService(classRepo, financeSvc, userRepo, logr)

	delinquencySvc := service.NewDelinquencyService(financeRepo, financeSvc, logr, cfg.Billing.DelinquencySweepInterval)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go delinquencySvc.Run(sweepCtx)

	authHandler := handler.NewAuthHandler(authSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	financeHandler := handler.NewFinanceHandler(financeSvc)
	accessHandler := handler.NewAccessHandler(accessSvc, feeSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

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

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleFinance)
	selfOrStaff := middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), string(models.RoleFinance), "SELF")

	enrollments := protected.Group("/enrollments")
	enrollments.GET("", staff, enrollmentHandler.List)
	enrollments.POST("", staff, enrollmentHandler.Create)
	enrollments.PUT("/:id/status", staff, enrollmentHandler.UpdateStatus)
	enrollments.GET("/:id/payments", staff, paymentHandler.Ledger)
	enrollments.GET("/:id/payments/export", staff, paymentHandler.ExportLedger)
	enrollments.POST("/:id/financial-status/recompute", staff, financeHandler.Recompute)
	enrollments.PUT("/:id/suspension", staff,
		middleware.Audit(userRepo, models.AuditActionSuspensionChange, "financial_statuses"),
		financeHandler.SetSuspension)

	payments := protected.Group("/payments")
	payments.POST("", staff,
		middleware.Audit(userRepo, models.AuditActionPaymentRecord, "payments"),
		paymentHandler.Record)
	payments.POST("/:id/complete", staff,
		middleware.Audit(userRepo, models.AuditActionPaymentComplete, "payments"),
		paymentHandler.Complete)
	payments.GET("/:id/receipt", staff, paymentHandler.Receipt)

	protected.POST("/invoices/amount", accessHandler.InvoiceAmount)

	students := protected.Group("/students/:studentId/classes/:classId")
	students.GET("/financial-status", selfOrStaff, financeHandler.Status)
	students.GET("/access", selfOrStaff, accessHandler.CheckEntry)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
