package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/fitclass-api/api/swagger"
	"github.com/noah-isme/fitclass-api/internal/handler"
	internalmiddleware "github.com/noah-isme/fitclass-api/internal/middleware"
	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/repository"
	"github.com/noah-isme/fitclass-api/internal/scheduling"
	"github.com/noah-isme/fitclass-api/internal/service"
	"github.com/noah-isme/fitclass-api/pkg/cache"
	"github.com/noah-isme/fitclass-api/pkg/config"
	"github.com/noah-isme/fitclass-api/pkg/database"
	"github.com/noah-isme/fitclass-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/fitclass-api/pkg/middleware/cors"
	"github.com/noah-isme/fitclass-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/fitclass-api/pkg/middleware/requestid"
	"github.com/noah-isme/fitclass-api/pkg/pagination"
)

// @title FitClass API
// @version 1.0.0
// @description Class scheduling and seat booking for a fitness studio
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		version, err := database.RunMigrations(db, cfg.Database.MigrationsPath)
		if err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
		logr.Info("database migrated", zap.Uint("version", version))
	}

	var redisClient *redis.Client
	cacheEnabled := cfg.Cache.Enabled
	if cacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, session cache disabled", zap.Error(err))
			cacheEnabled = false
		} else {
			defer redisClient.Close()
		}
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	policy := scheduling.Policy{
		MaxSeats:          cfg.Scheduling.MaxSeats,
		MaxSessionsPerDay: cfg.Scheduling.MaxSessionsPerDay,
		SessionDuration:   cfg.Scheduling.SessionDuration,
	}.Normalize()

	txManager := repository.NewTxManager(db)
	sessionRepo := repository.NewSessionRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	trainerRepo := repository.NewTrainerRepository(db)
	traineeRepo := repository.NewTraineeRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cacheEnabled)
	sessionSvc := service.NewSessionService(txManager, sessionRepo, bookingRepo, trainerRepo, cacheSvc, metricsSvc, service.SessionServiceConfig{
		Policy:    policy,
		Paginator: pagination.Paginator{DefaultLimit: cfg.Pagination.DefaultLimit, MaxLimit: cfg.Pagination.MaxLimit},
		CacheTTL:  cfg.Cache.TTL,
	}, validate, logr)
	bookingSvc := service.NewBookingService(txManager, sessionRepo, bookingRepo, traineeRepo, cacheSvc, metricsSvc, policy, validate, logr)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret)

	sessionHandler := handler.NewSessionHandler(sessionSvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/sessions", sessionHandler.List)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(tokenSvc))

	admin := secured.Group("/sessions")
	admin.Use(internalmiddleware.RequireRoles(models.RoleAdmin))
	admin.POST("", sessionHandler.Create)
	admin.PUT("/:id", sessionHandler.Update)
	admin.DELETE("/:id", sessionHandler.Delete)
	admin.PUT("/:id/trainer", sessionHandler.AssignTrainer)

	trainers := secured.Group("/trainers/:id")
	trainers.Use(internalmiddleware.RequireRoles(models.RoleTrainer, models.RoleAdmin))
	trainers.Use(internalmiddleware.RequireSelfOrRoles("id", models.RoleAdmin))
	trainers.GET("/sessions", sessionHandler.ListForTrainer)
	trainers.GET("/sessions/export", sessionHandler.ExportTrainerSchedule)

	bookings := secured.Group("/bookings")
	bookings.Use(internalmiddleware.RequireRoles(models.RoleTrainee))
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)
		go limiter.Run(ctx, time.Minute)
		bookings.Use(ratelimit.Middleware(limiter))
	}
	bookings.POST("", bookingHandler.Book)
	bookings.GET("/me", bookingHandler.ListMine)
	bookings.DELETE("/:id", bookingHandler.Cancel)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
