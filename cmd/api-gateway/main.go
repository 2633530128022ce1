package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/julioctb/Dashboard-pletorica-sub001/api/swagger"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/handler"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/middleware"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/repository"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/service"
	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/cache"
	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/config"
	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/database"
	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/logger"
	corsmiddleware "github.com/julioctb/Dashboard-pletorica-sub001/pkg/middleware/cors"
	reqidmiddleware "github.com/julioctb/Dashboard-pletorica-sub001/pkg/middleware/requestid"
)

// @title Entregables API
// @version 1.0.0
// @description Deliverable period engine for service contracts
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type handlers struct {
	auth         *handler.AuthHandler
	deliverables *handler.DeliverableHandler
	personnel    *handler.PersonnelHandler
	stats        *handler.StatsHandler
	export       *handler.ExportHandler
	metrics      *handler.MetricsHandler
}

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logr.Fatal("database migration failed", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, running without cache and sync locks", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	metrics := service.NewMetricsService()
	authService := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
	})

	h, sweeper := wire(cfg, db, redisClient, metrics, logr)

	if sweeper != nil {
		if err := sweeper.Start(ctx); err != nil {
			logr.Fatal("failed to start deliverable sweeper", zap.Error(err))
		}
		defer sweeper.Stop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix, middleware.JWT(authService)), h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logr.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logr.Error("server stopped with error", zap.Error(err))
	}
}

func wire(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, metrics *service.MetricsService, logr *zap.Logger) (*handlers, *service.SyncSweeper) {
	contractRepo := repository.NewContractRepository(db)
	deliverableRepo := repository.NewDeliverableRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	personnelRepo := repository.NewPersonnelDetailRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheService := service.NewCacheService(cacheRepo, metrics, cfg.Deliverables.StatsCacheTTL, logr, cfg.Deliverables.StatsCache && redisClient != nil)

	syncOpts := []service.PeriodSyncOption{
		service.WithSyncCache(cacheService),
		service.WithSyncMetrics(metrics),
		service.WithSyncAudit(auditRepo),
		service.WithSyncLocation(cfg.Deliverables.Location()),
	}
	if locker := cache.NewLocker(redisClient, 0); locker != nil {
		syncOpts = append(syncOpts, service.WithSyncLocker(locker, cfg.Deliverables.SyncLockTTL))
	}
	syncService := service.NewPeriodSyncService(deliverableRepo, contractRepo, logr, syncOpts...)

	deliverableService := service.NewDeliverableService(deliverableRepo, paymentRepo, contractRepo, syncService, db, logr,
		service.WithDeliverableAudit(auditRepo),
		service.WithDeliverableCache(cacheService),
		service.WithDeliverableMetrics(metrics),
	)
	personnelService := service.NewPersonnelDetailService(personnelRepo, deliverableRepo, contractRepo, db, auditRepo, validator.New(), logr)
	statsService := service.NewStatsService(statsRepo, deliverableRepo, contractRepo, cacheService, cfg.Deliverables.StatsCacheTTL, logr)
	exportService := service.NewExportService(deliverableRepo, contractRepo, logr, nil)

	var sweeper *service.SyncSweeper
	if cfg.Deliverables.SweeperEnabled {
		sweeper = service.NewSyncSweeper(contractRepo, deliverableRepo, syncService, metrics, service.SweeperConfig{
			Interval:   cfg.Deliverables.SweepInterval,
			Workers:    cfg.Deliverables.SweepWorkers,
			MaxRetries: cfg.Deliverables.SweepMaxRetries,
		}, logr)
	}

	return &handlers{
		auth:         handler.NewAuthHandler(),
		deliverables: handler.NewDeliverableHandler(deliverableService),
		personnel:    handler.NewPersonnelHandler(personnelService),
		stats:        handler.NewStatsHandler(statsService),
		export:       handler.NewExportHandler(exportService),
		metrics:      handler.NewMetricsHandler(metrics, db),
	}, sweeper
}

func registerRoutes(api *gin.RouterGroup, h *handlers) {
	anyRole := middleware.RequireRoles(models.RoleAdmin, models.RoleReviewer, models.RoleVendor)
	reviewers := middleware.RequireRoles(models.RoleAdmin, models.RoleReviewer)

	api.GET("/auth/me", anyRole, h.auth.Me)

	contracts := api.Group("/contracts/:id")
	contracts.GET("/deliverables", anyRole, h.deliverables.List)
	contracts.GET("/deliverables/stats", anyRole, h.stats.Contract)
	contracts.GET("/deliverables/export", anyRole, h.export.Contract)

	api.GET("/companies/:id/deliverables/stats", anyRole, h.stats.Company)

	deliverables := api.Group("/deliverables")
	deliverables.GET("/review-queue", anyRole, h.stats.ReviewQueue)
	deliverables.GET("/:id", anyRole, h.deliverables.Get)
	deliverables.GET("/:id/history", anyRole, h.deliverables.History)
	deliverables.GET("/:id/personnel", anyRole, h.personnel.Get)
	deliverables.PUT("/:id/personnel", anyRole, h.personnel.Replace)
	deliverables.POST("/:id/submit", anyRole, h.deliverables.Submit)
	deliverables.POST("/:id/approve", reviewers, h.deliverables.Approve)
	deliverables.POST("/:id/reject", reviewers, h.deliverables.Reject)
}
