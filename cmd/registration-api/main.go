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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-registration-api/api/swagger"
	"github.com/noah-isme/course-registration-api/internal/catalog"
	"github.com/noah-isme/course-registration-api/internal/handler"
	"github.com/noah-isme/course-registration-api/internal/middleware"
	"github.com/noah-isme/course-registration-api/internal/repository"
	"github.com/noah-isme/course-registration-api/internal/service"
	"github.com/noah-isme/course-registration-api/pkg/cache"
	"github.com/noah-isme/course-registration-api/pkg/config"
	"github.com/noah-isme/course-registration-api/pkg/database"
	"github.com/noah-isme/course-registration-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-registration-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-registration-api/pkg/middleware/requestid"
)

// @title Course Registration API
// @version 1.0.0
// @description Faculty allocation, student enrollment and grading for a college catalog.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// registrationStore is everything the engine needs from a storage driver.
type registrationStore interface {
	service.CatalogStore
	service.OfferingReader
	service.Ledger
	catalog.Store
	Ping(ctx context.Context) error
}

// postgresStore composes the SQL repositories into one registrationStore.
type postgresStore struct {
	*repository.CatalogRepository
	*repository.AllocationRepository
	*repository.EnrollmentRepository
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.Catalog.SeedFile != "" {
		seed, err := catalog.LoadSeed(cfg.Catalog.SeedFile)
		if err != nil {
			return err
		}
		if err := seed.Apply(ctx, store); err != nil {
			return fmt.Errorf("apply catalog seed: %w", err)
		}
		logr.Info("catalog seeded",
			zap.String("file", cfg.Catalog.SeedFile),
			zap.Int("courses", len(seed.Courses)),
			zap.Int("allocations", len(seed.Allocations)),
		)
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	var cacheRepo *repository.CacheRepository
	if cfg.Catalog.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
		} else {
			defer client.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(client, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Catalog.CacheTTL, logr, cacheRepo.Enabled())

	catalogSvc := service.NewCatalogService(store, cacheSvc, validate, logr)
	allocationSvc := service.NewAllocationService(catalogSvc, store, store, service.AllocationConfig{
		EnforceDepartment: cfg.Allocation.EnforceDepartment,
		MaxRetries:        cfg.Enrollment.MaxRetries,
	}, metrics, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(catalogSvc, store, store, service.EnrollmentConfig{
		MinCredits: cfg.Enrollment.MinCredits,
		MaxRetries: cfg.Enrollment.MaxRetries,
	}, metrics, validate, logr)
	gradeSvc := service.NewGradeService(store, catalogSvc, service.GradeConfig{
		PassingGrade: cfg.Enrollment.PassingGrade,
		MaxRetries:   cfg.Enrollment.MaxRetries,
	}, metrics, validate, logr)
	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Expiration: cfg.JWT.Expiration})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	checks := map[string]handler.Pinger{"store": store}
	if cacheRepo.Enabled() {
		checks["redis"] = cacheRepo
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks, logr)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Handlers{
		Allocation: handler.NewAllocationHandler(allocationSvc),
		Enrollment: handler.NewEnrollmentHandler(enrollmentSvc),
		Grade:      handler.NewGradeHandler(gradeSvc),
		Catalog:    handler.NewCatalogHandler(catalogSvc),
	}.Register(r.Group(cfg.APIPrefix), tokens)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("storage", cfg.StorageDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, logr *zap.Logger) (registrationStore, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		logr.Warn("using in-memory storage, state is lost on restart")
		return repository.NewMemoryStore(cfg.Enrollment.LockTimeout, logr), func() {}, nil
	case config.StorageDriverPostgres, "":
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		store := &postgresStore{
			CatalogRepository:    repository.NewCatalogRepository(db),
			AllocationRepository: repository.NewAllocationRepository(db),
			EnrollmentRepository: repository.NewEnrollmentRepository(db, cfg.Enrollment.LockTimeout),
		}
		return store, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
