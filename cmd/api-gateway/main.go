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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/relief-ledger-api/api/swagger"
	"github.com/noah-isme/relief-ledger-api/internal/handler"
	"github.com/noah-isme/relief-ledger-api/internal/middleware"
	"github.com/noah-isme/relief-ledger-api/internal/repository"
	"github.com/noah-isme/relief-ledger-api/internal/service"
	"github.com/noah-isme/relief-ledger-api/pkg/broker"
	"github.com/noah-isme/relief-ledger-api/pkg/cache"
	"github.com/noah-isme/relief-ledger-api/pkg/config"
	"github.com/noah-isme/relief-ledger-api/pkg/database"
	"github.com/noah-isme/relief-ledger-api/pkg/jobs"
	"github.com/noah-isme/relief-ledger-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/relief-ledger-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/relief-ledger-api/pkg/middleware/requestid"
)

// @title Relief Ledger API
// @version 1.0.0
// @description Reservation and fulfillment ledger for disaster-relief donations
// @BasePath /api/v1
// @schemes http https
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

	metrics := service.NewMetricsService()
	runner := database.NewTxRunner(db, database.RetryPolicy{
		MaxAttempts: cfg.Ledger.TxMaxAttempts,
		BaseDelay:   cfg.Ledger.TxBaseDelay,
		MaxDelay:    cfg.Ledger.TxMaxDelay,
	}, database.WithTxLogger(logr), database.WithRetryHook(metrics.RecordTxRetry))

	offerRepo := repository.NewOfferRepository(db, runner)
	auditRepo := repository.NewAuditRepository(db)
	reportRepo := repository.NewReportRepository(db)
	rewardRepo := repository.NewRewardRepository(db, runner)

	validate := validator.New()
	ledgerOpts := []service.LedgerOption{service.WithMetrics(metrics)}

	if cfg.Events.Enabled {
		publisher := broker.NewPublisher(broker.Config{URL: cfg.Events.URL, Exchange: cfg.Events.Exchange}, logr)
		defer publisher.Close() //nolint:errcheck
		events := service.NewLedgerEventService(publisher, jobs.QueueConfig{
			Workers:    cfg.Events.Workers,
			MaxRetries: cfg.Events.Retries,
			RetryDelay: time.Second,
			Logger:     logr,
		}, logr)
		events.Start(ctx)
		defer events.Stop()
		ledgerOpts = append(ledgerOpts, service.WithEvents(events))
	}

	// The retry queue and the fulfillment service refer to each other.
	var fulfillmentSvc *service.FulfillmentService
	creditQueue := jobs.NewQueue("reward-credits", func(ctx context.Context, job jobs.Job) error {
		return fulfillmentSvc.HandleCreditJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Rewards.RetryWorkers,
		MaxRetries: cfg.Rewards.RetryAttempts,
		RetryDelay: cfg.Rewards.RetryDelay,
		Logger:     logr,
		OnDrop: func(job jobs.Job, err error) {
			logr.Error("reward credit abandoned", zap.String("job_id", job.ID), zap.Any("payload", job.Payload), zap.Error(err))
		},
	})
	fulfillmentSvc = service.NewFulfillmentService(offerRepo, rewardRepo, validate, logr,
		service.FulfillmentConfig{DonationPoints: cfg.Ledger.DonationPoints},
		append(ledgerOpts, service.WithCreditRetryQueue(creditQueue))...)
	creditQueue.Start(ctx)
	defer creditQueue.Stop()
	go func() {
		if _, err := fulfillmentSvc.ReconcileCredits(ctx); err != nil {
			logr.Warn("reward reconciliation skipped", zap.Error(err))
		}
	}()

	offerSvc := service.NewOfferService(offerRepo, auditRepo, validate, logr, ledgerOpts...)
	reservationSvc := service.NewReservationService(offerRepo, validate, logr,
		service.ReservationConfig{HoldDuration: cfg.Ledger.HoldDuration}, ledgerOpts...)
	overrideSvc := service.NewOverrideService(offerRepo, validate, logr, ledgerOpts...)
	expirySvc := service.NewExpiryService(offerRepo, logr,
		service.ExpiryConfig{Interval: cfg.Sweep.Interval, BatchSize: cfg.Sweep.BatchSize}, ledgerOpts...)
	needSvc := service.NewNeedService(reportRepo, offerRepo, auditRepo, validate, logr)
	rewardSvc := service.NewRewardService(rewardRepo)
	exportSvc := service.NewExportService(offerRepo, logr)
	tokenSvc := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	if cfg.Sweep.Enabled {
		expirySvc.StartSweeper(ctx)
	}

	checks := map[string]handler.Pinger{"postgres": db}
	guards := routeGuards{auth: middleware.JWT(tokenSvc)}
	if cfg.RateLimit.Enabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redisClient.Close()
		checks["redis"] = cache.NewHealthCheck(redisClient)
		bucket := cache.NewTokenBucket(redisClient, cache.TokenBucketConfig{
			Capacity:       cfg.RateLimit.Capacity,
			RefillTokens:   cfg.RateLimit.RefillTokens,
			RefillInterval: cfg.RateLimit.RefillInterval,
			TTL:            cfg.RateLimit.TTL,
		})
		guards.claimRate = middleware.RateLimit(bucket, middleware.RateLimitOptions{
			Prefix:      cfg.RateLimit.Prefix,
			KeyStrategy: cfg.RateLimit.KeyStrategy,
			Metrics:     metrics,
			Logger:      logr,
		})
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	registerRoutes(r, cfg.APIPrefix, routeHandlers{
		offers:       handler.NewOfferHandler(offerSvc),
		reservations: handler.NewReservationHandler(reservationSvc),
		admin: handler.NewAdminHandler(handler.AdminDeps{
			Inspector: fulfillmentSvc,
			Stock:     offerSvc,
			Handover:  reservationSvc,
			Override:  overrideSvc,
			Sweeper:   expirySvc,
		}),
		exports: handler.NewExportHandler(exportSvc),
		needs:   handler.NewNeedHandler(needSvc),
		rewards: handler.NewRewardHandler(rewardSvc),
		ops:     handler.NewMetricsHandler(metrics, checks),
	}, guards)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
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
