package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/yieldledger/internal/api"
	"github.com/punchamoorthee/yieldledger/internal/cache"
	"github.com/punchamoorthee/yieldledger/internal/config"
	"github.com/punchamoorthee/yieldledger/internal/pub"
	"github.com/punchamoorthee/yieldledger/internal/service"
	"github.com/punchamoorthee/yieldledger/internal/store"
	"github.com/punchamoorthee/yieldledger/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Unable to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewPostgres(ctx, cfg.DBSource, store.Options{
		MaxConns:    cfg.DBMaxConns,
		LockTimeout: cfg.LockTimeout,
		Logger:      logger.Named("store"),
	})
	if err != nil {
		logger.Fatal("Unable to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Redis is optional: without it settings are read straight from Postgres
	// and events are not published.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, continuing without cache", zap.Error(err))
		}
		defer rdb.Close()
	}

	var publisher service.Publisher
	if rdb != nil && cfg.EventsEnabled {
		publisher = pub.NewRedisPublisher(rdb, pub.DefaultChannel, logger.Named("events"))
	}
	settings := cache.NewSettings(db, rdb, cfg.SettingsCacheTTL, logger.Named("settings"))
	cal := service.Calendar{Loc: cfg.AccrualTimezone}

	// Initialize Layers
	wallet := service.NewWallet(db, publisher, logger.Named("wallet"))
	summary := service.NewSummaryAggregator(db, logger.Named("summary"))
	accrual := service.NewAccrualEngine(db, wallet, summary, settings, publisher, cal, service.AccrualOptions{
		Workers:       cfg.AccrualWorkers,
		RetryAttempts: cfg.AccrualRetryAttempts,
		RetryBackoff:  cfg.AccrualRetryBackoff,
	}, logger.Named("accrual"))

	handler := api.NewHandler(api.Services{
		History:     service.NewHistory(db),
		Recharges:   service.NewRechargeService(db, wallet, settings, publisher, cal, logger.Named("recharge")),
		Withdrawals: service.NewWithdrawalService(db, wallet, settings, publisher, cal, logger.Named("withdrawal")),
		Purchases:   service.NewPurchaseService(db, wallet, publisher, cal, logger.Named("purchase")),
		Accrual:     accrual,
		Summary:     summary,
	}, db.Ping, logger.Named("http"))

	scheduler, err := worker.NewAccrualWorker(accrual, cfg.AccrualSchedule, cfg.AccrualTimezone, logger.Named("worker"))
	if err != nil {
		logger.Fatal("Invalid accrual schedule", zap.Error(err))
	}
	scheduler.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
