package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"session-scheduler-backend/internal/db"
	"session-scheduler-backend/internal/engine"
	"session-scheduler-backend/internal/lock"
	"session-scheduler-backend/internal/metrics"
	"session-scheduler-backend/internal/notification"
	"session-scheduler-backend/internal/scheduling"
	"session-scheduler-backend/internal/store"
)

// app holds everything a command needs, wired from cfg.
type app struct {
	db       *gorm.DB
	store    store.Store
	service  *scheduling.Service
	metrics  *metrics.Metrics
	pool     *notification.WorkerPool
	webpush  *webpush.Options
	closeFns []func() error
}

// newApp opens the database and builds the scheduling service. withPush
// starts the notification workers on ctx when VAPID keys are configured.
func newApp(ctx context.Context, withPush bool) (*app, error) {
	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	a := &app{
		db:      gormDB,
		store:   store.NewGormStore(gormDB),
		metrics: metrics.New(),
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		a.closeFns = append(a.closeFns, sqlDB.Close)
	}

	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(opts, logger)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.Enabled {
		rl, err := lock.NewRedis(lock.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.LockKey,
			Lease:    time.Duration(cfg.Redis.LeaseSeconds) * time.Second,
		}, logger)
		if err != nil {
			return nil, err
		}
		locker = rl
		a.closeFns = append(a.closeFns, rl.Close)
	}

	var notifier scheduling.Dispatcher
	if withPush {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			logger.Warn().Msg("VAPID keys are not configured, push notifications are disabled")
		} else {
			a.webpush = &webpush.Options{
				VAPIDPublicKey:  cfg.Push.PublicKey,
				VAPIDPrivateKey: cfg.Push.PrivateKey,
				Subscriber:      cfg.Push.Subject,
				TTL:             cfg.Push.TTL,
			}
			a.pool = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, a.webpush, logger)
			a.pool.SetObserver(a.metrics)
			a.pool.Start(ctx)
			notifier = a.pool
		}
	}

	a.service = scheduling.NewService(cfg.Scheduling, a.store, eng, locker, notifier, a.metrics, logger)
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		if err := a.closeFns[i](); err != nil {
			logger.Warn().Err(err).Msg("close failed")
		}
	}
}

// printJSON writes v to stdout, indented.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
