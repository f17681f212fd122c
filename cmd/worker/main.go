package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/velora-shop/checkout/internal/checkout"
	"github.com/velora-shop/checkout/internal/config"
	kafkax "github.com/velora-shop/checkout/internal/kafka"
	"github.com/velora-shop/checkout/internal/postgres"
	"github.com/velora-shop/checkout/internal/redisx"
	"github.com/velora-shop/checkout/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, checkout.TopicOrderCancelled, 1024, logger)
		// detached from ctx: the producer must stay open until the sweep
		// has fully stopped, then flush on Close
		prod.Start(context.Background())
	}

	svc := &worker.Service{
		Orders:     &postgres.OrderRepo{DB: db},
		Inventory:  &postgres.InventoryRepo{DB: db},
		Redis:      rdb,
		Producer:   prod,
		Logger:     logger,
		Name:       cfg.ServiceName + "-worker",
		PendingTTL: cfg.PendingTTL,
	}

	// payment confirmations mark orders completed
	if len(cfg.KafkaBrokers) > 0 {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, checkout.TopicPaymentConfirmed, cfg.WorkerConcurrency, logger)

		go func() {
			logger.Info("payment consumer started",
				zap.String("group", cfg.WorkerGroup),
				zap.String("topic", checkout.TopicPaymentConfirmed),
				zap.Int("workers", cfg.WorkerConcurrency),
			)
			if err := cons.Start(ctx, svc.HandlePaymentConfirmed); err != nil {
				logger.Error("consumer exit", zap.Error(err))
				cancel()
			}
		}()
	}

	// stale pending orders get cancelled and their stock released
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		svc.Run(ctx, cfg.ReconcileInterval)
	}()
	logger.Info("reconciler started",
		zap.Duration("interval", cfg.ReconcileInterval),
		zap.Duration("pending_ttl", cfg.PendingTTL),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	// stop the sweep before the producer so nothing publishes into a
	// closed inbox, then flush whatever the last sweep queued
	cancel()
	<-runDone
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
}
