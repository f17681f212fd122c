package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/velora-shop/checkout/internal/auth"
	"github.com/velora-shop/checkout/internal/checkout"
	"github.com/velora-shop/checkout/internal/config"
	"github.com/velora-shop/checkout/internal/httpx"
	kafkax "github.com/velora-shop/checkout/internal/kafka"
	"github.com/velora-shop/checkout/internal/payment"
	"github.com/velora-shop/checkout/internal/postgres"
	"github.com/velora-shop/checkout/internal/redisx"
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
		prod = kafkax.NewProducer(cfg.KafkaBrokers, checkout.TopicOrderCreated, 1024, logger)
		prod.Start(ctx)
	}

	orders := &postgres.OrderRepo{DB: db}
	svc := &checkout.Service{
		Catalog:   &postgres.CatalogRepo{DB: db},
		Coupons:   &postgres.CouponRepo{DB: db},
		Orders:    orders,
		Inventory: &postgres.InventoryRepo{DB: db},
		Payments: payment.New(payment.Config{
			SecretKey:  cfg.StripeSecretKey,
			SuccessURL: cfg.CheckoutSuccessURL,
			CancelURL:  cfg.CheckoutCancelURL,
		}),
		Logger: logger,
	}

	router := httpx.NewRouter(logger)
	h := &httpx.CheckoutHandler{
		Service:  svc,
		Auth:     auth.NewVerifier(cfg.JWTSecret),
		Orders:   orders,
		Redis:    rdb,
		Producer: prod,
		Logger:   logger,
		Name:     cfg.ServiceName,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if prod != nil {
		prod.Close() // close inbox -> flush & close writer
		cancel()
		prod.WaitClosed()
	}
}
