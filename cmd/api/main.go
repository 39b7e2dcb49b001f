package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/access"
	"github.com/HTM0410/sale-account-sub001/internal/config"
	"github.com/HTM0410/sale-account-sub001/internal/httpx"
	kafkax "github.com/HTM0410/sale-account-sub001/internal/kafka"
	"github.com/HTM0410/sale-account-sub001/internal/notify"
	"github.com/HTM0410/sale-account-sub001/internal/orders"
	"github.com/HTM0410/sale-account-sub001/internal/payment"
	"github.com/HTM0410/sale-account-sub001/internal/postgres"
	"github.com/HTM0410/sale-account-sub001/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})).
		With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	if cfg.SessionSecret == "" {
		logger.Error("SESSION_SECRET is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		logger.Error("db schema", "err", err)
		os.Exit(1)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		logger.Warn("redis unavailable, cache and idempotency degrade", "err", err)
	}

	// Kafka producers, one per topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, logger)
	pCreated.Start(ctx)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024, logger)
	pStatus.Start(ctx)
	events := kafkax.NewRouter().
		Route(orders.EventOrderCreated, pCreated).
		Route(orders.EventOrderStatusChanged, pStatus)

	// Push fan-out
	hub := notify.NewHub(cfg.SSEMaxConnsPerUser, logger)
	var emitter notify.Emitter = hub
	if cfg.FanoutBackend == "redis" {
		fan := notify.NewRedisFanout(rdb, cfg.FanoutChannel, hub, logger)
		go func() {
			if err := fan.Run(ctx); err != nil {
				logger.Error("fanout subscriber exit", "err", err)
			}
		}()
		emitter = fan
	}
	notes := notify.NewService(&notify.PgStore{DB: db}, emitter, logger)

	svc := orders.NewService(&orders.PgRepo{DB: db}, logger,
		orders.WithNotifier(notes),
		orders.WithEvents(events, cfg.ServiceName),
		orders.WithStatusCache(redisx.NewStatusCache(rdb, logger)),
	)

	// Gateways
	vnp := payment.NewVNPay(payment.VNPayConfig{
		TmnCode:    cfg.VNPay.TmnCode,
		HashSecret: cfg.VNPay.HashSecret,
		PayURL:     cfg.VNPay.PayURL,
		ReturnURL:  cfg.VNPay.ReturnURL,
	})
	hosted := payment.NewHosted(payment.HostedConfig{
		MerchantID: cfg.Hosted.MerchantID,
		Secret:     cfg.Hosted.Secret,
		PayURL:     cfg.Hosted.PayURL,
		ReturnURL:  cfg.Hosted.ReturnURL,
	})
	stripeGw := payment.NewStripe(payment.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
	})

	gate := &access.Gate{
		Classifier: access.DefaultClassifier(),
		Sessions:   access.NewSessionParser(cfg.SessionSecret),
		Logger:     logger,
	}
	router := httpx.NewRouter(gate,
		&httpx.CheckoutHandler{
			Orders: svc,
			Gateways: map[payment.Provider]payment.Redirector{
				payment.ProviderVNPay:  vnp,
				payment.ProviderHosted: hosted,
				payment.ProviderStripe: stripeGw,
			},
			Idem:   redisx.NewIdempotency(rdb),
			Logger: logger,
		},
		&httpx.PaymentHandler{Orders: svc, VNPay: vnp, Hosted: hosted, Stripe: stripeGw, Logger: logger},
		&httpx.OrdersHandler{Orders: svc, Logger: logger},
		&httpx.AdminHandler{Orders: svc, Notify: notes, Logger: logger},
		&httpx.NotificationsHandler{Notify: notes, Hub: hub, Heartbeat: cfg.SSEHeartbeat, Logger: logger},
	)

	// no WriteTimeout: notification streams stay open
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	// streams only end when their context does
	cancel()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pCreated.Close()
	pStatus.Close()
	pCreated.WaitClosed()
	pStatus.WaitClosed()
}
