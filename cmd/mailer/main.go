package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/HTM0410/sale-account-sub001/internal/config"
	kafkax "github.com/HTM0410/sale-account-sub001/internal/kafka"
	"github.com/HTM0410/sale-account-sub001/internal/mailer"
	"github.com/HTM0410/sale-account-sub001/internal/orders"
	"github.com/HTM0410/sale-account-sub001/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})).
		With("service", cfg.ServiceName+"-mailer")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &mailer.Service{
		Sender: &mailer.SMTPSender{
			Addr:     cfg.SMTP.Addr,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		},
		Dedup:   redisx.NewDedup(rdb, "mailer"),
		BaseURL: cfg.PublicBaseURL,
		Logger:  logger,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.MailerGroup, orders.TopicOrderStatusChanged, cfg.MailerWorkers, logger)
	logger.Info("mailer consumer started", "group", cfg.MailerGroup, "topic", orders.TopicOrderStatusChanged, "workers", cfg.MailerWorkers)
	if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
		logger.Error("consumer exit", "err", err)
		os.Exit(1)
	}
	logger.Info("mailer stopped")
}
