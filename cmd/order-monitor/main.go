package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/orzi-eg/storefront/internal/config"
	"github.com/orzi-eg/storefront/internal/events"
	"github.com/sirupsen/logrus"
)

// monitorConfig shares the storefront prefix so one .env serves both.
type monitorConfig struct {
	KafkaBrokers string `split_words:"true" default:"localhost:9092"`
	KafkaGroupID string `split_words:"true" default:"order-monitor"`
	LogLevel     string `split_words:"true" default:"info"`
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Fatal("Failed to load .env")
	}
	var cfg monitorConfig
	if err := envconfig.Process(config.EnvPrefix, &cfg); err != nil {
		logger.WithError(err).Fatal("Failed to read environment")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	consumer, err := events.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, &orderLogger{logger: logger}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka consumer")
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithField("topic", events.OrderSubmittedTopic).Info("Order monitor started")
	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Error("Order monitor stopped")
		return
	}
	logger.Info("Shutting down order monitor...")
}

// orderLogger writes one entry per submitted order for the fulfilment team.
type orderLogger struct {
	logger *logrus.Logger
}

func (h *orderLogger) HandleOrderSubmitted(event events.OrderSubmittedEvent) error {
	h.logger.WithFields(logrus.Fields{
		"name":         event.Order.Name,
		"phone":        event.Order.Phone,
		"governorate":  event.Order.Governorate,
		"area":         event.Order.Area,
		"address":      event.Order.FullAddress,
		"style":        event.Order.BraceletStyle,
		"submitted_at": event.SubmittedAt,
	}).Info("New order to fulfil")
	return nil
}
