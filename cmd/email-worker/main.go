package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ms-registration/internal/config"
	"ms-registration/internal/kafka"
	"ms-registration/internal/logger"
	"ms-registration/internal/notification"
	"ms-registration/internal/qr"
)

// Consumes ticket email messages from Kafka and sends each recipient their
// ticket with an encrypted QR code attached.
func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting ticket email worker")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	cfg := config.Load()
	if !cfg.Kafka.Enabled {
		log.Fatal("CONFIG", "Kafka is disabled, the email worker has nothing to consume")
	}

	mailer := notification.NewMailer(cfg.Email, log)
	qrGen := qr.NewGenerator(cfg.Auth.QRSecret)
	worker := notification.NewWorker(mailer, qrGen, log)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.TicketEmails, cfg.Kafka.GroupID, log)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		log.Info("APP", "Shutdown signal received, stopping consumer")
		cancel()
	}()

	log.Info("KAFKA", fmt.Sprintf("Consuming %s as group %s", cfg.Kafka.Topics.TicketEmails, cfg.Kafka.GroupID))
	consumer.Start(ctx, worker.Handle)

	log.Info("APP", "✅ Email worker shutdown complete")
}
