package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/config"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/notify"
	"ms-booking/internal/tickets/qr"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// notification-worker consumes ticket assignments and emails each holder
// their tickets with QR codes attached.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	topic := pflag.String("topic", cfg.Kafka.AssignmentTopic, "assignment topic to consume")
	group := pflag.String("group", cfg.Kafka.GroupID, "consumer group id")
	pflag.Parse()

	log := logger.NewLogger("notification-worker")
	defer log.Close()

	if cfg.Database.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}
	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	qrGen, err := qr.NewQRGenerator(cfg.QR.SecretKey)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("QR_SECRET_KEY is required: %v", err))
	}

	handler := notify.EmailHandler{
		Directory: &db.DB{Bun: bunDB},
		Composer:  notify.Composer{QR: qrGen},
		Mailer:    notify.LogMailer{Logger: log},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kafka.WaitForBroker(ctx, cfg.Kafka.Brokers); err != nil {
		log.Fatal("KAFKA", fmt.Sprintf("Broker unreachable: %v", err))
	}

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, *topic, *group, log)
	defer consumer.Close()

	log.Info("APP", fmt.Sprintf("Consuming %s as %s", *topic, *group))
	if err := consumer.Start(ctx, handler.Handle); err != nil {
		log.Error("KAFKA", fmt.Sprintf("Consumer stopped: %v", err))
	}
	log.Info("APP", "Notification worker stopped")
}
