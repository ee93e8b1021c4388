package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/booking_api"
	"ms-booking/internal/booking/db"
	"ms-booking/internal/booking/lock"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/notify"
	"ms-booking/internal/sse"
	"ms-booking/internal/tickets/qr"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	if cfg.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

// newLocker picks the per-event lock. Redis is required once more than one
// replica serves the same events.
func newLocker(ctx context.Context, cfg *config.Config, log *logger.Logger) (lock.Locker, *redis.Client) {
	switch cfg.Booking.Locker {
	case "memory":
		log.Info("LOCK", "Using in-process event locks")
		return lock.NewKeyedMutex(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
		}
		log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))
		return lock.NewRedisLocker(client, cfg.Booking.LockTTL, log), client
	default:
		log.Fatal("CONFIG", fmt.Sprintf("Unknown BOOKING_LOCKER %q", cfg.Booking.Locker))
		return nil, nil
	}
}

func authMiddleware(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) func(http.Handler) http.Handler {
	if cfg.Mode == "unverified" {
		log.Warn("AUTH", "AUTH_MODE=unverified: token signatures are NOT checked")
		return auth.UnverifiedMiddleware()
	}
	mw, err := auth.Middleware(ctx, cfg.OIDCIssuer)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to initialise OIDC verification: %v", err))
	}
	return mw
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println(".env file not found, using environment variables")
	}

	cfg := config.Load()
	log := logger.NewLogger("booking")
	defer log.Close()
	log.Info("APP", "Starting Booking Service initialization")

	ctx := context.Background()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), log)
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("MIGRATE", fmt.Sprintf("Migrations failed: %v", err))
		}
	}

	locker, redisClient := newLocker(ctx, cfg, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	emitter := sse.NewAssignmentEmitter()
	sinks := []notify.Sink{
		notify.LogSink{Logger: log},
		notify.StreamSink{Emitter: emitter},
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := kafka.WaitForBroker(waitCtx, cfg.Kafka.Brokers); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Broker not reachable yet: %v", err))
		}
		cancel()

		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.AssignmentTopic}); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.LogKafka("ENSURE", cfg.Kafka.AssignmentTopic, "topic ready")
		}

		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		sinks = append(sinks, notify.KafkaSink{Publisher: producer, Topic: cfg.Kafka.AssignmentTopic})
		log.Info("KAFKA", "Kafka producer initialized successfully")
	}

	dispatcher := notify.NewDispatcher(log, cfg.Booking.NotifyTimeout, sinks...)

	reopen, err := booking.ParseReopenPolicy(cfg.Booking.ReopenPolicy)
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	store := &db.DB{Bun: bunDB}
	engine := booking.NewEngine(store, locker, dispatcher, booking.StoreGuard{Events: store}, log,
		booking.WithLockTimeout(cfg.Booking.LockTimeout),
		booking.WithReopenPolicy(reopen),
	)

	var qrGen *qr.QRGenerator
	if cfg.QR.SecretKey == "" {
		log.Warn("CONFIG", "QR_SECRET_KEY not set, ticket QR codes are disabled")
	} else if qrGen, err = qr.NewQRGenerator(cfg.QR.SecretKey); err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Invalid QR secret: %v", err))
	}

	handler := booking_api.NewHandler(engine, qrGen, emitter, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(booking_api.RequestLogger(log))

	// --- Public Routes ---
	r.Get("/health", booking_api.Health)

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(ctx, cfg.Auth, log))
		r.Use(booking_api.RequireUser)
		r.Route("/api", handler.RegisterRoutes)
	})
	log.Info("ROUTER", "Booking routes registered under /api/booking")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	// let in-flight notifications finish before the producer goes away
	if err := dispatcher.Close(ctxShutdown); err != nil {
		log.Warn("NOTIFY", fmt.Sprintf("Notifications still pending at shutdown: %v", err))
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
	log.Info("HTTP", "✅ Booking Service shutdown complete")
}
