package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Booking  BookingConfig
	Auth     AuthConfig
	QR       QRConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	AutoMigrate  bool
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers         []string
	GroupID         string
	AssignmentTopic string
	Enabled         bool
}

type BookingConfig struct {
	// Locker selects the per-event lock: "memory" or "redis".
	Locker        string
	LockTimeout   time.Duration
	LockTTL       time.Duration
	ReopenPolicy  string
	NotifyTimeout time.Duration
}

type AuthConfig struct {
	// Mode is "oidc" (verified tokens) or "unverified" for local development.
	Mode       string
	OIDCIssuer string
}

type QRConfig struct {
	SecretKey string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8085"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:  getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers:         getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID:         getEnv("KAFKA_GROUP_ID", "booking-notifier"),
			AssignmentTopic: getEnv("KAFKA_TOPIC_ASSIGNMENTS", "booking.tickets.assigned"),
			Enabled:         getEnvBool("KAFKA_ENABLED", true),
		},
		Booking: BookingConfig{
			Locker:        getEnv("BOOKING_LOCKER", "memory"),
			LockTimeout:   getEnvDuration("BOOKING_LOCK_TIMEOUT", 5*time.Second),
			LockTTL:       getEnvDuration("BOOKING_LOCK_TTL", 30*time.Second),
			ReopenPolicy:  getEnv("BOOKING_REOPEN_POLICY", "auto"),
			NotifyTimeout: getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			Mode:       getEnv("AUTH_MODE", "oidc"),
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
		},
		QR: QRConfig{
			SecretKey: getEnv("QR_SECRET_KEY", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("750ms", "5s").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
