package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"BOOKING_LOCKER", "BOOKING_LOCK_TIMEOUT", "BOOKING_REOPEN_POLICY", "KAFKA_BROKERS", "PORT"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, ":8085", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Booking.Locker)
	assert.Equal(t, 5*time.Second, cfg.Booking.LockTimeout)
	assert.Equal(t, "auto", cfg.Booking.ReopenPolicy)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BOOKING_LOCKER", "redis")
	t.Setenv("BOOKING_LOCK_TIMEOUT", "750ms")
	t.Setenv("BOOKING_REOPEN_POLICY", "manual")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")

	cfg := Load()

	assert.Equal(t, "redis", cfg.Booking.Locker)
	assert.Equal(t, 750*time.Millisecond, cfg.Booking.LockTimeout)
	assert.Equal(t, "manual", cfg.Booking.ReopenPolicy)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

func TestGetEnvDuration_RejectsNonPositive(t *testing.T) {
	t.Setenv("BOOKING_LOCK_TTL", "-1s")
	assert.Equal(t, 30*time.Second, getEnvDuration("BOOKING_LOCK_TTL", 30*time.Second))
}
