package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"testing"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func startPostgres(t *testing.T) *bun.DB {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "booking",
				"POSTGRES_PASSWORD": "booking",
				"POSTGRES_DB":       "booking",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://booking:booking@%s:%s/booking?sslmode=disable", host, port.Port())
	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, sqldb.PingContext(ctx))

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

func TestRunMigrations_SchemaOnly(t *testing.T) {
	bunDB := startPostgres(t)
	ctx := context.Background()

	runner := NewRunner(bunDB, DefaultOptions(), logger.NewWithWriter(io.Discard))
	require.NoError(t, runner.RunMigrations())
	// a second run is a no-op
	require.NoError(t, runner.RunMigrations())

	count, err := bunDB.NewSelect().Model((*models.Event)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	owner := &models.User{ID: "u1", Email: "u1@example.com", FirstName: "U"}
	_, err = bunDB.NewInsert().Model(owner).Exec(ctx)
	require.NoError(t, err)

	_, err = bunDB.NewInsert().Model(&models.Event{
		ID: "e1", OwnerID: "u1", Name: "Oversold", TotalTickets: 2, AvailableTickets: 3,
		Status: models.EventAllowingBookings,
	}).Exec(ctx)
	assert.Error(t, err, "available above total must violate the check constraint")

	require.NoError(t, runner.MigrateDown())
	require.NoError(t, runner.Close())
}

func TestRunMigrations_WithSeed(t *testing.T) {
	bunDB := startPostgres(t)
	ctx := context.Background()

	runner := NewRunner(bunDB, MigrateOptions{AutoMigrate: true, SeedData: true}, logger.NewWithWriter(io.Discard))
	require.NoError(t, runner.RunMigrations())
	defer runner.Close()

	var events []models.Event
	require.NoError(t, bunDB.NewSelect().Model(&events).Order("total_tickets ASC").Scan(ctx))
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[0].TotalTickets)
	assert.Equal(t, events[0].TotalTickets, events[0].AvailableTickets)
}
