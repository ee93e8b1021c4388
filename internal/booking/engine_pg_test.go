package booking

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/booking/lock"
	"ms-booking/internal/database/migrations"
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

// TestEngine_Postgres runs two engines against one database, each with its
// own in-process locker, so only the row lock keeps them apart.
func TestEngine_Postgres(t *testing.T) {
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
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	sqldb, err := sql.Open("postgres", fmt.Sprintf("postgres://booking:booking@%s:%s/booking?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	log := logger.NewWithWriter(io.Discard)
	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), log)
	require.NoError(t, runner.RunMigrations())

	store := &db.DB{Bun: bunDB}
	for _, id := range []string{owner, "alice", "bob"} {
		require.NoError(t, store.CreateUser(ctx, &models.User{ID: id, Email: id + "@example.com", FirstName: id}))
	}
	ev := &models.Event{ID: "pg-event", OwnerID: owner, Name: "Postgres", TotalTickets: 5, AvailableTickets: 5, Status: models.EventAllowingBookings}
	require.NoError(t, store.CreateEvent(ctx, ev))

	notifier := &recordingNotifier{}
	engines := []*Engine{
		NewEngine(store, lock.NewKeyedMutex(), notifier, StoreGuard{Events: store}, log),
		NewEngine(store, lock.NewKeyedMutex(), notifier, StoreGuard{Events: store}, log),
	}

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			requester := []string{"alice", "bob"}[i%2]
			_, err := engines[i%2].RequestTickets(ctx, models.BookingRequest{EventID: ev.ID, RequesterID: requester, TicketCount: 1})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := store.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	issued, err := store.CountIssuedTickets(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, issued)
	assert.Equal(t, 0, got.AvailableTickets)
	assert.Equal(t, models.EventBookingsClosed, got.Status)

	queue, err := store.ListWaitingEntries(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, queue, 7)

	res, err := engines[0].ReleaseAllForRequester(ctx, ev.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, res.Released, countUnits(res.Reassigned))

	issued, err = store.CountIssuedTickets(ctx, ev.ID)
	require.NoError(t, err)
	got, err = store.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, got.TotalTickets, got.AvailableTickets+issued)

	// a row lock held outside any engine must not stall the caller past the deadline
	holder, err := bunDB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer holder.Rollback()
	_, err = holder.ExecContext(ctx, "SELECT id FROM events WHERE id = ? FOR UPDATE", ev.ID)
	require.NoError(t, err)

	bounded := NewEngine(store, lock.NewKeyedMutex(), notifier, StoreGuard{Events: store}, log, WithLockTimeout(300*time.Millisecond))
	start := time.Now()
	_, err = bounded.ReleaseAllForRequester(ctx, ev.ID, "bob")
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
	require.NoError(t, holder.Rollback())

	after, err := store.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, got.AvailableTickets, after.AvailableTickets)
}

func countUnits(rs []Reassignment) int {
	var n int
	for _, r := range rs {
		n += len(r.TicketIDs)
	}
	return n
}
