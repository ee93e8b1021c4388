package db_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *db.DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	store := &db.DB{Bun: bun.NewDB(sqldb, sqlitedialect.New())}
	require.NoError(t, store.CreateSchema(context.Background()))

	t.Cleanup(func() { store.Bun.Close() })
	return store
}

func seedEvent(t *testing.T, store *db.DB, total int) *models.Event {
	ev := &models.Event{
		ID:               uuid.NewString(),
		OwnerID:          "owner-1",
		Name:             "Launch Party",
		TotalTickets:     total,
		AvailableTickets: total,
		Status:           models.EventAllowingBookings,
	}
	require.NoError(t, store.CreateEvent(context.Background(), ev))
	return ev
}

func TestGetEvent(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	ev := seedEvent(t, store, 3)

	got, err := store.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AvailableTickets)
	assert.Equal(t, models.EventAllowingBookings, got.Status)

	_, err = store.GetEvent(ctx, "missing")
	assert.ErrorIs(t, err, db.ErrNotFound)

	locked, err := store.GetEventForUpdate(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, locked.ID)
}

func TestUpdateEventInventory(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	ev := seedEvent(t, store, 3)

	ev.AvailableTickets = 0
	ev.Status = models.EventBookingsClosed
	ev.Name = "not persisted"
	require.NoError(t, store.UpdateEventInventory(ctx, ev))

	got, err := store.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableTickets)
	assert.Equal(t, models.EventBookingsClosed, got.Status)
	assert.Equal(t, "Launch Party", got.Name)
	assert.False(t, got.UpdatedAt.IsZero())

	err = store.UpdateEventInventory(ctx, &models.Event{ID: "missing"})
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestTickets(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	ev := seedEvent(t, store, 5)
	now := time.Now().UTC()

	tickets := []models.Ticket{
		{ID: "t1", EventID: ev.ID, HolderID: "alice", Source: models.TicketSourceDirect, IssuedAt: now},
		{ID: "t2", EventID: ev.ID, HolderID: "alice", Source: models.TicketSourceDirect, IssuedAt: now},
		{ID: "t3", EventID: ev.ID, HolderID: "bob", Source: models.TicketSourceWaitlist, IssuedAt: now},
	}
	require.NoError(t, store.CreateTickets(ctx, tickets))
	require.NoError(t, store.CreateTickets(ctx, nil))

	n, err := store.CountIssuedTickets(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := store.GetTicket(ctx, "t3")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.HolderID)
	assert.Equal(t, models.TicketSourceWaitlist, got.Source)

	held, err := store.ListTicketsByHolder(ctx, "alice", "")
	require.NoError(t, err)
	assert.Len(t, held, 2)

	held, err = store.ListTicketsByHolder(ctx, "alice", "other-event")
	require.NoError(t, err)
	assert.Empty(t, held)

	// wrong event does not delete
	deleted, err := store.DeleteTicket(ctx, "other-event", "t1")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = store.DeleteTicket(ctx, ev.ID, "t1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteTicket(ctx, ev.ID, "t1")
	require.NoError(t, err)
	assert.False(t, deleted)

	removed, err := store.DeleteTicketsByHolder(ctx, ev.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetTicket(ctx, "t2")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestWaitingQueueOrder(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	ev := seedEvent(t, store, 0)
	base := time.Now().UTC()

	// same timestamp for the first two: insertion order breaks the tie
	entries := []*models.WaitingEntry{
		{EventID: ev.ID, RequesterID: "first", TicketCount: 2, CreatedAt: base},
		{EventID: ev.ID, RequesterID: "second", TicketCount: 1, CreatedAt: base},
		{EventID: ev.ID, RequesterID: "early", TicketCount: 4, CreatedAt: base.Add(-time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, store.CreateWaitingEntry(ctx, e))
		assert.NotZero(t, e.ID)
	}

	queue, err := store.ListWaitingEntries(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, "early", queue[0].RequesterID)
	assert.Equal(t, "first", queue[1].RequesterID)
	assert.Equal(t, "second", queue[2].RequesterID)

	require.NoError(t, store.UpdateWaitingEntryCount(ctx, queue[0].ID, 1))
	require.NoError(t, store.DeleteWaitingEntry(ctx, queue[1].ID))

	queue, err = store.ListWaitingEntries(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, 1, queue[0].TicketCount)
	assert.Equal(t, "second", queue[1].RequesterID)

	n, err := store.DeleteWaitingEntriesByRequester(ctx, ev.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	ev := seedEvent(t, store, 2)
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(ctx context.Context) error {
		locked, err := store.GetEventForUpdate(ctx, ev.ID)
		if err != nil {
			return err
		}
		locked.AvailableTickets = 0
		if err := store.UpdateEventInventory(ctx, locked); err != nil {
			return err
		}
		if err := store.CreateTickets(ctx, []models.Ticket{
			{ID: "t1", EventID: ev.ID, HolderID: "alice", Source: models.TicketSourceDirect, IssuedAt: time.Now()},
		}); err != nil {
			return err
		}
		// nested call joins the outer transaction
		return store.WithTx(ctx, func(ctx context.Context) error {
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableTickets)

	n, err := store.CountIssuedTickets(ctx, ev.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWithTx_Commits(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	ev := seedEvent(t, store, 2)

	err := store.WithTx(ctx, func(ctx context.Context) error {
		return store.CreateWaitingEntry(ctx, &models.WaitingEntry{EventID: ev.ID, RequesterID: "alice", TicketCount: 3})
	})
	require.NoError(t, err)

	queue, err := store.ListWaitingEntries(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, queue, 1)
}

func TestIsLockTimeout(t *testing.T) {
	assert.False(t, db.IsLockTimeout(errors.New("plain")))
	assert.False(t, db.IsLockTimeout(nil))
	assert.True(t, db.IsLockTimeout(&pq.Error{Code: "55P03"}))
	assert.True(t, db.IsLockTimeout(fmt.Errorf("select event: %w", &pq.Error{Code: "57014"})))
	assert.False(t, db.IsLockTimeout(&pq.Error{Code: "23505"}))
}
