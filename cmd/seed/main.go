package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// seed resets a development database and fills it with an organizer, a few
// attendees and events of varying capacity.
func main() {
	_ = godotenv.Load()

	var (
		dsn      = pflag.String("dsn", os.Getenv("POSTGRES_DSN"), "Postgres DSN")
		reset    = pflag.Bool("reset", false, "drop and recreate the booking tables first")
		events   = pflag.Int("events", 3, "number of sample events")
		capacity = pflag.Int("capacity", 2, "tickets for the smallest event; each next event doubles it")
	)
	pflag.Parse()

	log := logger.NewLogger("seed")
	defer log.Close()

	if *dsn == "" {
		log.Fatal("CONFIG", "no DSN: pass --dsn or set POSTGRES_DSN")
	}

	ctx := context.Background()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(*dsn)))
	defer sqldb.Close()
	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to database: %v", err))
	}

	store := &db.DB{Bun: bun.NewDB(sqldb, pgdialect.New())}

	if *reset {
		log.Info("SEED", "Dropping tables...")
		if err := store.DropSchema(ctx); err != nil {
			log.Fatal("SEED", err.Error())
		}
	}
	log.Info("SEED", "Creating tables...")
	if err := store.CreateSchema(ctx); err != nil {
		log.Fatal("SEED", err.Error())
	}

	log.Info("SEED", "Seeding sample data...")
	if err := seedData(ctx, store, *events, *capacity, log); err != nil {
		log.Fatal("SEED", err.Error())
	}
	log.Info("SEED", "✅ Done.")
}

func seedData(ctx context.Context, store *db.DB, events, capacity int, log *logger.Logger) error {
	organizer := &models.User{ID: uuid.NewString(), Email: "organizer+" + shortID() + "@example.com", FirstName: "Olivia", LastName: "Organizer"}
	attendees := []*models.User{
		{ID: uuid.NewString(), Email: "alice+" + shortID() + "@example.com", FirstName: "Alice", LastName: "Attendee"},
		{ID: uuid.NewString(), Email: "bob+" + shortID() + "@example.com", FirstName: "Bob", LastName: "Attendee"},
		{ID: uuid.NewString(), Email: "carol+" + shortID() + "@example.com", FirstName: "Carol", LastName: "Attendee"},
	}

	for _, u := range append([]*models.User{organizer}, attendees...) {
		if err := store.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("create user %s: %w", u.Email, err)
		}
		log.Info("SEED", fmt.Sprintf("user %-10s %s", u.FullName(), u.ID))
	}

	total := capacity
	for i := 0; i < events; i++ {
		ev := &models.Event{
			ID:               uuid.NewString(),
			OwnerID:          organizer.ID,
			Name:             fmt.Sprintf("Sample Event #%d", i+1),
			StartsAt:         time.Now().UTC().AddDate(0, 1, i*7),
			TotalTickets:     total,
			AvailableTickets: total,
			Status:           models.EventAllowingBookings,
			CreatedAt:        time.Now().UTC(),
		}
		if err := store.CreateEvent(ctx, ev); err != nil {
			return fmt.Errorf("create event %s: %w", ev.Name, err)
		}
		log.Info("SEED", fmt.Sprintf("event %q capacity=%d %s", ev.Name, ev.TotalTickets, ev.ID))
		total *= 2
	}
	return nil
}

func shortID() string {
	return uuid.NewString()[:8]
}
