package db

import (
	"context"
	"fmt"

	"ms-booking/internal/models"
)

// CreateSchema builds the tables from the bun models. Production schemas come
// from the SQL migrations; this is for SQLite and local tooling.
func (d *DB) CreateSchema(ctx context.Context) error {
	tables := []interface{}{
		(*models.User)(nil),
		(*models.Event)(nil),
		(*models.Ticket)(nil),
		(*models.WaitingEntry)(nil),
	}
	for _, model := range tables {
		if _, err := d.Bun.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table %T: %w", model, err)
		}
	}

	_, err := d.Bun.NewCreateIndex().
		Model((*models.WaitingEntry)(nil)).
		Index("idx_waiting_entries_queue").
		Column("event_id", "created_at", "id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create queue index: %w", err)
	}

	_, err = d.Bun.NewCreateIndex().
		Model((*models.Ticket)(nil)).
		Index("idx_tickets_event_holder").
		Column("event_id", "holder_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create ticket index: %w", err)
	}
	return nil
}

// DropSchema removes every table CreateSchema makes.
func (d *DB) DropSchema(ctx context.Context) error {
	tables := []interface{}{
		(*models.WaitingEntry)(nil),
		(*models.Ticket)(nil),
		(*models.Event)(nil),
		(*models.User)(nil),
	}
	for _, model := range tables {
		if _, err := d.Bun.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table %T: %w", model, err)
		}
	}
	return nil
}
