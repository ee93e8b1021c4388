package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("record not found")

type DB struct {
	Bun *bun.DB
}

type txKey struct{}

// WithTx runs fn inside one transaction carried by the context. Every store
// method called with that context joins it; nested calls reuse the outer one.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	var opts *sql.TxOptions
	if d.isPostgres() {
		opts = &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}

	return d.Bun.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		if d.isPostgres() {
			if err := setLockTimeout(ctx, tx); err != nil {
				return err
			}
		}
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// setLockTimeout caps row-lock waits at the time left on ctx.
func setLockTimeout(ctx context.Context, tx bun.Tx) error {
	ms, ok := lockTimeoutMillis(ctx)
	if !ok {
		return nil
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", ms)); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}
	return nil
}

// lockTimeoutMillis converts the ctx deadline to a lock_timeout value. Zero
// disables the timeout in PostgreSQL, so the result is at least 1.
func lockTimeoutMillis(ctx context.Context) (int64, bool) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0, false
	}
	ms := time.Until(deadline).Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms, true
}

func txFromContext(ctx context.Context) *bun.Tx {
	tx, ok := ctx.Value(txKey{}).(bun.Tx)
	if !ok {
		return nil
	}
	return &tx
}

func (d *DB) idb(ctx context.Context) bun.IDB {
	if tx := txFromContext(ctx); tx != nil {
		return *tx
	}
	return d.Bun
}

func (d *DB) isPostgres() bool {
	return d.Bun.Dialect().Name() == dialect.PG
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// IsLockTimeout reports whether PostgreSQL gave up waiting for a row lock or
// cancelled the statement.
func IsLockTimeout(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "55P03" || pqErr.Code == "57014"
}

// ---------------- EVENTS ----------------

func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var ev models.Event
	err := d.idb(ctx).NewSelect().
		Model(&ev).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &ev, nil
}

// GetEventForUpdate reads the event row and, on PostgreSQL, holds its row
// lock until the surrounding transaction ends.
func (d *DB) GetEventForUpdate(ctx context.Context, id string) (*models.Event, error) {
	var ev models.Event
	q := d.idb(ctx).NewSelect().
		Model(&ev).
		Where("id = ?", id)
	if d.isPostgres() {
		q = q.For("UPDATE")
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	return &ev, nil
}

func (d *DB) CreateEvent(ctx context.Context, ev *models.Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := d.idb(ctx).NewInsert().Model(ev).Exec(ctx)
	return err
}

// UpdateEventInventory writes the ledger columns only.
func (d *DB) UpdateEventInventory(ctx context.Context, ev *models.Event) error {
	ev.UpdatedAt = time.Now().UTC()
	res, err := d.idb(ctx).NewUpdate().
		Model(ev).
		Column("available_tickets", "status", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------- USERS ----------------

func (d *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := d.idb(ctx).NewSelect().
		Model(&u).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (d *DB) CreateUser(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := d.idb(ctx).NewInsert().Model(u).Exec(ctx)
	return err
}

// ---------------- TICKETS ----------------

func (d *DB) CreateTickets(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	_, err := d.idb(ctx).NewInsert().Model(&tickets).Exec(ctx)
	return err
}

func (d *DB) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	var t models.Ticket
	err := d.idb(ctx).NewSelect().
		Model(&t).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// DeleteTicket removes one ticket of the event. It reports false when the
// row was already gone.
func (d *DB) DeleteTicket(ctx context.Context, eventID, ticketID string) (bool, error) {
	res, err := d.idb(ctx).NewDelete().
		Model((*models.Ticket)(nil)).
		Where("id = ?", ticketID).
		Where("event_id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (d *DB) DeleteTicketsByHolder(ctx context.Context, eventID, holderID string) (int, error) {
	res, err := d.idb(ctx).NewDelete().
		Model((*models.Ticket)(nil)).
		Where("event_id = ?", eventID).
		Where("holder_id = ?", holderID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListTicketsByHolder returns the holder's tickets, newest first. An empty
// eventID lists across all events.
func (d *DB) ListTicketsByHolder(ctx context.Context, holderID, eventID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	q := d.idb(ctx).NewSelect().
		Model(&tickets).
		Where("holder_id = ?", holderID)
	if eventID != "" {
		q = q.Where("event_id = ?", eventID)
	}
	err := q.OrderExpr("issued_at DESC, id ASC").Scan(ctx)
	return tickets, err
}

func (d *DB) CountIssuedTickets(ctx context.Context, eventID string) (int, error) {
	return d.idb(ctx).NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_id = ?", eventID).
		Count(ctx)
}

// ---------------- WAITING QUEUE ----------------

func (d *DB) CreateWaitingEntry(ctx context.Context, entry *models.WaitingEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := d.idb(ctx).NewInsert().Model(entry).Exec(ctx)
	return err
}

// ListWaitingEntries returns the event's queue in service order.
func (d *DB) ListWaitingEntries(ctx context.Context, eventID string) ([]models.WaitingEntry, error) {
	var entries []models.WaitingEntry
	err := d.idb(ctx).NewSelect().
		Model(&entries).
		Where("event_id = ?", eventID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	return entries, err
}

func (d *DB) UpdateWaitingEntryCount(ctx context.Context, id int64, count int) error {
	_, err := d.idb(ctx).NewUpdate().
		Model((*models.WaitingEntry)(nil)).
		Set("ticket_count = ?", count).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (d *DB) DeleteWaitingEntry(ctx context.Context, id int64) error {
	_, err := d.idb(ctx).NewDelete().
		Model((*models.WaitingEntry)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (d *DB) DeleteWaitingEntriesByRequester(ctx context.Context, eventID, requesterID string) (int, error) {
	res, err := d.idb(ctx).NewDelete().
		Model((*models.WaitingEntry)(nil)).
		Where("event_id = ?", eventID).
		Where("requester_id = ?", requesterID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
