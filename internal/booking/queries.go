package booking

import (
	"context"
	"errors"
	"fmt"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/models"

	"github.com/samber/lo"
)

// GetBooking returns a ticket held by the requester. Tickets held by someone
// else are reported as missing.
func (e *Engine) GetBooking(ctx context.Context, requesterID, ticketID string) (*models.Ticket, error) {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && ticket.HolderID != requesterID) {
		return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, ticketID)
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

// ListBookings returns the requester's tickets, optionally for one event.
func (e *Engine) ListBookings(ctx context.Context, requesterID, eventID string) ([]models.Ticket, error) {
	tickets, err := e.store.ListTicketsByHolder(ctx, requesterID, eventID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return tickets, nil
}

// Inventory reads the ledger, the issued count and the queue in one
// transaction so the numbers agree with each other.
func (e *Engine) Inventory(ctx context.Context, eventID string) (*InventorySnapshot, error) {
	var snap *InventorySnapshot
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		ev, err := e.store.GetEvent(ctx, eventID)
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
		}
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		issued, err := e.store.CountIssuedTickets(ctx, eventID)
		if err != nil {
			return fmt.Errorf("count tickets: %w", err)
		}
		queue, err := e.store.ListWaitingEntries(ctx, eventID)
		if err != nil {
			return fmt.Errorf("list waiting entries: %w", err)
		}

		snap = &InventorySnapshot{
			EventID:       ev.ID,
			Total:         ev.TotalTickets,
			Available:     ev.AvailableTickets,
			Issued:        issued,
			Status:        ev.Status,
			QueueLength:   len(queue),
			QueuedTickets: lo.SumBy(queue, func(e models.WaitingEntry) int { return e.TicketCount }),
		}
		return nil
	})
	return snap, err
}

// WaitingPositions lists the requester's entries for the event in the order
// they will be served.
func (e *Engine) WaitingPositions(ctx context.Context, eventID, requesterID string) ([]QueuePosition, error) {
	if _, err := e.store.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	queue, err := e.store.ListWaitingEntries(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list waiting entries: %w", err)
	}

	var (
		positions []QueuePosition
		ahead     int
	)
	for i, entry := range queue {
		if entry.RequesterID == requesterID {
			positions = append(positions, QueuePosition{
				EntryID:     entry.ID,
				Position:    i + 1,
				TicketCount: entry.TicketCount,
				UnitsAhead:  ahead,
				QueuedAt:    entry.CreatedAt,
			})
		}
		ahead += entry.TicketCount
	}
	if len(positions) == 0 {
		return nil, ErrNotWaiting
	}
	return positions, nil
}

// IsOwner exposes the ownership guard to the transport layer.
func (e *Engine) IsOwner(ctx context.Context, eventID, userID string) (bool, error) {
	return e.guard.IsOwner(ctx, eventID, userID)
}
