package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EventStatus string

const (
	EventAllowingBookings EventStatus = "ALLOWING_BOOKINGS"
	EventBookingsClosed   EventStatus = "BOOKINGS_CLOSED"
	EventCancelled        EventStatus = "CANCELLED"
	EventOngoing          EventStatus = "ONGOING"
	EventCompleted        EventStatus = "COMPLETED"
)

// Terminal reports whether the status was set by an operator and takes the
// event out of the allocation engine's hands.
func (s EventStatus) Terminal() bool {
	switch s {
	case EventCancelled, EventOngoing, EventCompleted:
		return true
	}
	return false
}

// Event carries the inventory ledger of one event. AvailableTickets is only
// ever written by the allocation engine.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID               string      `bun:"id,pk" json:"id"`
	OwnerID          string      `bun:"owner_id,notnull" json:"owner_id"`
	Name             string      `bun:"name,notnull" json:"name"`
	StartsAt         time.Time   `bun:"starts_at,nullzero" json:"starts_at"`
	TotalTickets     int         `bun:"total_tickets,notnull" json:"total_tickets"`
	AvailableTickets int         `bun:"available_tickets,notnull" json:"available_tickets"`
	Status           EventStatus `bun:"status,notnull" json:"status"`
	CreatedAt        time.Time   `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time   `bun:"updated_at,nullzero" json:"updated_at"`
}
