package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketSource string

const (
	TicketSourceDirect   TicketSource = "DIRECT"
	TicketSourceWaitlist TicketSource = "WAITLIST"
)

// Ticket is one issued unit of an event's inventory. Deleting the row
// releases the unit.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID       string       `bun:"id,pk" json:"id"`
	EventID  string       `bun:"event_id,notnull" json:"event_id"`
	HolderID string       `bun:"holder_id,notnull" json:"holder_id"`
	Source   TicketSource `bun:"source,notnull" json:"source"`
	IssuedAt time.Time    `bun:"issued_at,notnull" json:"issued_at"`
}
