package models

import (
	"time"

	"github.com/uptrace/bun"
)

// WaitingEntry is unmet demand for an event. Entries are served in
// (created_at, id) order and never reordered.
type WaitingEntry struct {
	bun.BaseModel `bun:"table:waiting_entries"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	EventID     string    `bun:"event_id,notnull" json:"event_id"`
	RequesterID string    `bun:"requester_id,notnull" json:"requester_id"`
	TicketCount int       `bun:"ticket_count,notnull" json:"ticket_count"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}
