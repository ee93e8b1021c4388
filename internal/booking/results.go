package booking

import (
	"time"

	"ms-booking/internal/models"
)

type RequestStatus string

const (
	StatusBooked  RequestStatus = "BOOKED"
	StatusPartial RequestStatus = "PARTIAL"
	StatusQueued  RequestStatus = "QUEUED"
)

type RequestResult struct {
	EventID     string             `json:"event_id"`
	TicketIDs   []string           `json:"ticket_ids"`
	Queued      int                `json:"queued"`
	Status      RequestStatus      `json:"status"`
	Available   int                `json:"available_tickets"`
	EventStatus models.EventStatus `json:"event_status"`
}

// Reassignment is a drained unit handed to a waiting requester.
type Reassignment struct {
	RequesterID string   `json:"requester_id"`
	TicketIDs   []string `json:"ticket_ids"`
	StillQueued int      `json:"still_queued"`
}

type ReleaseResult struct {
	EventID     string             `json:"event_id"`
	TicketID    string             `json:"ticket_id"`
	Reassigned  []Reassignment     `json:"reassigned"`
	Available   int                `json:"available_tickets"`
	EventStatus models.EventStatus `json:"event_status"`
}

type ReleaseAllResult struct {
	EventID     string             `json:"event_id"`
	Released    int                `json:"released"`
	Reassigned  []Reassignment     `json:"reassigned"`
	Available   int                `json:"available_tickets"`
	EventStatus models.EventStatus `json:"event_status"`
}

type InventorySnapshot struct {
	EventID       string             `json:"event_id"`
	Total         int                `json:"total_tickets"`
	Available     int                `json:"available_tickets"`
	Issued        int                `json:"issued_tickets"`
	Status        models.EventStatus `json:"status"`
	QueueLength   int                `json:"queue_length"`
	QueuedTickets int                `json:"queued_tickets"`
}

// QueuePosition is one of a requester's waiting entries. Position is 1-based
// and UnitsAhead counts tickets owed to entries in front.
type QueuePosition struct {
	EntryID     int64     `json:"entry_id"`
	Position    int       `json:"position"`
	TicketCount int       `json:"ticket_count"`
	UnitsAhead  int       `json:"units_ahead"`
	QueuedAt    time.Time `json:"queued_at"`
}
