package models

import "time"

// Assignment announces tickets issued to one holder in one committed unit.
type Assignment struct {
	EventID    string       `json:"event_id"`
	HolderID   string       `json:"holder_id"`
	TicketIDs  []string     `json:"ticket_ids"`
	Source     TicketSource `json:"source"`
	AssignedAt time.Time    `json:"assigned_at"`
}
