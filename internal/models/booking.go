package models

import (
	"errors"
	"strings"
)

// MaxTicketsPerRequest caps a single booking request.
const MaxTicketsPerRequest = 100

// BookingRequest is the payload of POST /api/booking. RequesterID comes from
// the authenticated session, never from the body.
type BookingRequest struct {
	EventID     string `json:"event_id"`
	TicketCount int    `json:"ticket_count"`
	RequesterID string `json:"-"`
}

func (r *BookingRequest) Normalize() {
	r.EventID = strings.TrimSpace(r.EventID)
	r.RequesterID = strings.TrimSpace(r.RequesterID)
}

func (r BookingRequest) Validate() error {
	if r.EventID == "" {
		return errors.New("event_id is required")
	}
	if r.RequesterID == "" {
		return errors.New("requester is required")
	}
	if r.TicketCount <= 0 {
		return errors.New("ticket_count must be a positive integer")
	}
	if r.TicketCount > MaxTicketsPerRequest {
		return errors.New("ticket_count exceeds the per-request limit")
	}
	return nil
}
