package booking

import (
	"errors"
)

var (
	ErrEventNotFound      = errors.New("event not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrNoBookings         = errors.New("no bookings found")
	ErrNotWaiting         = errors.New("no waiting entries found")
	ErrSelfBooking        = errors.New("event owner cannot book their own event")
	ErrNotEventOwner      = errors.New("only the event owner can release another requester's tickets")
	ErrBookingsClosed     = errors.New("event is not accepting bookings")
	ErrInvalidTicketCount = errors.New("invalid ticket count")
	ErrInvalidRequest     = errors.New("invalid booking request")
	ErrLockTimeout        = errors.New("timed out waiting for event lock")
	ErrLedgerMismatch     = errors.New("inventory ledger out of balance")
)

// Kind classifies engine errors for callers that map them to responses.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidState
	KindInvalid
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindForbidden:
		return "FORBIDDEN"
	case KindInvalidState:
		return "INVALID_STATE"
	case KindInvalid:
		return "INVALID"
	case KindTimeout:
		return "TIMEOUT"
	default:
		return "INTERNAL"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrEventNotFound, KindNotFound},
	{ErrUserNotFound, KindNotFound},
	{ErrTicketNotFound, KindNotFound},
	{ErrNoBookings, KindNotFound},
	{ErrNotWaiting, KindNotFound},
	{ErrSelfBooking, KindForbidden},
	{ErrNotEventOwner, KindForbidden},
	{ErrBookingsClosed, KindInvalidState},
	{ErrInvalidTicketCount, KindInvalid},
	{ErrInvalidRequest, KindInvalid},
	{ErrLockTimeout, KindTimeout},
}

// KindOf returns KindInternal for errors the engine did not classify.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
