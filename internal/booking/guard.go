package booking

import (
	"context"
	"errors"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/models"
)

// OwnershipGuard answers whether a user owns an event.
type OwnershipGuard interface {
	IsOwner(ctx context.Context, eventID, userID string) (bool, error)
}

type eventGetter interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

// StoreGuard reads ownership from the events table. Inside a transaction
// context it reads through that transaction.
type StoreGuard struct {
	Events eventGetter
}

func (g StoreGuard) IsOwner(ctx context.Context, eventID, userID string) (bool, error) {
	ev, err := g.Events.GetEvent(ctx, eventID)
	if errors.Is(err, db.ErrNotFound) {
		return false, ErrEventNotFound
	}
	if err != nil {
		return false, err
	}
	return ev.OwnerID == userID, nil
}
