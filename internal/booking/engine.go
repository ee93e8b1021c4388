package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/booking/lock"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Store is the persistence the engine needs. Every method joins the
// transaction carried by ctx, if any.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetEventForUpdate(ctx context.Context, id string) (*models.Event, error)
	UpdateEventInventory(ctx context.Context, ev *models.Event) error
	GetUser(ctx context.Context, id string) (*models.User, error)

	CreateTickets(ctx context.Context, tickets []models.Ticket) error
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	DeleteTicket(ctx context.Context, eventID, ticketID string) (bool, error)
	DeleteTicketsByHolder(ctx context.Context, eventID, holderID string) (int, error)
	ListTicketsByHolder(ctx context.Context, holderID, eventID string) ([]models.Ticket, error)
	CountIssuedTickets(ctx context.Context, eventID string) (int, error)

	CreateWaitingEntry(ctx context.Context, entry *models.WaitingEntry) error
	ListWaitingEntries(ctx context.Context, eventID string) ([]models.WaitingEntry, error)
	UpdateWaitingEntryCount(ctx context.Context, id int64, count int) error
	DeleteWaitingEntry(ctx context.Context, id int64) error
	DeleteWaitingEntriesByRequester(ctx context.Context, eventID, requesterID string) (int, error)
}

// Notifier receives assignments after their transaction commits. It must not
// block.
type Notifier interface {
	Dispatch(a models.Assignment)
}

type ReopenPolicy string

const (
	// ReopenAuto reopens a closed event as soon as a release leaves capacity.
	ReopenAuto ReopenPolicy = "auto"
	// ReopenManual leaves a closed event closed until an operator reopens it.
	ReopenManual ReopenPolicy = "manual"
)

func ParseReopenPolicy(s string) (ReopenPolicy, error) {
	switch ReopenPolicy(s) {
	case ReopenAuto, ReopenManual:
		return ReopenPolicy(s), nil
	}
	return "", fmt.Errorf("unknown reopen policy %q", s)
}

const defaultLockTimeout = 5 * time.Second

type Engine struct {
	store    Store
	locker   lock.Locker
	notifier Notifier
	guard    OwnershipGuard
	logger   *logger.Logger

	lockTimeout time.Duration
	reopen      ReopenPolicy
	now         func() time.Time
	newID       func() string
}

type Option func(*Engine)

// WithLockTimeout bounds the wait for the per-event lock together with the
// transaction run under it.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lockTimeout = d
		}
	}
}

func WithReopenPolicy(p ReopenPolicy) Option {
	return func(e *Engine) {
		if p != "" {
			e.reopen = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(store Store, locker lock.Locker, notifier Notifier, guard OwnershipGuard, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		locker:      locker,
		notifier:    notifier,
		guard:       guard,
		logger:      log,
		lockTimeout: defaultLockTimeout,
		reopen:      ReopenAuto,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RequestTickets issues what the event can cover now and queues the rest.
func (e *Engine) RequestTickets(ctx context.Context, req models.BookingRequest) (*RequestResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		if req.TicketCount <= 0 || req.TicketCount > models.MaxTicketsPerRequest {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTicketCount, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if _, err := e.store.GetUser(ctx, req.RequesterID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, req.RequesterID)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	var (
		result   *RequestResult
		assigned *models.Assignment
	)
	err := e.withEventLock(ctx, req.EventID, func(ctx context.Context) error {
		ev, err := e.lockEvent(ctx, req.EventID)
		if err != nil {
			return err
		}

		owner, err := e.guard.IsOwner(ctx, ev.ID, req.RequesterID)
		if err != nil {
			return fmt.Errorf("ownership check: %w", err)
		}
		if owner {
			return ErrSelfBooking
		}
		if err := admit(ev); err != nil {
			return err
		}

		plan := planRequest(ev.AvailableTickets, req.TicketCount)
		result = &RequestResult{EventID: ev.ID, TicketIDs: []string{}, Queued: plan.Queue}

		if plan.Issue > 0 {
			tickets, err := e.issue(ctx, ev, req.RequesterID, plan.Issue, models.TicketSourceDirect)
			if err != nil {
				return err
			}
			result.TicketIDs = ticketIDs(tickets)
			assigned = e.assignment(ev.ID, req.RequesterID, tickets, models.TicketSourceDirect)
		}
		if plan.Queue > 0 {
			entry := &models.WaitingEntry{
				EventID:     ev.ID,
				RequesterID: req.RequesterID,
				TicketCount: plan.Queue,
				CreatedAt:   e.now(),
			}
			if err := e.store.CreateWaitingEntry(ctx, entry); err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
		}

		e.settleStatus(ev)
		if err := e.saveInventory(ctx, ev); err != nil {
			return err
		}

		switch {
		case plan.Queue == 0:
			result.Status = StatusBooked
		case plan.Issue == 0:
			result.Status = StatusQueued
		default:
			result.Status = StatusPartial
		}
		result.Available = ev.AvailableTickets
		result.EventStatus = ev.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.LogBooking(string(result.Status), req.EventID,
		fmt.Sprintf("%s issued=%d queued=%d available=%d", req.RequesterID, len(result.TicketIDs), result.Queued, result.Available))
	if assigned != nil {
		e.notifier.Dispatch(*assigned)
	}
	return result, nil
}

// ReleaseTicket frees one ticket and hands it to the head of the queue.
// requesterID must hold the ticket or own the event; anyone else is told the
// ticket does not exist.
func (e *Engine) ReleaseTicket(ctx context.Context, eventID, ticketID, requesterID string) (*ReleaseResult, error) {
	var (
		result  *ReleaseResult
		assigns []models.Assignment
	)
	err := e.withEventLock(ctx, eventID, func(ctx context.Context) error {
		ev, err := e.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}

		ticket, err := e.store.GetTicket(ctx, ticketID)
		if errors.Is(err, db.ErrNotFound) || (err == nil && ticket.EventID != eventID) {
			return fmt.Errorf("%w: %s", ErrTicketNotFound, ticketID)
		}
		if err != nil {
			return fmt.Errorf("get ticket: %w", err)
		}

		if ticket.HolderID != requesterID {
			owner, err := e.guard.IsOwner(ctx, eventID, requesterID)
			if err != nil {
				return fmt.Errorf("ownership check: %w", err)
			}
			if !owner {
				return fmt.Errorf("%w: %s", ErrTicketNotFound, ticketID)
			}
		}

		deleted, err := e.store.DeleteTicket(ctx, eventID, ticketID)
		if err != nil {
			return fmt.Errorf("delete ticket: %w", err)
		}
		if !deleted {
			return fmt.Errorf("%w: %s", ErrTicketNotFound, ticketID)
		}
		if err := e.credit(ev, 1); err != nil {
			return err
		}

		reassigned, drained, err := e.drain(ctx, ev, 1)
		if err != nil {
			return err
		}
		assigns = drained

		e.settleStatus(ev)
		if err := e.saveInventory(ctx, ev); err != nil {
			return err
		}

		result = &ReleaseResult{
			EventID:     eventID,
			TicketID:    ticketID,
			Reassigned:  reassigned,
			Available:   ev.AvailableTickets,
			EventStatus: ev.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.LogBooking("RELEASE", eventID,
		fmt.Sprintf("ticket %s by %s reassigned=%d available=%d", ticketID, requesterID, len(result.Reassigned), result.Available))
	e.dispatch(assigns)
	return result, nil
}

// ReleaseAllForRequester frees every ticket the requester holds for the
// event and drains the queue with all capacity left afterwards.
func (e *Engine) ReleaseAllForRequester(ctx context.Context, eventID, requesterID string) (*ReleaseAllResult, error) {
	return e.ReleaseAllOnBehalf(ctx, eventID, requesterID, requesterID)
}

// ReleaseAllOnBehalf is ReleaseAllForRequester performed by actorID, who
// must be the holder or the event owner.
func (e *Engine) ReleaseAllOnBehalf(ctx context.Context, eventID, requesterID, actorID string) (*ReleaseAllResult, error) {
	var (
		result  *ReleaseAllResult
		assigns []models.Assignment
	)
	err := e.withEventLock(ctx, eventID, func(ctx context.Context) error {
		ev, err := e.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}

		if actorID != requesterID {
			owner, err := e.guard.IsOwner(ctx, eventID, actorID)
			if err != nil {
				return fmt.Errorf("ownership check: %w", err)
			}
			if !owner {
				return ErrNotEventOwner
			}
		}

		released, err := e.store.DeleteTicketsByHolder(ctx, eventID, requesterID)
		if err != nil {
			return fmt.Errorf("delete tickets: %w", err)
		}
		if released == 0 {
			return ErrNoBookings
		}
		if err := e.credit(ev, released); err != nil {
			return err
		}

		reassigned, drained, err := e.drain(ctx, ev, ev.AvailableTickets)
		if err != nil {
			return err
		}
		assigns = drained

		e.settleStatus(ev)
		if err := e.saveInventory(ctx, ev); err != nil {
			return err
		}

		result = &ReleaseAllResult{
			EventID:     eventID,
			Released:    released,
			Reassigned:  reassigned,
			Available:   ev.AvailableTickets,
			EventStatus: ev.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.LogBooking("RELEASE_ALL", eventID,
		fmt.Sprintf("%s (by %s) released=%d reassigned=%d available=%d", requesterID, actorID, result.Released, len(result.Reassigned), result.Available))
	e.dispatch(assigns)
	return result, nil
}

// LeaveWaitlist drops the requester's unmet demand for the event.
func (e *Engine) LeaveWaitlist(ctx context.Context, eventID, requesterID string) (int, error) {
	var removed int
	err := e.withEventLock(ctx, eventID, func(ctx context.Context) error {
		if _, err := e.lockEvent(ctx, eventID); err != nil {
			return err
		}
		n, err := e.store.DeleteWaitingEntriesByRequester(ctx, eventID, requesterID)
		if err != nil {
			return fmt.Errorf("delete waiting entries: %w", err)
		}
		if n == 0 {
			return ErrNotWaiting
		}
		removed = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.logger.LogWaitlist("LEAVE", eventID, fmt.Sprintf("%s removed %d entr(ies)", requesterID, removed))
	return removed, nil
}

// withEventLock serializes fn against every other mutation of the event and
// runs it in one transaction. Lock acquisition and the transaction share one
// lockTimeout deadline.
func (e *Engine) withEventLock(ctx context.Context, eventID string, fn func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()

	unlock, err := e.locker.Acquire(opCtx, eventID)
	if err != nil {
		e.logger.LogLock("TIMEOUT", eventID, err.Error())
		if errors.Is(err, lock.ErrNotAcquired) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, eventID)
		}
		return fmt.Errorf("acquire event lock: %w", err)
	}
	defer unlock()
	e.logger.LogLock("ACQUIRED", eventID, "")

	err = e.store.WithTx(opCtx, fn)
	switch {
	case err == nil:
		return nil
	case db.IsLockTimeout(err):
		e.logger.LogLock("TIMEOUT", eventID, err.Error())
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	case errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		e.logger.LogLock("TIMEOUT", eventID, err.Error())
		return fmt.Errorf("%w: %s: %v", ErrLockTimeout, eventID, err)
	}
	return err
}

func (e *Engine) lockEvent(ctx context.Context, eventID string) (*models.Event, error) {
	ev, err := e.store.GetEventForUpdate(ctx, eventID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// admit decides whether new demand may be recorded against the event. A
// closed event with nothing left still takes waitlist entries; one closed
// with stock on hand was withheld by an operator.
func admit(ev *models.Event) error {
	switch ev.Status {
	case models.EventAllowingBookings:
		return nil
	case models.EventBookingsClosed:
		if ev.AvailableTickets == 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is %s", ErrBookingsClosed, ev.ID, ev.Status)
}

func (e *Engine) settleStatus(ev *models.Event) {
	switch {
	case ev.Status == models.EventAllowingBookings && ev.AvailableTickets == 0:
		ev.Status = models.EventBookingsClosed
	case ev.Status == models.EventBookingsClosed && ev.AvailableTickets > 0 && e.reopen == ReopenAuto:
		ev.Status = models.EventAllowingBookings
	}
}

// saveInventory writes the ledger and checks it against the tickets issued
// in the same transaction.
func (e *Engine) saveInventory(ctx context.Context, ev *models.Event) error {
	if err := e.store.UpdateEventInventory(ctx, ev); err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}
	issued, err := e.store.CountIssuedTickets(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("count issued tickets: %w", err)
	}
	if ev.AvailableTickets+issued != ev.TotalTickets {
		return fmt.Errorf("%w: %s available %d + issued %d != total %d",
			ErrLedgerMismatch, ev.ID, ev.AvailableTickets, issued, ev.TotalTickets)
	}
	return nil
}

func (e *Engine) credit(ev *models.Event, n int) error {
	if ev.AvailableTickets+n > ev.TotalTickets {
		return fmt.Errorf("%w: %s available %d + %d exceeds total %d",
			ErrLedgerMismatch, ev.ID, ev.AvailableTickets, n, ev.TotalTickets)
	}
	ev.AvailableTickets += n
	return nil
}

func (e *Engine) issue(ctx context.Context, ev *models.Event, holderID string, n int, source models.TicketSource) ([]models.Ticket, error) {
	if n > ev.AvailableTickets {
		return nil, fmt.Errorf("%w: %s issuing %d with %d available", ErrLedgerMismatch, ev.ID, n, ev.AvailableTickets)
	}
	now := e.now()
	tickets := make([]models.Ticket, n)
	for i := range tickets {
		tickets[i] = models.Ticket{
			ID:       e.newID(),
			EventID:  ev.ID,
			HolderID: holderID,
			Source:   source,
			IssuedAt: now,
		}
	}
	if err := e.store.CreateTickets(ctx, tickets); err != nil {
		return nil, fmt.Errorf("create tickets: %w", err)
	}
	ev.AvailableTickets -= n
	return tickets, nil
}

// drain hands up to budget units to the queue in FIFO order. Events in an
// operator-set terminal state keep their freed units.
func (e *Engine) drain(ctx context.Context, ev *models.Event, budget int) ([]Reassignment, []models.Assignment, error) {
	if ev.Status.Terminal() {
		return []Reassignment{}, nil, nil
	}

	queue, err := e.store.ListWaitingEntries(ctx, ev.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list waiting entries: %w", err)
	}

	reassigned := []Reassignment{}
	var assigns []models.Assignment
	for _, g := range planDrain(min(budget, ev.AvailableTickets), queue) {
		tickets, err := e.issue(ctx, ev, g.RequesterID, g.Count, models.TicketSourceWaitlist)
		if err != nil {
			return nil, nil, err
		}
		if g.Remaining == 0 {
			err = e.store.DeleteWaitingEntry(ctx, g.EntryID)
		} else {
			err = e.store.UpdateWaitingEntryCount(ctx, g.EntryID, g.Remaining)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("update waiting entry %d: %w", g.EntryID, err)
		}

		reassigned = append(reassigned, Reassignment{
			RequesterID: g.RequesterID,
			TicketIDs:   ticketIDs(tickets),
			StillQueued: g.Remaining,
		})
		assigns = append(assigns, *e.assignment(ev.ID, g.RequesterID, tickets, models.TicketSourceWaitlist))
		e.logger.LogWaitlist("DRAIN", ev.ID, fmt.Sprintf("%s received %d, %d still queued", g.RequesterID, g.Count, g.Remaining))
	}
	return reassigned, assigns, nil
}

func (e *Engine) assignment(eventID, holderID string, tickets []models.Ticket, source models.TicketSource) *models.Assignment {
	return &models.Assignment{
		EventID:    eventID,
		HolderID:   holderID,
		TicketIDs:  ticketIDs(tickets),
		Source:     source,
		AssignedAt: e.now(),
	}
}

func (e *Engine) dispatch(assigns []models.Assignment) {
	for _, a := range assigns {
		e.notifier.Dispatch(a)
	}
}

func ticketIDs(tickets []models.Ticket) []string {
	return lo.Map(tickets, func(t models.Ticket, _ int) string { return t.ID })
}
