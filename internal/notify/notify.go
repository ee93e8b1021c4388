package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// Sink delivers one assignment somewhere. Implementations must be safe for
// concurrent use.
type Sink interface {
	Name() string
	Notify(ctx context.Context, a models.Assignment) error
}

// Dispatcher hands committed assignments to every sink without blocking
// the caller. Failures are logged and dropped.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  *logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(log *logger.Logger, timeout time.Duration, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:   sinks,
		timeout: timeout,
		logger:  log,
	}
}

func (d *Dispatcher) Dispatch(a models.Assignment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("NOTIFY", fmt.Sprintf("Dispatcher closed, dropping assignment for %s on %s", a.HolderID, a.EventID))
		return
	}

	for _, sink := range d.sinks {
		d.wg.Add(1)
		go d.deliver(sink, a)
	}
}

func (d *Dispatcher) deliver(sink Sink, a models.Assignment) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("NOTIFY", fmt.Sprintf("Sink %s panicked: %v", sink.Name(), r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := sink.Notify(ctx, a); err != nil {
		d.logger.Error("NOTIFY", fmt.Sprintf("Sink %s failed for %s on %s: %v", sink.Name(), a.HolderID, a.EventID, err))
		return
	}
	d.logger.LogNotify(sink.Name(), a.EventID, fmt.Sprintf("%d ticket(s) to %s", len(a.TicketIDs), a.HolderID))
}

// Close stops accepting work and waits for in-flight deliveries or ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSink only writes the assignment to the service log.
type LogSink struct {
	Logger *logger.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Notify(_ context.Context, a models.Assignment) error {
	s.Logger.LogBooking("ASSIGNED", a.EventID, fmt.Sprintf("%s <- [%s] (%s)", a.HolderID, strings.Join(a.TicketIDs, ","), a.Source))
	return nil
}
