package sse

import (
	"context"
	"testing"
	"time"

	"ms-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmit_RoutesByHolderAndEvent(t *testing.T) {
	e := NewAssignmentEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := e.SubscribeToHolder(ctx, "alice")
	bob := e.SubscribeToHolder(ctx, "bob")
	event := e.SubscribeToEvent(ctx, "e1")

	e.Emit(models.Assignment{EventID: "e1", HolderID: "alice", TicketIDs: []string{"t1"}})

	select {
	case a := <-alice:
		assert.Equal(t, []string{"t1"}, a.TicketIDs)
	case <-time.After(time.Second):
		t.Fatal("alice did not receive assignment")
	}
	select {
	case a := <-event:
		assert.Equal(t, "alice", a.HolderID)
	case <-time.After(time.Second):
		t.Fatal("event subscriber did not receive assignment")
	}
	select {
	case <-bob:
		t.Fatal("bob should not receive alice's assignment")
	default:
	}
}

func TestEmit_DropsWhenBufferFull(t *testing.T) {
	e := NewAssignmentEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := e.SubscribeToHolder(ctx, "alice")

	for i := 0; i < 25; i++ {
		e.Emit(models.Assignment{EventID: "e1", HolderID: "alice"})
	}
	assert.Len(t, ch, 10)
}

func TestSubscribe_ClosesOnCancel(t *testing.T) {
	e := NewAssignmentEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	ch := e.SubscribeToEvent(ctx, "e1")
	require.Equal(t, 1, e.EventClientCount("e1"))

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	assert.Eventually(t, func() bool { return e.EventClientCount("e1") == 0 }, time.Second, 5*time.Millisecond)

	// emitting after unsubscribe must not panic
	e.Emit(models.Assignment{EventID: "e1", HolderID: "alice"})
}
