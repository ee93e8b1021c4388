package sse

import (
	"context"
	"sync"

	"ms-booking/internal/models"
)

// AssignmentEmitter fans ticket assignments out to connected SSE clients,
// keyed by holder and by event.
type AssignmentEmitter struct {
	// Holder channel clients map - key: holderID, value: slice of client channels
	holderClients map[string][]chan models.Assignment
	holderMutex   sync.RWMutex

	// Event channel clients map - key: eventID, value: slice of client channels
	eventClients map[string][]chan models.Assignment
	eventMutex   sync.RWMutex
}

func NewAssignmentEmitter() *AssignmentEmitter {
	return &AssignmentEmitter{
		holderClients: make(map[string][]chan models.Assignment),
		eventClients:  make(map[string][]chan models.Assignment),
	}
}

// SubscribeToHolder streams assignments made to one user. The channel is
// closed once ctx is done.
func (e *AssignmentEmitter) SubscribeToHolder(ctx context.Context, holderID string) <-chan models.Assignment {
	return subscribe(ctx, &e.holderMutex, e.holderClients, holderID)
}

// SubscribeToEvent streams every assignment made for one event.
func (e *AssignmentEmitter) SubscribeToEvent(ctx context.Context, eventID string) <-chan models.Assignment {
	return subscribe(ctx, &e.eventMutex, e.eventClients, eventID)
}

// Emit never blocks: a client whose buffer is full misses the update.
func (e *AssignmentEmitter) Emit(a models.Assignment) {
	broadcast(&e.holderMutex, e.holderClients, a.HolderID, a)
	broadcast(&e.eventMutex, e.eventClients, a.EventID, a)
}

func (e *AssignmentEmitter) HolderClientCount(holderID string) int {
	e.holderMutex.RLock()
	defer e.holderMutex.RUnlock()
	return len(e.holderClients[holderID])
}

func (e *AssignmentEmitter) EventClientCount(eventID string) int {
	e.eventMutex.RLock()
	defer e.eventMutex.RUnlock()
	return len(e.eventClients[eventID])
}

func subscribe(ctx context.Context, mu *sync.RWMutex, clients map[string][]chan models.Assignment, key string) <-chan models.Assignment {
	clientChan := make(chan models.Assignment, 10)

	mu.Lock()
	clients[key] = append(clients[key], clientChan)
	mu.Unlock()

	go func() {
		<-ctx.Done()
		mu.Lock()
		defer mu.Unlock()
		list := clients[key]
		for i, ch := range list {
			if ch == clientChan {
				clients[key] = append(list[:i:i], list[i+1:]...)
				close(clientChan)
				break
			}
		}
		if len(clients[key]) == 0 {
			delete(clients, key)
		}
	}()

	return clientChan
}

// broadcast holds the read lock while sending so a concurrent unsubscribe
// cannot close a channel mid-send.
func broadcast(mu *sync.RWMutex, clients map[string][]chan models.Assignment, key string, a models.Assignment) {
	mu.RLock()
	defer mu.RUnlock()
	for _, clientChan := range clients[key] {
		select {
		case clientChan <- a:
		default:
		}
	}
}
