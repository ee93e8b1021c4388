package notify

import (
	"context"
	"encoding/json"

	"ms-booking/internal/models"
	"ms-booking/internal/sse"
)

// Publisher is the slice of the Kafka producer the sink needs.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// KafkaSink publishes assignments keyed by event id, so one event's
// assignments stay ordered within a partition.
type KafkaSink struct {
	Publisher Publisher
	Topic     string
}

func (KafkaSink) Name() string { return "kafka" }

func (s KafkaSink) Notify(ctx context.Context, a models.Assignment) error {
	value, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.Publisher.Publish(ctx, s.Topic, a.EventID, value)
}

// StreamSink pushes assignments to connected SSE clients.
type StreamSink struct {
	Emitter *sse.AssignmentEmitter
}

func (StreamSink) Name() string { return "sse" }

func (s StreamSink) Notify(_ context.Context, a models.Assignment) error {
	s.Emitter.Emit(a)
	return nil
}
