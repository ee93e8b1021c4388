package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

// Start consumes assignments until ctx is cancelled. A message is committed
// once the handler returns, whatever its result; a failed notification is
// logged and not redelivered.
func (c *Consumer) Start(ctx context.Context, handler func(ctx context.Context, a models.Assignment) error) error {
	c.logger.LogKafka("CONSUME", c.reader.Config().Topic, "consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		assignment, err := DecodeAssignment(msg.Value)
		if err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Skipping malformed message at offset %d: %v", msg.Offset, err))
		} else if err := handler(ctx, assignment); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Handler failed for event %s holder %s: %v", assignment.EventID, assignment.HolderID, err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Commit failed at offset %d: %v", msg.Offset, err))
		}
	}
}

// DecodeAssignment parses and checks one message value.
func DecodeAssignment(value []byte) (models.Assignment, error) {
	var a models.Assignment
	if err := json.Unmarshal(value, &a); err != nil {
		return a, err
	}
	if a.EventID == "" || a.HolderID == "" || len(a.TicketIDs) == 0 {
		return a, errors.New("assignment is missing event, holder or tickets")
	}
	return a, nil
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
