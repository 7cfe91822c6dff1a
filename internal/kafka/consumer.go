package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewConsumer creates a Kafka consumer for the given topic and group.
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

// Start consumes ticket-email messages until the context is cancelled.
// Handler errors are logged and the message is skipped; the worker never
// blocks the partition on one bad email.
func (c *Consumer) Start(ctx context.Context, handler func(msg models.TicketEmailMessage) error) {
	c.logger.LogKafka("START", c.reader.Config().Topic, "consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.LogKafka("STOP", c.reader.Config().Topic, "consumer stopped")
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		var email models.TicketEmailMessage
		if err := json.Unmarshal(msg.Value, &email); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to unmarshal ticket email message: %v", err))
			continue
		}

		c.logger.LogKafka("RECEIVE", c.reader.Config().Topic, fmt.Sprintf("ticket email for registration %s", email.RegistrationID))
		if err := handler(email); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Handler failed for registration %s: %v", email.RegistrationID, err))
		}
	}
}

// Close gracefully shuts down the Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
