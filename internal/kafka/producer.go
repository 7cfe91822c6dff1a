package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

type Producer struct {
	Writer *kafka.Writer
	logger *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer, logger: log}
}

// PublishTicketEmail streams a confirmation-email request to the email
// worker. Keyed by registration id so retries for the same registration land
// on the same partition.
func (p *Producer) PublishTicketEmail(ctx context.Context, msg models.TicketEmailMessage) error {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	p.logger.LogKafka("PUBLISH", p.Writer.Topic, fmt.Sprintf("ticket email for registration %s (%d recipients)", msg.RegistrationID, len(msg.Recipients)))

	return p.Writer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(msg.RegistrationID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
