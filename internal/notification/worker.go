package notification

import (
	"fmt"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/qr"
)

type TicketSender interface {
	SendTicket(to, name, eventTitle, orderNumber string, qrPNG []byte) error
}

// Worker turns ticket-email messages into sent emails, one per recipient.
// A failure for one recipient does not block the others.
type Worker struct {
	mailer TicketSender
	qrGen  *qr.Generator
	logger *logger.Logger
}

func NewWorker(mailer TicketSender, qrGen *qr.Generator, log *logger.Logger) *Worker {
	return &Worker{mailer: mailer, qrGen: qrGen, logger: log}
}

// Handle processes one message from the ticket-email topic.
func (w *Worker) Handle(msg models.TicketEmailMessage) error {
	var firstErr error
	for _, recipient := range msg.Recipients {
		payload := qr.TicketPayload{
			QRUuid:         recipient.QRUuid,
			RegistrationID: msg.RegistrationID,
			EventID:        msg.EventID,
			AttendeeName:   recipient.Name,
			TicketTitle:    recipient.TicketTitle,
		}
		qrPNG, err := w.qrGen.GenerateEncryptedQR(payload)
		if err != nil {
			w.logger.Error("EMAIL", fmt.Sprintf("QR generation failed for %s: %v", recipient.Email, err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if err := w.mailer.SendTicket(recipient.Email, recipient.Name, msg.EventTitle, msg.OrderNumber, qrPNG); err != nil {
			w.logger.Error("EMAIL", fmt.Sprintf("Send failed for %s: %v", recipient.Email, err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
