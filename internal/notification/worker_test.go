package notification_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/notification"
	"ms-registration/internal/qr"
)

type MockTicketSender struct {
	mock.Mock
}

func (m *MockTicketSender) SendTicket(to, name, eventTitle, orderNumber string, qrPNG []byte) error {
	args := m.Called(to, name, eventTitle, orderNumber, qrPNG)
	return args.Error(0)
}

func sampleMessage() models.TicketEmailMessage {
	return models.TicketEmailMessage{
		RegistrationID: "reg-1",
		EventID:        "event-1",
		EventTitle:     "GopherCon",
		OrderNumber:    "ORD-1700000000000",
		Recipients: []models.TicketEmailRecipient{
			{Name: "Ada Lovelace", Email: "ada@example.com", QRUuid: "qr-1", TicketTitle: "General Admission"},
			{Name: "Grace Hopper", Email: "grace@example.com", QRUuid: "qr-2", TicketTitle: "General Admission"},
		},
	}
}

func TestHandleSendsOneEmailPerRecipient(t *testing.T) {
	mailer := new(MockTicketSender)
	worker := notification.NewWorker(mailer, qr.NewGenerator("test-secret"), logger.NewLogger())

	mailer.On("SendTicket", "ada@example.com", "Ada Lovelace", "GopherCon", "ORD-1700000000000", mock.Anything).Return(nil)
	mailer.On("SendTicket", "grace@example.com", "Grace Hopper", "GopherCon", "ORD-1700000000000", mock.Anything).Return(nil)

	err := worker.Handle(sampleMessage())
	assert.NoError(t, err)
	mailer.AssertExpectations(t)
}

func TestHandleContinuesPastFailedRecipient(t *testing.T) {
	mailer := new(MockTicketSender)
	worker := notification.NewWorker(mailer, qr.NewGenerator("test-secret"), logger.NewLogger())

	boom := errors.New("mailbox full")
	mailer.On("SendTicket", "ada@example.com", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(boom)
	mailer.On("SendTicket", "grace@example.com", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := worker.Handle(sampleMessage())
	assert.ErrorIs(t, err, boom)

	// The second recipient still got their ticket.
	mailer.AssertNumberOfCalls(t, "SendTicket", 2)
}
