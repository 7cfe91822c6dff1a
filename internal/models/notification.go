package models

// TicketEmailRecipient is one attendee's share of a confirmation email.
type TicketEmailRecipient struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	QRUuid      string `json:"qr_uuid"`
	TicketTitle string `json:"ticket_title"`
}

// TicketEmailMessage is the payload published after a registration is
// materialized. The email worker consumes it and sends one ticket email per
// recipient.
type TicketEmailMessage struct {
	RegistrationID string                 `json:"registration_id"`
	EventID        string                 `json:"event_id"`
	EventTitle     string                 `json:"event_title"`
	OrderNumber    string                 `json:"order_number"`
	Recipients     []TicketEmailRecipient `json:"recipients"`
}
