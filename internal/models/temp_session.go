package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SessionAttendee is one attendee as captured at purchase time, before any
// permanent record exists.
type SessionAttendee struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	IsPrimary    bool   `json:"is_primary"`
	TicketTypeID string `json:"ticket_type_id,omitempty"`
}

// SessionLineItem is a ticket selection with the unit price snapshotted at
// selection time. Later price changes never affect an in-flight purchase.
type SessionLineItem struct {
	TicketTypeID string  `json:"ticket_type_id"`
	Title        string  `json:"title"`
	UnitPrice    float64 `json:"unit_price"`
	Quantity     int     `json:"quantity"`
}

// RegistrationDraft carries the free-form answers collected by the
// registration form. Persisted verbatim onto the Registration row.
type RegistrationDraft struct {
	AdditionalFields map[string]string `json:"additional_fields,omitempty"`
}

// OrderDraft is the order as it will be written once payment succeeds.
type OrderDraft struct {
	OrderNumber           string            `json:"order_number"`
	TotalAmount           float64           `json:"total_amount"`
	Currency              string            `json:"currency"`
	PaymentStatus         string            `json:"payment_status"`
	StripePaymentIntentID string            `json:"stripe_payment_intent_id,omitempty"`
	Items                 []SessionLineItem `json:"items"`
}

// TempSession holds everything about an unconfirmed purchase, keyed by an
// unguessable session id. Rows past ExpiresAt are treated as gone.
type TempSession struct {
	bun.BaseModel `bun:"table:temp_sessions"`

	SessionID         string            `bun:"session_id,pk" json:"session_id"`
	EventID           string            `bun:"event_id,notnull" json:"event_id"`
	ClubID            string            `bun:"club_id,nullzero" json:"club_id,omitempty"`
	Attendees         []SessionAttendee `bun:"attendees,type:jsonb" json:"attendees"`
	SelectedTickets   []SessionLineItem `bun:"selected_tickets,type:jsonb" json:"selected_tickets"`
	RegistrationDraft RegistrationDraft `bun:"registration_draft,type:jsonb" json:"registration_draft"`
	OrderDraft        OrderDraft        `bun:"order_draft,type:jsonb" json:"order_draft"`
	CreatedAt         time.Time         `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	ExpiresAt         time.Time         `bun:"expires_at,notnull" json:"expires_at"`
}

// SessionStatus is the cheap validity view returned to polling clients.
// It deliberately carries no attendee data.
type SessionStatus struct {
	SessionID string     `json:"session_id"`
	Valid     bool       `json:"valid"`
	Exists    bool       `json:"exists"`
	EventID   string     `json:"event_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
