package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Registration struct {
	bun.BaseModel `bun:"table:registrations,alias:registration"`

	ID               string            `bun:"id,pk" json:"id"`
	EventID          string            `bun:"event_id,notnull" json:"event_id"`
	ClubID           string            `bun:"club_id,nullzero" json:"club_id,omitempty"`
	PrimaryEmail     string            `bun:"primary_email,notnull" json:"primary_email"`
	Status           bool              `bun:"status,notnull,default:false" json:"status"`
	AdditionalFields map[string]string `bun:"additional_fields,type:jsonb" json:"additional_fields,omitempty"`
	CreatedAt        time.Time         `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`

	Attendees []*Attendee `bun:"rel:has-many,join:id=registration_id" json:"attendees,omitempty"`
	Order     *Order      `bun:"rel:has-one,join:id=registration_id" json:"order,omitempty"`
}

type Attendee struct {
	bun.BaseModel `bun:"table:attendees"`

	ID             string     `bun:"id,pk" json:"id"`
	RegistrationID string     `bun:"registration_id,notnull" json:"registration_id"`
	EventID        string     `bun:"event_id,notnull" json:"event_id"`
	TicketTypeID   string     `bun:"ticket_type_id,nullzero" json:"ticket_type_id,omitempty"`
	FirstName      string     `bun:"first_name,notnull" json:"first_name"`
	LastName       string     `bun:"last_name,notnull" json:"last_name"`
	Email          string     `bun:"email,notnull" json:"email"`
	Phone          string     `bun:"phone,nullzero" json:"phone,omitempty"`
	IsPrimary      bool       `bun:"is_primary,notnull,default:false" json:"is_primary"`
	QRUuid         string     `bun:"qr_uuid,notnull,unique" json:"qr_uuid"`
	CheckedIn      bool       `bun:"checked_in,notnull,default:false" json:"checked_in"`
	CheckedInAt    *time.Time `bun:"checked_in_at,nullzero" json:"checked_in_at,omitempty"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
