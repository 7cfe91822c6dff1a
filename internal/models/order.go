package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusFree     = "free"
	PaymentStatusRefunded = "refunded"
)

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID                    string            `bun:"id,pk" json:"id"`
	OrderNumber           string            `bun:"order_number,notnull,unique" json:"order_number"`
	RegistrationID        string            `bun:"registration_id,notnull" json:"registration_id"`
	EventID               string            `bun:"event_id,notnull" json:"event_id"`
	TotalAmount           float64           `bun:"total_amount,notnull" json:"total_amount"`
	Currency              string            `bun:"currency,notnull" json:"currency"`
	PaymentStatus         string            `bun:"payment_status,notnull" json:"payment_status"`
	StripePaymentIntentID string            `bun:"stripe_payment_intent_id,nullzero" json:"stripe_payment_intent_id,omitempty"`
	Items                 []SessionLineItem `bun:"items,type:jsonb" json:"items"`
	CreatedAt             time.Time         `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	PaidAt                *time.Time        `bun:"paid_at,nullzero" json:"paid_at,omitempty"`
}
