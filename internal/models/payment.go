package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ProcessedIntent records a payment intent that has already been turned into
// a registration. The primary key doubles as the idempotency guard: a second
// materialization attempt for the same intent fails the insert and backs off.
type ProcessedIntent struct {
	bun.BaseModel `bun:"table:processed_intents"`

	IntentID       string    `bun:"intent_id,pk" json:"intent_id"`
	RegistrationID string    `bun:"registration_id,notnull" json:"registration_id"`
	ProcessedAt    time.Time `bun:"processed_at,notnull,default:current_timestamp" json:"processed_at"`
}

// SecureIntentRequest is the body for creating a payment intent. Amounts are
// recomputed server side from the session; the client never supplies one.
type SecureIntentRequest struct {
	SessionID string `json:"session_id"`
}

// IntentResult is what the client needs to drive the Stripe confirmation
// flow. Free is set when no charge was necessary and the registration was
// completed synchronously.
type IntentResult struct {
	IntentID       string  `json:"intent_id"`
	ClientSecret   string  `json:"client_secret,omitempty"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	Free           bool    `json:"free"`
	RegistrationID string  `json:"registration_id,omitempty"`
}

// PaymentStatusResult is returned by the polling endpoint. It reports Stripe's
// view of the intent plus whether a registration has been materialized yet.
type PaymentStatusResult struct {
	IntentID       string `json:"intent_id"`
	Status         string `json:"status"`
	Processed      bool   `json:"processed"`
	RegistrationID string `json:"registration_id,omitempty"`
}
