package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is the read model the reconciliation flow needs: currency context
// and the registration counter. Full event CRUD lives in another service.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID                string    `bun:"id,pk" json:"id"`
	ClubID            string    `bun:"club_id,notnull" json:"club_id"`
	Title             string    `bun:"title,notnull" json:"title"`
	Currency          string    `bun:"currency,notnull" json:"currency"`
	RegistrationCount int       `bun:"registration_count,notnull,default:0" json:"registration_count"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
