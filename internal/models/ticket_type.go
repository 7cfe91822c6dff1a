package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TicketType is one sellable ticket category of an event. CurrentStock is
// the number of units still available; MaxStock nil means unlimited.
type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	ID           string    `bun:"id,pk" json:"id"`
	EventID      string    `bun:"event_id,notnull" json:"event_id"`
	Title        string    `bun:"title,notnull" json:"title"`
	Description  string    `bun:"description,nullzero" json:"description,omitempty"`
	Price        float64   `bun:"price,notnull" json:"price"`
	Currency     string    `bun:"currency,notnull" json:"currency"`
	CurrentStock int       `bun:"current_stock,notnull" json:"current_stock"`
	MaxStock     *int      `bun:"max_stock,nullzero" json:"max_stock,omitempty"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
