package stock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

// ErrInsufficientStock is returned when a decrement would take a ticket
// type below zero. The caller decides whether that is a hard failure (at
// intent creation) or an anomaly to log (after payment already settled).
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrTicketTypeNotFound is returned when the ticket type does not exist.
var ErrTicketTypeNotFound = errors.New("ticket type not found")

// Ledger owns every stock mutation. All decrements go through a single
// conditional UPDATE so concurrent purchases can never oversell: the database
// row lock serializes them and the predicate rejects the loser.
type Ledger struct {
	db     *bun.DB
	logger *logger.Logger
}

func NewLedger(db *bun.DB, log *logger.Logger) *Ledger {
	return &Ledger{db: db, logger: log}
}

// Decrement atomically takes qty units from the ticket type's stock.
// The condition current_stock >= qty is evaluated under the row lock, so a
// zero row count means there genuinely was not enough left.
func (l *Ledger) Decrement(ctx context.Context, db bun.IDB, ticketTypeID string, qty int) (*models.TicketType, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("invalid quantity %d", qty)
	}
	if db == nil {
		db = l.db
	}

	var tt models.TicketType
	err := db.NewUpdate().
		Model(&tt).
		Set("current_stock = current_stock - ?", qty).
		Where("id = ?", ticketTypeID).
		Where("current_stock >= ?", qty).
		Returning("*").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, l.classifyDecrementFailure(ctx, db, ticketTypeID)
		}
		return nil, fmt.Errorf("decrement stock for %s: %w", ticketTypeID, err)
	}

	l.logger.LogStock("DECREMENT", ticketTypeID, fmt.Sprintf("took %d, %d remaining", qty, tt.CurrentStock))
	return &tt, nil
}

// Restock returns qty units, capped at max_stock when one is set. Used by
// refund handling and manual corrections.
func (l *Ledger) Restock(ctx context.Context, db bun.IDB, ticketTypeID string, qty int) (*models.TicketType, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("invalid quantity %d", qty)
	}
	if db == nil {
		db = l.db
	}

	var tt models.TicketType
	err := db.NewUpdate().
		Model(&tt).
		Set("current_stock = current_stock + ?", qty).
		Where("id = ?", ticketTypeID).
		Where("max_stock IS NULL OR current_stock + ? <= max_stock", qty).
		Returning("*").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("restock %s by %d rejected: %w", ticketTypeID, qty, ErrTicketTypeNotFound)
		}
		return nil, fmt.Errorf("restock %s: %w", ticketTypeID, err)
	}

	l.logger.LogStock("RESTOCK", ticketTypeID, fmt.Sprintf("returned %d, %d available", qty, tt.CurrentStock))
	return &tt, nil
}

// Available reads the current stock level without locking.
func (l *Ledger) Available(ctx context.Context, ticketTypeID string) (int, error) {
	var tt models.TicketType
	err := l.db.NewSelect().
		Model(&tt).
		Column("current_stock").
		Where("id = ?", ticketTypeID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrTicketTypeNotFound
		}
		return 0, fmt.Errorf("read stock for %s: %w", ticketTypeID, err)
	}
	return tt.CurrentStock, nil
}

// classifyDecrementFailure distinguishes a missing ticket type from one that
// ran out. Both surface as zero updated rows.
func (l *Ledger) classifyDecrementFailure(ctx context.Context, db bun.IDB, ticketTypeID string) error {
	exists, err := db.NewSelect().
		Model((*models.TicketType)(nil)).
		Where("id = ?", ticketTypeID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("check ticket type %s: %w", ticketTypeID, err)
	}
	if !exists {
		return ErrTicketTypeNotFound
	}
	return ErrInsufficientStock
}
