package stock_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/stock"
)

func setupTestDB(t *testing.T) (*stock.Ledger, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = bunDB.NewCreateTable().Model((*models.TicketType)(nil)).Exec(context.Background())
	if err != nil {
		t.Fatalf("Failed to create ticket_types table: %v", err)
	}

	return stock.NewLedger(bunDB, logger.NewLogger()), bunDB
}

func seedTicketType(t *testing.T, bunDB *bun.DB, id string, current int, max *int) {
	tt := models.TicketType{
		ID:           id,
		EventID:      "event-1",
		Title:        "General Admission",
		Price:        25.0,
		Currency:     "usd",
		CurrentStock: current,
		MaxStock:     max,
	}
	_, err := bunDB.NewInsert().Model(&tt).Exec(context.Background())
	assert.NoError(t, err)
}

func TestDecrementHappyPath(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()

	seedTicketType(t, bunDB, "tt-1", 10, nil)

	tt, err := ledger.Decrement(context.Background(), nil, "tt-1", 3)
	assert.NoError(t, err)
	assert.Equal(t, 7, tt.CurrentStock)

	remaining, err := ledger.Available(context.Background(), "tt-1")
	assert.NoError(t, err)
	assert.Equal(t, 7, remaining)
}

func TestDecrementInsufficientStock(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()

	seedTicketType(t, bunDB, "tt-1", 2, nil)

	_, err := ledger.Decrement(context.Background(), nil, "tt-1", 3)
	assert.ErrorIs(t, err, stock.ErrInsufficientStock)

	// The failed decrement must not have touched the row.
	remaining, err := ledger.Available(context.Background(), "tt-1")
	assert.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestDecrementUnknownTicketType(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()

	_, err := ledger.Decrement(context.Background(), nil, "missing", 1)
	assert.ErrorIs(t, err, stock.ErrTicketTypeNotFound)
}

func TestDecrementRejectsNonPositiveQuantity(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()

	seedTicketType(t, bunDB, "tt-1", 5, nil)

	_, err := ledger.Decrement(context.Background(), nil, "tt-1", 0)
	assert.Error(t, err)

	_, err = ledger.Decrement(context.Background(), nil, "tt-1", -1)
	assert.Error(t, err)
}

func TestDecrementExhaustionNeverOversells(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()

	seedTicketType(t, bunDB, "tt-1", 5, nil)

	// Take the stock down in single units until it runs dry.
	granted := 0
	for i := 0; i < 10; i++ {
		_, err := ledger.Decrement(context.Background(), nil, "tt-1", 1)
		if err == nil {
			granted++
		} else {
			assert.ErrorIs(t, err, stock.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 5, granted)

	remaining, err := ledger.Available(context.Background(), "tt-1")
	assert.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestRestockRespectsMaxStock(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()

	max := 10
	seedTicketType(t, bunDB, "tt-1", 8, &max)

	tt, err := ledger.Restock(context.Background(), nil, "tt-1", 2)
	assert.NoError(t, err)
	assert.Equal(t, 10, tt.CurrentStock)

	// Going over the cap is rejected.
	_, err = ledger.Restock(context.Background(), nil, "tt-1", 1)
	assert.Error(t, err)

	remaining, err := ledger.Available(context.Background(), "tt-1")
	assert.NoError(t, err)
	assert.Equal(t, 10, remaining)
}

func TestRestockUncapped(t *testing.T) {
	ledger, bunDB := setupTestDB(t)
	defer bunDB.Close()

	seedTicketType(t, bunDB, "tt-1", 0, nil)

	tt, err := ledger.Restock(context.Background(), nil, "tt-1", 4)
	assert.NoError(t, err)
	assert.Equal(t, 4, tt.CurrentStock)
}
