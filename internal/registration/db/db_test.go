package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	regdb "ms-registration/internal/registration/db"
)

func setupTestDB(t *testing.T) (*regdb.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	for _, model := range []interface{}{
		(*models.Registration)(nil),
		(*models.Attendee)(nil),
		(*models.Order)(nil),
		(*models.ProcessedIntent)(nil),
		(*models.Event)(nil),
		(*models.TicketType)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(context.Background()); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	return regdb.NewDB(bunDB, logger.NewLogger()), bunDB
}

func sampleBundle(intentID string) (*models.Registration, []*models.Attendee, *models.Order) {
	regID := uuid.New().String()
	reg := &models.Registration{
		ID:           regID,
		EventID:      "event-1",
		ClubID:       "club-1",
		PrimaryEmail: "ada@example.com",
		Status:       true,
		CreatedAt:    time.Now().UTC(),
	}
	attendees := []*models.Attendee{
		{
			ID:             uuid.New().String(),
			RegistrationID: regID,
			EventID:        "event-1",
			TicketTypeID:   "tt-1",
			FirstName:      "Ada",
			LastName:       "Lovelace",
			Email:          "ada@example.com",
			IsPrimary:      true,
			QRUuid:         uuid.New().String(),
			CreatedAt:      time.Now().UTC(),
		},
	}
	order := &models.Order{
		ID:                    uuid.New().String(),
		OrderNumber:           "ORD-" + uuid.New().String()[:8],
		RegistrationID:        regID,
		EventID:               "event-1",
		TotalAmount:           25.0,
		Currency:              "usd",
		PaymentStatus:         models.PaymentStatusPaid,
		StripePaymentIntentID: intentID,
		CreatedAt:             time.Now().UTC(),
	}
	return reg, attendees, order
}

func TestCreateRegistrationBundle(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	reg, attendees, order := sampleBundle("pi_1")
	err := d.CreateRegistrationBundle(context.Background(), "pi_1", reg, attendees, order)
	assert.NoError(t, err)

	got, err := d.GetRegistrationWithAttendees(context.Background(), reg.ID)
	assert.NoError(t, err)
	assert.True(t, got.Status)
	assert.Len(t, got.Attendees, 1)
	assert.NotNil(t, got.Order)
	assert.Equal(t, models.PaymentStatusPaid, got.Order.PaymentStatus)

	regID, err := d.GetRegistrationByIntent(context.Background(), "pi_1")
	assert.NoError(t, err)
	assert.Equal(t, reg.ID, regID)
}

func TestCreateRegistrationBundleIsIdempotent(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	reg1, attendees1, order1 := sampleBundle("pi_1")
	err := d.CreateRegistrationBundle(context.Background(), "pi_1", reg1, attendees1, order1)
	assert.NoError(t, err)

	// A second bundle for the same intent must be rejected wholesale.
	reg2, attendees2, order2 := sampleBundle("pi_1")
	err = d.CreateRegistrationBundle(context.Background(), "pi_1", reg2, attendees2, order2)
	assert.ErrorIs(t, err, regdb.ErrAlreadyProcessed)

	// Nothing from the losing attempt may have leaked through.
	count, err := bunDB.NewSelect().Model((*models.Registration)(nil)).Count(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = bunDB.NewSelect().Model((*models.Order)(nil)).Count(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = d.GetRegistrationWithAttendees(context.Background(), reg2.ID)
	assert.ErrorIs(t, err, regdb.ErrRegistrationNotFound)
}

func TestGetRegistrationByIntentMissing(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	_, err := d.GetRegistrationByIntent(context.Background(), "pi_unknown")
	assert.ErrorIs(t, err, regdb.ErrRegistrationNotFound)
}

func TestFindRegistrationByEmail(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	reg, attendees, order := sampleBundle("pi_1")
	err := d.CreateRegistrationBundle(context.Background(), "pi_1", reg, attendees, order)
	assert.NoError(t, err)

	// Case-insensitive match on the same event.
	found, err := d.FindRegistrationByEmail(context.Background(), "event-1", "ADA@example.com")
	assert.NoError(t, err)
	assert.Equal(t, reg.ID, found.ID)

	// Same email on another event is fine.
	_, err = d.FindRegistrationByEmail(context.Background(), "event-2", "ada@example.com")
	assert.ErrorIs(t, err, regdb.ErrRegistrationNotFound)
}

func TestIncrementRegistrationCount(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	event := models.Event{ID: "event-1", ClubID: "club-1", Title: "GopherCon", Currency: "usd"}
	_, err := bunDB.NewInsert().Model(&event).Exec(context.Background())
	assert.NoError(t, err)

	err = d.IncrementRegistrationCount(context.Background(), "event-1", 1)
	assert.NoError(t, err)
	err = d.IncrementRegistrationCount(context.Background(), "event-1", 2)
	assert.NoError(t, err)

	got, err := d.GetEventByID(context.Background(), "event-1")
	assert.NoError(t, err)
	assert.Equal(t, 3, got.RegistrationCount)

	err = d.IncrementRegistrationCount(context.Background(), "event-missing", 1)
	assert.ErrorIs(t, err, regdb.ErrEventNotFound)
}

func TestCheckInAttendee(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	reg, attendees, order := sampleBundle("pi_1")
	err := d.CreateRegistrationBundle(context.Background(), "pi_1", reg, attendees, order)
	assert.NoError(t, err)
	qrUuid := attendees[0].QRUuid

	checked, err := d.CheckInAttendee(context.Background(), qrUuid)
	assert.NoError(t, err)
	assert.True(t, checked.CheckedIn)
	assert.NotNil(t, checked.CheckedInAt)

	// Scanning the same ticket again is rejected but still identifies the
	// attendee for the scanner UI.
	again, err := d.CheckInAttendee(context.Background(), qrUuid)
	assert.ErrorIs(t, err, regdb.ErrAlreadyCheckedIn)
	assert.Equal(t, checked.ID, again.ID)

	_, err = d.CheckInAttendee(context.Background(), "unknown-qr")
	assert.ErrorIs(t, err, regdb.ErrAttendeeNotFound)
}

func TestDeleteStalePendingRegistrations(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	// A stale pending registration, well past the cutoff.
	staleReg, staleAttendees, staleOrder := sampleBundle("pi_stale")
	staleOrder.PaymentStatus = models.PaymentStatusPending
	err := d.CreateRegistrationBundle(context.Background(), "pi_stale", staleReg, staleAttendees, staleOrder)
	assert.NoError(t, err)
	_, err = bunDB.NewUpdate().
		Model((*models.Order)(nil)).
		Set("created_at = ?", time.Now().UTC().Add(-48*time.Hour)).
		Where("registration_id = ?", staleReg.ID).
		Exec(context.Background())
	assert.NoError(t, err)

	// A recent paid registration that must survive.
	paidReg, paidAttendees, paidOrder := sampleBundle("pi_paid")
	err = d.CreateRegistrationBundle(context.Background(), "pi_paid", paidReg, paidAttendees, paidOrder)
	assert.NoError(t, err)

	removed, err := d.DeleteStalePendingRegistrations(context.Background(), time.Now().UTC().Add(-24*time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = d.GetRegistrationWithAttendees(context.Background(), staleReg.ID)
	assert.ErrorIs(t, err, regdb.ErrRegistrationNotFound)

	// The guard row went with it, so a late webhook could still record a
	// fresh registration for the intent.
	_, err = d.GetRegistrationByIntent(context.Background(), "pi_stale")
	assert.ErrorIs(t, err, regdb.ErrRegistrationNotFound)

	survivor, err := d.GetRegistrationWithAttendees(context.Background(), paidReg.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, survivor.Order.PaymentStatus)

	// Second sweep is a no-op.
	removed, err = d.DeleteStalePendingRegistrations(context.Background(), time.Now().UTC().Add(-24*time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 0, removed)
}
