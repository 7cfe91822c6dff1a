package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

var (
	// ErrAlreadyProcessed means a registration for this payment intent
	// already exists. The insert into processed_intents is the single
	// source of truth; two writers racing on the same intent cannot both
	// get past it.
	ErrAlreadyProcessed = errors.New("payment intent already processed")

	ErrRegistrationNotFound = errors.New("registration not found")
	ErrEventNotFound        = errors.New("event not found")
	ErrAttendeeNotFound     = errors.New("attendee not found")
	ErrAlreadyCheckedIn     = errors.New("attendee already checked in")
)

type DB struct {
	Bun    *bun.DB
	Logger *logger.Logger
}

func NewDB(bunDB *bun.DB, log *logger.Logger) *DB {
	return &DB{Bun: bunDB, Logger: log}
}

// isUniqueViolation recognizes a duplicate-key failure from postgres and
// from the sqlite driver the tests run on.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

// CreateRegistrationBundle writes the registration, its attendees, its order
// and the processed-intent guard row in one transaction. If the guard insert
// hits a duplicate the whole transaction rolls back and ErrAlreadyProcessed
// is returned; the caller treats that as a successful no-op.
func (d *DB) CreateRegistrationBundle(ctx context.Context, intentID string, reg *models.Registration, attendees []*models.Attendee, order *models.Order) error {
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		guard := models.ProcessedIntent{
			IntentID:       intentID,
			RegistrationID: reg.ID,
			ProcessedAt:    time.Now().UTC(),
		}
		if _, err := tx.NewInsert().Model(&guard).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyProcessed
			}
			return fmt.Errorf("insert processed intent %s: %w", intentID, err)
		}

		if _, err := tx.NewInsert().Model(reg).Exec(ctx); err != nil {
			return fmt.Errorf("insert registration %s: %w", reg.ID, err)
		}
		if len(attendees) > 0 {
			if _, err := tx.NewInsert().Model(&attendees).Exec(ctx); err != nil {
				return fmt.Errorf("insert attendees for %s: %w", reg.ID, err)
			}
		}
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return fmt.Errorf("insert order %s: %w", order.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.Logger.LogDatabase("INSERT", "registrations", fmt.Sprintf("registration %s with %d attendees for intent %s", reg.ID, len(attendees), intentID))
	return nil
}

// GetRegistrationWithAttendees loads a registration together with its
// attendees and order.
func (d *DB) GetRegistrationWithAttendees(ctx context.Context, registrationID string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Relation("Attendees").
		Relation("Order").
		Where("registration.id = ?", registrationID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get registration %s: %w", registrationID, err)
	}
	return &reg, nil
}

// GetRegistrationByIntent resolves a payment intent to the registration it
// produced, if any. Used by the status polling endpoint.
func (d *DB) GetRegistrationByIntent(ctx context.Context, intentID string) (string, error) {
	var guard models.ProcessedIntent
	err := d.Bun.NewSelect().
		Model(&guard).
		Where("intent_id = ?", intentID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRegistrationNotFound
		}
		return "", fmt.Errorf("lookup intent %s: %w", intentID, err)
	}
	return guard.RegistrationID, nil
}

// FindRegistrationByEmail checks whether the event already has a registration
// under this primary email.
func (d *DB) FindRegistrationByEmail(ctx context.Context, eventID, email string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("event_id = ?", eventID).
		Where("lower(primary_email) = lower(?)", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("find registration by email for event %s: %w", eventID, err)
	}
	return &reg, nil
}

func (d *DB) GetEventByID(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", eventID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return &event, nil
}

func (d *DB) GetTicketTypesByEvent(ctx context.Context, eventID string) ([]models.TicketType, error) {
	var types []models.TicketType
	err := d.Bun.NewSelect().
		Model(&types).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ticket types for event %s: %w", eventID, err)
	}
	return types, nil
}

// IncrementRegistrationCount bumps the event's denormalized counter.
func (d *DB) IncrementRegistrationCount(ctx context.Context, eventID string, delta int) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("registration_count = registration_count + ?", delta).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("increment registration count for %s: %w", eventID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrEventNotFound
	}
	return nil
}

// GetAttendeeByQRUuid resolves a scanned ticket to its attendee.
func (d *DB) GetAttendeeByQRUuid(ctx context.Context, qrUuid string) (*models.Attendee, error) {
	var attendee models.Attendee
	err := d.Bun.NewSelect().
		Model(&attendee).
		Where("qr_uuid = ?", qrUuid).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttendeeNotFound
		}
		return nil, fmt.Errorf("get attendee by qr %s: %w", qrUuid, err)
	}
	return &attendee, nil
}

// CheckInAttendee marks an attendee as arrived. The conditional update makes
// a second scan of the same ticket fail cleanly.
func (d *DB) CheckInAttendee(ctx context.Context, qrUuid string) (*models.Attendee, error) {
	now := time.Now().UTC()
	res, err := d.Bun.NewUpdate().
		Model((*models.Attendee)(nil)).
		Set("checked_in = ?", true).
		Set("checked_in_at = ?", now).
		Where("qr_uuid = ?", qrUuid).
		Where("checked_in = ?", false).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("check in attendee %s: %w", qrUuid, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		attendee, err := d.GetAttendeeByQRUuid(ctx, qrUuid)
		if err != nil {
			return nil, err
		}
		return attendee, ErrAlreadyCheckedIn
	}
	return d.GetAttendeeByQRUuid(ctx, qrUuid)
}

// DeleteStalePendingRegistrations removes registrations whose order never
// left pending. Attendees, orders and guard rows go with them so a later
// webhook for the same intent can still be recorded cleanly if it ever
// arrives.
func (d *DB) DeleteStalePendingRegistrations(ctx context.Context, before time.Time) (int, error) {
	var staleIDs []string
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Column("registration_id").
		Where("payment_status = ?", models.PaymentStatusPending).
		Where("created_at < ?", before).
		Scan(ctx, &staleIDs)
	if err != nil {
		return 0, fmt.Errorf("find stale pending registrations: %w", err)
	}
	if len(staleIDs) == 0 {
		return 0, nil
	}

	err = d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.Attendee)(nil)).
			Where("registration_id IN (?)", bun.In(staleIDs)).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.Order)(nil)).
			Where("registration_id IN (?)", bun.In(staleIDs)).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.ProcessedIntent)(nil)).
			Where("registration_id IN (?)", bun.In(staleIDs)).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.Registration)(nil)).
			Where("id IN (?)", bun.In(staleIDs)).
			Exec(ctx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete stale pending registrations: %w", err)
	}

	d.Logger.LogDatabase("DELETE", "registrations", fmt.Sprintf("removed %d stale pending registrations", len(staleIDs)))
	return len(staleIDs), nil
}
