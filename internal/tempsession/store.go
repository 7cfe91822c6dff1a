package tempsession

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/utils"
)

// ErrSessionNotFound covers both a session that never existed and one that
// has expired. Callers cannot tell the difference and should not try.
var ErrSessionNotFound = errors.New("session not found or expired")

// Store keeps unconfirmed purchase data until payment settles or the session
// expires. Expiry is enforced on read rather than by deleting rows; the
// cleanup job removes the bodies later.
type Store struct {
	db     *bun.DB
	cache  *StatusCache
	ttl    time.Duration
	logger *logger.Logger
}

func NewStore(db *bun.DB, cache *StatusCache, ttl time.Duration, log *logger.Logger) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{db: db, cache: cache, ttl: ttl, logger: log}
}

// Save upserts a session and resets its expiry. Re-submitting the form for
// the same session id keeps the purchase alive with fresh data.
func (s *Store) Save(ctx context.Context, sess *models.TempSession) (*models.TempSession, error) {
	if sess.SessionID == "" {
		sess.SessionID = utils.GenerateSessionID()
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.ExpiresAt = now.Add(s.ttl)

	_, err := s.db.NewInsert().
		Model(sess).
		On("CONFLICT (session_id) DO UPDATE").
		Set("event_id = EXCLUDED.event_id").
		Set("club_id = EXCLUDED.club_id").
		Set("attendees = EXCLUDED.attendees").
		Set("selected_tickets = EXCLUDED.selected_tickets").
		Set("registration_draft = EXCLUDED.registration_draft").
		Set("order_draft = EXCLUDED.order_draft").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("save temp session %s: %w", sess.SessionID, err)
	}

	s.logger.LogDatabase("UPSERT", "temp_sessions", fmt.Sprintf("session %s valid until %s", sess.SessionID, sess.ExpiresAt.Format(time.RFC3339)))
	if s.cache != nil {
		s.cache.SetValid(ctx, sess.SessionID, sess.EventID, sess.ExpiresAt)
	}
	return sess, nil
}

// Get returns a live session. Expired rows are invisible here even if the
// cleanup job has not swept them yet.
func (s *Store) Get(ctx context.Context, sessionID string) (*models.TempSession, error) {
	var sess models.TempSession
	err := s.db.NewSelect().
		Model(&sess).
		Where("session_id = ?", sessionID).
		Where("expires_at > ?", time.Now().UTC()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get temp session %s: %w", sessionID, err)
	}
	return &sess, nil
}

// Extend pushes the expiry out from now. Hours at or below zero fall back to
// the configured TTL, and a request can never push the deadline further out
// than the TTL allows. Used when the payment UI is still open as the
// deadline approaches.
func (s *Store) Extend(ctx context.Context, sessionID string, hours int) (time.Time, error) {
	window := time.Duration(hours) * time.Hour
	if window <= 0 || window > s.ttl {
		window = s.ttl
	}
	newExpiry := time.Now().UTC().Add(window)
	res, err := s.db.NewUpdate().
		Model((*models.TempSession)(nil)).
		Set("expires_at = ?", newExpiry).
		Where("session_id = ?", sessionID).
		Where("expires_at > ?", time.Now().UTC()).
		Exec(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("extend temp session %s: %w", sessionID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, err
	}
	if rows == 0 {
		return time.Time{}, ErrSessionNotFound
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, sessionID)
	}
	return newExpiry, nil
}

// Status answers "is this session still usable" without exposing any
// attendee data. Served from redis when possible since the payment page
// polls it.
func (s *Store) Status(ctx context.Context, sessionID string) (*models.SessionStatus, error) {
	if s.cache != nil {
		if st, ok := s.cache.Get(ctx, sessionID); ok {
			return st, nil
		}
	}

	// An expired-but-unswept row is indistinguishable from an absent one:
	// no event id, no expiry, nothing a poller could act on.
	var sess models.TempSession
	err := s.db.NewSelect().
		Model(&sess).
		Column("session_id", "event_id", "expires_at").
		Where("session_id = ?", sessionID).
		Where("expires_at > ?", time.Now().UTC()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.SessionStatus{SessionID: sessionID, Exists: false, Valid: false}, nil
		}
		return nil, fmt.Errorf("status for temp session %s: %w", sessionID, err)
	}

	st := &models.SessionStatus{
		SessionID: sessionID,
		Exists:    true,
		Valid:     true,
		EventID:   sess.EventID,
		ExpiresAt: &sess.ExpiresAt,
	}
	if s.cache != nil {
		s.cache.SetValid(ctx, sessionID, sess.EventID, sess.ExpiresAt)
	}
	return st, nil
}

// Delete removes a session, normally right after its registration has been
// materialized. Deleting an already-gone session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.NewDelete().
		Model((*models.TempSession)(nil)).
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete temp session %s: %w", sessionID, err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, sessionID)
	}
	return nil
}

// DeleteExpired sweeps rows whose deadline has passed. Safe to run
// concurrently with everything else since expired rows are already
// unreadable.
func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.NewDelete().
		Model((*models.TempSession)(nil)).
		Where("expires_at <= ?", time.Now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired temp sessions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}
