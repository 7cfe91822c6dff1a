package tempsession_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/tempsession"
)

func setupTestStore(t *testing.T) (*tempsession.Store, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = bunDB.NewCreateTable().Model((*models.TempSession)(nil)).Exec(context.Background())
	if err != nil {
		t.Fatalf("Failed to create temp_sessions table: %v", err)
	}

	store := tempsession.NewStore(bunDB, nil, time.Hour, logger.NewLogger())
	return store, bunDB
}

func sampleSession(id string) *models.TempSession {
	return &models.TempSession{
		SessionID: id,
		EventID:   "event-1",
		ClubID:    "club-1",
		Attendees: []models.SessionAttendee{
			{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", IsPrimary: true, TicketTypeID: "tt-1"},
		},
		SelectedTickets: []models.SessionLineItem{
			{TicketTypeID: "tt-1", Title: "General Admission", UnitPrice: 25.0, Quantity: 1},
		},
		OrderDraft: models.OrderDraft{
			OrderNumber:   "ORD-1700000000000",
			TotalAmount:   25.0,
			Currency:      "usd",
			PaymentStatus: models.PaymentStatusPending,
		},
	}
}

func TestSaveAndGet(t *testing.T) {
	store, bunDB := setupTestStore(t)
	defer bunDB.Close()

	saved, err := store.Save(context.Background(), sampleSession("sess-1"))
	assert.NoError(t, err)
	assert.True(t, saved.ExpiresAt.After(time.Now()))

	got, err := store.Get(context.Background(), "sess-1")
	assert.NoError(t, err)
	assert.Equal(t, "event-1", got.EventID)
	assert.Len(t, got.Attendees, 1)
	assert.Equal(t, "ada@example.com", got.Attendees[0].Email)
	assert.Equal(t, 25.0, got.OrderDraft.TotalAmount)
}

func TestSaveGeneratesSessionID(t *testing.T) {
	store, bunDB := setupTestStore(t)
	defer bunDB.Close()

	sess := sampleSession("")
	saved, err := store.Save(context.Background(), sess)
	assert.NoError(t, err)
	assert.NotEmpty(t, saved.SessionID)
}

func TestSaveUpsertResetsExpiry(t *testing.T) {
	store, bunDB := setupTestStore(t)
	defer bunDB.Close()

	first, err := store.Save(context.Background(), sampleSession("sess-1"))
	assert.NoError(t, err)
	firstExpiry := first.ExpiresAt

	time.Sleep(10 * time.Millisecond)

	updated := sampleSession("sess-1")
	updated.Attendees = append(updated.Attendees, models.SessionAttendee{
		FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com", TicketTypeID: "tt-1",
	})
	second, err := store.Save(context.Background(), updated)
	assert.NoError(t, err)
	assert.True(t, second.ExpiresAt.After(firstExpiry))

	got, err := store.Get(context.Background(), "sess-1")
	assert.NoError(t, err)
	assert.Len(t, got.Attendees, 2)
}

func TestGetExpiredSession(t *testing.T) {
	store, bunDB := setupTestStore(t)
	defer bunDB.Close()

	_, err := store.Save(context.Background(), sampleSession("sess-1"))
	assert.NoError(t, err)

	// Force the row past its deadline.
	_, err = bunDB.NewUpdate().
		Model((*models.TempSession)(nil)).
		Set("expires_at = ?", time.Now().UTC().Add(-time.Minute)).
		Where("session_id = ?", "sess-1").
		Exec(context.Background())
	assert.NoError(t, err)

	_, err = store.Get(context.Background(), "sess-1")
	assert.ErrorIs(t, err, tempsession.ErrSessionNotFound)
}

func TestGetMissingSession(t *testing.T) {
	store, bunDB := setupTestStore(t)
	defer bunDB.Close()

	_, err := store.Get(context.Background(), "never-existed")
	assert.ErrorIs(t, err, tempsession.ErrSessionNotFound)
}

func TestExtend(t *testing.T) {
	store, bunDB := setupTestStore(t)
	defer bunDB.Close()

	saved, err := store.Save(context.Background(), sampleSession("sess-1"))
	assert.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	newExpiry, err := store.Extend(context.Background(), "sess-1", 0)
	assert.NoError(t, err)
	assert.True(t, newExpiry.After(saved.ExpiresAt))

	_, err = store.Extend(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, tempsession.ErrSessionNotFound)
}

func TestExtendClampsRequestedHours(t *testing.T) {
	store, bunDB := setupTestStore(t)
	defer bunDB.Close()

	_, err := store.Save(context.Background(), sampleSession("sess-1"))
	assert.NoError(t, err)

	// The store's TTL is one hour; asking for a week gets clamped to it.
	newExpiry, err := store.Extend(context.Background(), "sess-1", 168)
	assert.NoError(t, err)
	assert.True(t, newExpiry.Before(time.Now().UTC().Add(time.Hour+time.Minute)))
}

func TestStatusCarriesNoAttendeeData(t *testing.T) {
	store, bunDB := setupTestStore(t)
	defer bunDB.Close()

	_, err := store.Save(context.Background(), sampleSession("sess-1"))
	assert.NoError(t, err)

	st, err := store.Status(context.Background(), "sess-1")
	assert.NoError(t, err)
	assert.True(t, st.Exists)
	assert.True(t, st.Valid)
	assert.Equal(t, "event-1", st.EventID)
	assert.NotNil(t, st.ExpiresAt)
}

func TestStatusMissingSession(t *testing.T) {
	store, bunDB := setupTestStore(t)
	defer bunDB.Close()

	st, err := store.Status(context.Background(), "missing")
	assert.NoError(t, err)
	assert.False(t, st.Exists)
	assert.False(t, st.Valid)
}

func TestStatusExpiredSession(t *testing.T) {
	store, bunDB := setupTestStore(t)
	defer bunDB.Close()

	_, err := store.Save(context.Background(), sampleSession("sess-1"))
	assert.NoError(t, err)

	_, err = bunDB.NewUpdate().
		Model((*models.TempSession)(nil)).
		Set("expires_at = ?", time.Now().UTC().Add(-time.Minute)).
		Where("session_id = ?", "sess-1").
		Exec(context.Background())
	assert.NoError(t, err)

	// An expired session is reported as absent, with nothing else attached.
	st, err := store.Status(context.Background(), "sess-1")
	assert.NoError(t, err)
	assert.False(t, st.Exists)
	assert.False(t, st.Valid)
	assert.Empty(t, st.EventID)
	assert.Nil(t, st.ExpiresAt)
}

func TestDeleteExpired(t *testing.T) {
	store, bunDB := setupTestStore(t)
	defer bunDB.Close()

	_, err := store.Save(context.Background(), sampleSession("sess-live"))
	assert.NoError(t, err)
	_, err = store.Save(context.Background(), sampleSession("sess-dead"))
	assert.NoError(t, err)

	_, err = bunDB.NewUpdate().
		Model((*models.TempSession)(nil)).
		Set("expires_at = ?", time.Now().UTC().Add(-time.Minute)).
		Where("session_id = ?", "sess-dead").
		Exec(context.Background())
	assert.NoError(t, err)

	removed, err := store.DeleteExpired(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, removed)

	// Sweeping again finds nothing.
	removed, err = store.DeleteExpired(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, removed)

	_, err = store.Get(context.Background(), "sess-live")
	assert.NoError(t, err)
}

func TestStatusCache(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := tempsession.NewStatusCache(client)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "sess-1")
	assert.False(t, ok)

	expires := time.Now().UTC().Add(time.Hour)
	cache.SetValid(ctx, "sess-1", "event-1", expires)

	st, ok := cache.Get(ctx, "sess-1")
	assert.True(t, ok)
	assert.True(t, st.Valid)
	assert.Equal(t, "event-1", st.EventID)

	cache.Invalidate(ctx, "sess-1")
	_, ok = cache.Get(ctx, "sess-1")
	assert.False(t, ok)
}
