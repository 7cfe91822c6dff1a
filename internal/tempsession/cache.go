package tempsession

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-registration/internal/models"
)

const statusCacheTTL = 30 * time.Second

// StatusCache keeps recent session-status answers in redis so the payment
// page's polling does not hammer postgres. Entries are short-lived and only
// positive answers are cached.
type StatusCache struct {
	client *redis.Client
}

func NewStatusCache(client *redis.Client) *StatusCache {
	return &StatusCache{client: client}
}

func statusKey(sessionID string) string {
	return "session_status:" + sessionID
}

func (c *StatusCache) Get(ctx context.Context, sessionID string) (*models.SessionStatus, bool) {
	val, err := c.client.Get(ctx, statusKey(sessionID)).Result()
	if err != nil {
		// redis.Nil and transport errors both fall through to the DB.
		return nil, false
	}
	var st models.SessionStatus
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return nil, false
	}
	// Cached validity can go stale within the cache TTL window.
	if st.ExpiresAt != nil && !st.ExpiresAt.After(time.Now().UTC()) {
		st.Valid = false
	}
	return &st, true
}

func (c *StatusCache) SetValid(ctx context.Context, sessionID, eventID string, expiresAt time.Time) {
	st := models.SessionStatus{
		SessionID: sessionID,
		Exists:    true,
		Valid:     true,
		EventID:   eventID,
		ExpiresAt: &expiresAt,
	}
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	ttl := statusCacheTTL
	if until := time.Until(expiresAt); until < ttl {
		ttl = until
	}
	if ttl <= 0 {
		return
	}
	c.client.Set(ctx, statusKey(sessionID), data, ttl)
}

func (c *StatusCache) Invalidate(ctx context.Context, sessionID string) {
	c.client.Del(ctx, statusKey(sessionID))
}
