package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateOrderNumber produces a human-readable order reference. Millisecond
// timestamps keep it sortable and effectively unique within a deployment.
func GenerateOrderNumber() string {
	return fmt.Sprintf("ORD-%d", time.Now().UnixMilli())
}

// GenerateSessionID returns an unguessable identifier for a temp session.
func GenerateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	return "sess_" + hex.EncodeToString(b)
}

// GenerateFreeIntentID builds the pseudo intent id used when nothing was
// charged. It lives in the same namespace as Stripe intent ids so the
// idempotency guard covers both.
func GenerateFreeIntentID() string {
	return "free_" + uuid.NewString()
}

// GenerateUUID creates a random UUID v4.
func GenerateUUID() string {
	return uuid.NewString()
}
