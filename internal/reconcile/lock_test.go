package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"ms-registration/internal/reconcile"
)

func setupLock(t *testing.T) (*reconcile.Lock, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return reconcile.NewLock(client), mr
}

func TestLockAcquireRelease(t *testing.T) {
	lock, mr := setupLock(t)
	defer mr.Close()
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "pi_1")
	assert.NoError(t, err)
	assert.True(t, ok)

	// Second acquire on the same intent loses.
	ok, err = lock.Acquire(ctx, "pi_1")
	assert.NoError(t, err)
	assert.False(t, ok)

	// A different intent is unaffected.
	ok, err = lock.Acquire(ctx, "pi_2")
	assert.NoError(t, err)
	assert.True(t, ok)

	err = lock.Release(ctx, "pi_1")
	assert.NoError(t, err)

	ok, err = lock.Acquire(ctx, "pi_1")
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestLockExpires(t *testing.T) {
	lock, mr := setupLock(t)
	defer mr.Close()
	lock.TTL = time.Second
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "pi_1")
	assert.NoError(t, err)
	assert.True(t, ok)

	// A crashed holder must not wedge the intent forever.
	mr.FastForward(2 * time.Second)

	ok, err = lock.Acquire(ctx, "pi_1")
	assert.NoError(t, err)
	assert.True(t, ok)
}
