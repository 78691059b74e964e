package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLeaser(t *testing.T) (Leaser, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLeaser(client, 5*time.Second), mr
}

func TestWithLeaseRunsCallback(t *testing.T) {
	leaser, mr := newTestLeaser(t)

	ran := false
	err := leaser.WithLease(context.Background(), "sweep", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lease:sweep"))
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lease:sweep"), "lease key should be released")
}

func TestWithLeaseContended(t *testing.T) {
	leaser, mr := newTestLeaser(t)

	// Someone else holds the lease.
	require.NoError(t, mr.Set("lease:sweep", "other-token"))

	err := leaser.WithLease(context.Background(), "sweep", func(ctx context.Context) error {
		t.Fatal("callback must not run while the lease is held elsewhere")
		return nil
	})

	assert.ErrorIs(t, err, ErrLeaseNotAcquired)

	// The foreign token must survive our failed attempt.
	val, err := mr.Get("lease:sweep")
	require.NoError(t, err)
	assert.Equal(t, "other-token", val)
}

func TestWithLeaseReleasedAfterCallbackError(t *testing.T) {
	leaser, mr := newTestLeaser(t)

	wantErr := assert.AnError
	err := leaser.WithLease(context.Background(), "sweep", func(ctx context.Context) error {
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.False(t, mr.Exists("lease:sweep"))
}
