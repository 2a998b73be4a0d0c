//go:build integration

package revocation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niksbanna/ehr-portal-sub000/internal/revocation"
	"github.com/niksbanna/ehr-portal-sub000/pkg/testutil/containers"
)

// backendContract runs the shared Cache contract against a live backend.
// clock is advanced by the test to simulate expiry.
func backendContract(t *testing.T, newCache func(clock revocation.Clock) revocation.Cache, sweeps bool) {
	ctx := context.Background()
	var mu sync.Mutex
	now := time.Now().UTC().Truncate(time.Millisecond)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	cache := newCache(clock)

	t.Run("revoked until expiry", func(t *testing.T) {
		fp := revocation.Fingerprint("token-a-" + t.Name())
		require.NoError(t, cache.Revoke(ctx, fp, now.Add(2*time.Second)))

		revoked, err := cache.IsRevoked(ctx, fp)
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("past expiry is a no-op", func(t *testing.T) {
		fp := revocation.Fingerprint("token-b-" + t.Name())
		require.NoError(t, cache.Revoke(ctx, fp, now.Add(-time.Millisecond)))

		revoked, err := cache.IsRevoked(ctx, fp)
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("unknown fingerprint", func(t *testing.T) {
		revoked, err := cache.IsRevoked(ctx, revocation.Fingerprint("never-seen"))
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	if sweeps {
		t.Run("sweep removes expired entries", func(t *testing.T) {
			fp := revocation.Fingerprint("token-c-" + t.Name())
			require.NoError(t, cache.Revoke(ctx, fp, now.Add(time.Second)))

			mu.Lock()
			now = now.Add(2 * time.Second)
			mu.Unlock()

			removed, err := cache.Sweep(ctx)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, removed, 1)

			revoked, err := cache.IsRevoked(ctx, fp)
			require.NoError(t, err)
			assert.False(t, revoked)
		})
	}
}

func TestRedisCache_Integration(t *testing.T) {
	rc := containers.NewRedisContainer(t)

	backendContract(t, func(clock revocation.Clock) revocation.Cache {
		return revocation.NewRedisCache(rc.Client, revocation.WithRedisClock(clock))
	}, false)

	t.Run("entry expires server-side", func(t *testing.T) {
		ctx := context.Background()
		cache := revocation.NewRedisCache(rc.Client)
		fp := revocation.Fingerprint("short-lived")
		require.NoError(t, cache.Revoke(ctx, fp, time.Now().Add(300*time.Millisecond)))

		assert.Eventually(t, func() bool {
			revoked, err := cache.IsRevoked(ctx, fp)
			return err == nil && !revoked
		}, 3*time.Second, 50*time.Millisecond)
	})
}

func TestPostgresCache_Integration(t *testing.T) {
	pc := containers.NewPostgresContainer(t)

	backendContract(t, func(clock revocation.Clock) revocation.Cache {
		return revocation.NewPostgresCache(pc.DB, revocation.WithPostgresClock(clock))
	}, true)
}
