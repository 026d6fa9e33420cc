package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_ExclusiveUntilReleaseOrExpiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	release, ok, err := m.TryAcquire(ctx, "audit.retention", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = m.TryAcquire(ctx, "audit.retention", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "second holder must be refused")

	_, ok, _ = m.TryAcquire(ctx, "audit.stats", time.Minute)
	require.True(t, ok, "different names do not contend")

	require.NoError(t, release(ctx))
	release2, ok, _ := m.TryAcquire(ctx, "audit.retention", time.Minute)
	require.True(t, ok)

	// the stale release from the first holder must not drop the new lease
	require.NoError(t, release(ctx))
	_, ok, _ = m.TryAcquire(ctx, "audit.retention", time.Minute)
	require.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = m.TryAcquire(ctx, "audit.retention", time.Minute)
	require.True(t, ok, "expired lease is claimable")
	require.NoError(t, release2(ctx))
}
