package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/sendergate/internal/model"
)

func TestMemory_PutGetExpire(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_, ok, err := m.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	in := model.AuditStats{Total: 3, ByAction: map[model.Action]int64{model.ActionAllowed: 3}, GeneratedAt: now}
	require.NoError(t, m.Put(ctx, in, time.Hour))

	in.ByAction[model.ActionAllowed] = 99 // caller mutation must not leak in
	got, ok, err := m.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3), got.ByAction[model.ActionAllowed])

	now = now.Add(time.Hour)
	_, ok, _ = m.Get(ctx)
	require.False(t, ok)
}
