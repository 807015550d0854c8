package membership

import (
	"context"
	"testing"
	"time"

	"mgmt-syncq/internal/clock"
	"mgmt-syncq/internal/shared/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMembership(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewMemory(10*time.Second, clk)

	require.NoError(t, m.Heartbeat(ctx, &model.Node{ID: "node-a"}))
	require.NoError(t, m.Heartbeat(ctx, &model.Node{ID: "node-b"}))

	alive, err := m.ListAlive(ctx)
	require.NoError(t, err)
	assert.Len(t, alive, 2)

	clk.Advance(8 * time.Second)
	require.NoError(t, m.Heartbeat(ctx, &model.Node{ID: "node-a"}))
	clk.Advance(5 * time.Second)

	alive, err = m.ListAlive(ctx)
	require.NoError(t, err)
	require.Len(t, alive, 1)
	assert.Equal(t, "node-a", alive[0].ID)

	require.NoError(t, m.Leave(ctx, "node-a"))
	alive, err = m.ListAlive(ctx)
	require.NoError(t, err)
	assert.Empty(t, alive)
}

func TestAliveSet(t *testing.T) {
	set := AliveSet([]*model.Node{{ID: "a"}, {ID: "b"}})
	assert.Contains(t, set, "a")
	assert.NotContains(t, set, "c")
}
