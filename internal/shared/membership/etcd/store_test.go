package etcd

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mgmt-syncq/internal/shared/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	endpoints := os.Getenv("ETCD_ENDPOINTS")
	if endpoints == "" {
		endpoints = "localhost:2379"
	}
	s, err := NewStore(Config{
		Endpoints:   strings.Split(endpoints, ","),
		DialTimeout: time.Second,
		Prefix:      "/syncq-test",
		TTL:         5 * time.Second,
	})
	if err != nil {
		t.Skipf("etcd not available: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHeartbeatListLeave(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	node := &model.Node{ID: model.GenerateNodeID()}

	require.NoError(t, s.Heartbeat(ctx, node))
	require.NoError(t, s.Heartbeat(ctx, node))

	alive, err := s.ListAlive(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(alive))
	for _, n := range alive {
		ids = append(ids, n.ID)
	}
	assert.Contains(t, ids, node.ID)

	require.NoError(t, s.Leave(ctx, node.ID))
	alive, err = s.ListAlive(ctx)
	require.NoError(t, err)
	for _, n := range alive {
		assert.NotEqual(t, node.ID, n.ID)
	}
}
