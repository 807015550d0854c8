package syncqueue

import (
	"testing"
	"time"

	"mgmt-syncq/internal/shared/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queueIDs(queues []*model.ClaimableQueue) []string {
	ids := make([]string, len(queues))
	for i, q := range queues {
		ids[i] = q.QueueID
	}
	return ids
}

func TestRoundRobinStrategy_Name(t *testing.T) {
	s := NewRoundRobinStrategy()
	assert.Equal(t, "round_robin", s.Name())
}

func TestRoundRobinStrategy_Rotates(t *testing.T) {
	s := NewRoundRobinStrategy()
	queues := []*model.ClaimableQueue{
		{QueueID: "sq-c"}, {QueueID: "sq-a"}, {QueueID: "sq-b"},
	}

	assert.Equal(t, []string{"sq-a", "sq-b", "sq-c"}, queueIDs(s.Order(queues)))
	assert.Equal(t, []string{"sq-b", "sq-c", "sq-a"}, queueIDs(s.Order(queues)))
	assert.Equal(t, []string{"sq-c", "sq-a", "sq-b"}, queueIDs(s.Order(queues)))
	assert.Equal(t, []string{"sq-a", "sq-b", "sq-c"}, queueIDs(s.Order(queues)))

	// 入参不被修改
	assert.Equal(t, []string{"sq-c", "sq-a", "sq-b"}, queueIDs(queues))
}

// 上一轮起点消失后从其后继继续
func TestRoundRobinStrategy_QueueSetChanges(t *testing.T) {
	s := NewRoundRobinStrategy()
	s.Order([]*model.ClaimableQueue{{QueueID: "sq-a"}, {QueueID: "sq-b"}})
	s.Order([]*model.ClaimableQueue{{QueueID: "sq-a"}, {QueueID: "sq-b"}})

	got := s.Order([]*model.ClaimableQueue{{QueueID: "sq-a"}, {QueueID: "sq-c"}})
	assert.Equal(t, []string{"sq-c", "sq-a"}, queueIDs(got))
}

func TestRoundRobinStrategy_Reset(t *testing.T) {
	s := NewRoundRobinStrategy()
	queues := []*model.ClaimableQueue{{QueueID: "sq-a"}, {QueueID: "sq-b"}}
	s.Order(queues)
	s.Reset()
	assert.Equal(t, []string{"sq-a", "sq-b"}, queueIDs(s.Order(queues)))
}

func TestRoundRobinStrategy_Empty(t *testing.T) {
	assert.Nil(t, NewRoundRobinStrategy().Order(nil))
}

func TestOldestFirstStrategy(t *testing.T) {
	s := NewOldestFirstStrategy()
	assert.Equal(t, "oldest_first", s.Name())

	queues := []*model.ClaimableQueue{
		{QueueID: "sq-new", HeadCreatedAt: t0.Add(time.Minute)},
		{QueueID: "sq-old", HeadCreatedAt: t0},
		{QueueID: "sq-tie-b", HeadCreatedAt: t0.Add(time.Second)},
		{QueueID: "sq-tie-a", HeadCreatedAt: t0.Add(time.Second)},
	}
	got := s.Order(queues)
	assert.Equal(t, []string{"sq-old", "sq-tie-a", "sq-tie-b", "sq-new"}, queueIDs(got))
	assert.Nil(t, s.Order(nil))
}

func TestNewStrategy(t *testing.T) {
	s, err := NewStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyRoundRobin, s.Name())

	s, err = NewStrategy(StrategyOldestFirst)
	require.NoError(t, err)
	assert.Equal(t, StrategyOldestFirst, s.Name())

	_, err = NewStrategy("random")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
