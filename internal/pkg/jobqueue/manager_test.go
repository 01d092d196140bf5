package jobqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/MarketFox/internal/pkg/events"
)

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	manager := NewManager(client)
	assert.NotNil(t, manager.Queue())
	assert.NotNil(t, manager.Counter())
	assert.Equal(t, defaultReportInterval, manager.reportInterval)
	assert.False(t, manager.IsRunning())

	manager.Stop()
	assert.False(t, manager.IsRunning())
}

func TestGetManager(t *testing.T) {
	globalManager = nil
	managerOnce = sync.Once{}
	t.Cleanup(func() {
		globalManager = nil
		managerOnce = sync.Once{}
	})

	assert.Same(t, GetManager(), GetManager())
}

func TestManager_StartStopCycle(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)

	manager := NewManager(client)
	handler := &recordingHandler{}
	manager.RegisterDispatcher(handler)

	manager.Start()
	assert.True(t, manager.IsRunning())
	assert.True(t, manager.Queue().IsRunning())

	ev := events.New(events.ProposalAccepted)
	require.NoError(t, manager.Publisher().Publish(context.Background(), ev))
	require.True(t, waitForCondition(func() bool { return handler.count() == 1 }, 5*time.Second))

	manager.Stop()
	assert.False(t, manager.IsRunning())
	assert.False(t, manager.Queue().IsRunning())

	manager.Start()
	assert.True(t, manager.IsRunning())
	manager.Stop()
}

func TestManager_Report(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	ctx := context.Background()

	manager := NewManager(client)
	manager.Counter().RecordStep(ctx, events.OrderDelivered, "chat", assert.AnError)
	_, err := manager.Queue().Enqueue(ctx, events.New(events.OrderDelivered))
	require.NoError(t, err)

	assert.NotPanics(t, func() { manager.report(ctx) })
	backlog, err := manager.Queue().Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), backlog.Pending)
}
