package live

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "live:user:u-1", Channel("u-1"))
}

func TestNewUpdate(t *testing.T) {
	u, err := NewUpdate("notification", map[string]string{"id": "n-1"})
	require.NoError(t, err)
	assert.Equal(t, "notification", u.Kind)
	assert.JSONEq(t, `{"id":"n-1"}`, string(u.Payload))
}

func TestHub_PushAndSubscribe(t *testing.T) {
	hub := NewHub(testRedis(t))
	ctx := context.Background()
	user := "live-test-" + time.Now().Format("150405.000000")

	sub, err := hub.Subscribe(ctx, user)
	require.NoError(t, err)
	defer sub.Close()

	u, err := NewUpdate("notification", map[string]string{"title": "hello"})
	require.NoError(t, err)
	require.NoError(t, hub.Push(ctx, user, u))

	select {
	case got := <-sub.Updates():
		assert.Equal(t, "notification", got.Kind)
		assert.JSONEq(t, `{"title":"hello"}`, string(got.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for live update")
	}
}
