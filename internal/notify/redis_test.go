package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/notify"
	"github.com/HTM0410/sale-account-sub001/internal/testutil"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisFanoutRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hub := notify.NewHub(0, testutil.Logger())
	conn, other := testutil.NewConn(), testutil.NewConn()
	require.NoError(t, hub.Register("u1", conn))
	require.NoError(t, hub.Register("u2", other))

	fan := notify.NewRedisFanout(rdb, "notify:test", hub, testutil.Logger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fan.Run(ctx) }()
	require.Eventually(t, fan.Subscribed, 2*time.Second, 10*time.Millisecond)

	fan.EmitToUser(ctx, "u1", notify.NewEvent(notify.EventUnreadCount, notify.UnreadCount{Count: 3}))
	select {
	case <-conn.Sent():
	case <-time.After(2 * time.Second):
		t.Fatal("event not relayed")
	}
	assert.Equal(t, []notify.EventType{notify.EventUnreadCount}, conn.Types())
	assert.Empty(t, other.Events())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRedisFanoutFallsBackToLocal(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	hub := notify.NewHub(0, testutil.Logger())
	conn := testutil.NewConn()
	require.NoError(t, hub.Register("u1", conn))

	fan := notify.NewRedisFanout(rdb, "notify:test", hub, testutil.Logger())
	fan.Broadcast(context.Background(), notify.NewEvent(notify.EventBroadcast, notify.Announcement{Title: "t", Message: "m"}))
	assert.Equal(t, []notify.EventType{notify.EventBroadcast}, conn.Types())
}

func TestRedisFanoutResubscribesAfterRedisComesBack(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	hub := notify.NewHub(0, testutil.Logger())
	conn := testutil.NewConn()
	require.NoError(t, hub.Register("u1", conn))

	fan := notify.NewRedisFanout(rdb, "notify:test", hub, testutil.Logger()).
		WithRetry(10*time.Millisecond, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fan.Run(ctx) }()

	// Redis is down: Run keeps retrying and pushes still reach local clients
	time.Sleep(100 * time.Millisecond)
	assert.False(t, fan.Subscribed())
	fan.EmitToUser(ctx, "u1", notify.Event{Type: notify.EventNotification})
	require.Equal(t, []notify.EventType{notify.EventNotification}, conn.Types())

	require.NoError(t, mr.Restart())
	require.Eventually(t, fan.Subscribed, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, mr.PubSubNumSub("notify:test")["notify:test"])

	// once subscribed, delivery goes through the channel exactly once
	fan.EmitToUser(ctx, "u1", notify.NewEvent(notify.EventUnreadCount, notify.UnreadCount{Count: 1}))
	require.Eventually(t, func() bool { return len(conn.Events()) == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []notify.EventType{notify.EventNotification, notify.EventUnreadCount}, conn.Types())
	assert.False(t, conn.Events()[0].Timestamp.IsZero())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.False(t, fan.Subscribed())
}
