package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestLockIsExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)
	lm := NewLockManager(c)

	lock, err := lm.Acquire(ctx, "lazywhale:ETH/BTC", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:lazywhale:ETH/BTC"))

	_, err = lm.Acquire(ctx, "lazywhale:ETH/BTC", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	lock.Release()
	lock.Release()
	assert.False(t, mr.Exists("lock:lazywhale:ETH/BTC"))

	again, err := lm.Acquire(ctx, "lazywhale:ETH/BTC", time.Minute)
	require.NoError(t, err)
	again.Release()
}

func TestLockRefreshDetectsLoss(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)
	lm := NewLockManager(c)

	lock, err := lm.Acquire(ctx, "m", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, lock.Refresh(ctx, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("lock:m"))

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, lock.Refresh(ctx, time.Minute), ErrLockLost)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "venue:paper", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "venue:paper", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	waitCtx, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(waitCtx, "venue:paper", 3, time.Minute), context.DeadlineExceeded)
}

func TestSignalBusPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)

	msgs, err := bus.Subscribe(ctx, "lw:ETH/BTC:*")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, CycleChannel("ETH/BTC"), []byte(`{"noop":true}`)))

	select {
	case m := <-msgs:
		assert.Equal(t, "lw:ETH/BTC:cycle", m.Channel)
		assert.JSONEq(t, `{"noop":true}`, string(m.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}

	cancel()
	for range msgs {
	}
}

func TestSignalBusStreamAppend(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)

	require.NoError(t, bus.StreamAppend(ctx, OrdersStream("ETH/BTC"), []byte(`{"event":"placed"}`)))
	require.NoError(t, bus.StreamAppend(ctx, OrdersStream("ETH/BTC"), []byte(`{"event":"consumed"}`)))

	entries, err := c.Underlying().XRange(ctx, OrdersStream("ETH/BTC"), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, `{"event":"consumed"}`, entries[1].Values["payload"])
}
