package session

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 使用测试用Redis客户端（需要真实Redis实例）
func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // 使用测试专用数据库
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping test")
		return nil
	}
	client.FlushDB(ctx)

	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})
	return client
}

// drain 同步处理已入队的事件
func drain(ctx context.Context, p *Presence, reg *Registry) {
	for {
		select {
		case ev := <-p.events:
			p.apply(ctx, reg, ev)
		default:
			return
		}
	}
}

func TestPresence_BindUnbind(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	p := NewPresence(client, "gw-1", time.Minute, nil)
	r := NewRegistry(nil, p)

	first, _ := newBound(t, "D1")
	r.Put("D1", first)
	drain(ctx, p, r)

	rec, err := p.Lookup(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, "gw-1", rec.ServerID)
	assert.Equal(t, first.ID(), rec.ConnID)
	assert.Equal(t, "808-TCP", rec.Listener)

	// 重连：旧会话解绑不能删除新记录
	second, _ := newBound(t, "D1")
	r.Put("D1", second)
	drain(ctx, p, r)

	rec, err = p.Lookup(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, second.ID(), rec.ConnID)

	require.NoError(t, p.Refresh(ctx, r.All()))

	assert.True(t, r.RemoveSession(second))
	drain(ctx, p, r)
	_, err = p.Lookup(ctx, "D1")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestPresence_Cleanup(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	p := NewPresence(client, "gw-2", time.Minute, nil)
	r := NewRegistry(nil, p)
	for _, id := range []string{"A", "B"} {
		s, _ := newBound(t, id)
		r.Put(id, s)
	}
	drain(ctx, p, r)

	require.NoError(t, p.Cleanup(ctx))
	_, err := p.Lookup(ctx, "A")
	assert.ErrorIs(t, err, redis.Nil)
	n, err := client.Exists(ctx, p.serverKey()).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPresence_LateBindForReplacedSession(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	p := NewPresence(client, "gw-4", time.Minute, nil)
	r := NewRegistry(nil, p)

	first, _ := newBound(t, "D9")
	second, _ := newBound(t, "D9")
	r.Put("D9", first)
	r.Put("D9", second)
	// 并发替换时旧会话的绑定事件可能最后到达
	p.OnBind(first)
	drain(ctx, p, r)

	rec, err := p.Lookup(ctx, "D9")
	require.NoError(t, err)
	assert.Equal(t, second.ID(), rec.ConnID)
}

func TestPresence_BindOnlyForCurrentSession(t *testing.T) {
	r := NewRegistry(nil)
	first, _ := newBound(t, "D8")
	second, _ := newBound(t, "D8")

	ev := func(s *Session) presenceEvent {
		return presenceEvent{bind: true, deviceID: s.DeviceID(), connID: s.ID()}
	}
	assert.False(t, current(r, ev(first)))

	r.Put("D8", first)
	assert.True(t, current(r, ev(first)))

	r.Put("D8", second)
	assert.False(t, current(r, ev(first)))
	assert.True(t, current(r, ev(second)))

	r.RemoveSession(second)
	assert.False(t, current(r, ev(second)))
}

func TestPresence_DropWhenQueueFull(t *testing.T) {
	p := NewPresence(nil, "gw-3", time.Minute, nil)
	p.events = make(chan presenceEvent, 1)
	dropped := 0
	p.OnDrop(func() { dropped++ })

	s, _ := newBound(t, "X")
	p.OnBind(s)
	p.OnBind(s)
	assert.Equal(t, 1, dropped)
}
