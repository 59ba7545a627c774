package session

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/jt808-gateway/internal/codec"
	"github.com/taoyao-code/jt808-gateway/internal/jt808"
)

// fakeTransport 记录写入与关闭次数
type fakeTransport struct {
	mu       sync.Mutex
	writes   [][]byte
	closes   atomic.Int32
	writeErr error
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeTransport) Close() error { f.closes.Add(1); return nil }

func (f *fakeTransport) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
}

func (f *fakeTransport) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) OnBind(s *Session) {
	o.mu.Lock()
	o.events = append(o.events, "bind:"+s.ID())
	o.mu.Unlock()
}

func (o *recordingObserver) OnUnbind(s *Session, reason UnbindReason) {
	o.mu.Lock()
	o.events = append(o.events, fmt.Sprintf("unbind:%s:%s", s.ID(), reason))
	o.mu.Unlock()
}

func newBound(t *testing.T, id string) (*Session, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	s := New(ft, Options{Listener: "808-TCP", IdleTimeout: time.Minute})
	require.True(t, s.Bind(id, jt808.Header{Phone: id, Version: jt808.Version2013}))
	return s, ft
}

func TestRegistry_GetAbsent(t *testing.T) {
	r := NewRegistry(nil)
	s, ok := r.Get("nope")
	assert.False(t, ok)
	assert.Nil(t, s)
	assert.Zero(t, r.Count())
}

func TestRegistry_ReconnectReplacesAndClosesOnce(t *testing.T) {
	obs := &recordingObserver{}
	r := NewRegistry(nil, obs)

	first, ft1 := newBound(t, "D1")
	second, ft2 := newBound(t, "D1")

	r.Put("D1", first)
	r.Put("D1", second)

	got, ok := r.Get("D1")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.Count())

	// 旧会话立即拒绝写入，传输异步关闭
	assert.True(t, first.State() >= StateClosing)
	assert.ErrorIs(t, first.Write([]byte{0x7E}), ErrSessionClosed)
	require.Eventually(t, func() bool { return first.State() == StateClosed }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), ft1.closes.Load())
	assert.Equal(t, int32(0), ft2.closes.Load())

	// 旧连接读循环退出时不能删除新会话
	assert.False(t, r.RemoveSession(first))
	_, ok = r.Get("D1")
	assert.True(t, ok)

	// 重复关闭不会再次调用传输的 Close
	_ = first.Close()
	assert.Equal(t, int32(1), ft1.closes.Load())

	assert.Equal(t, []string{
		"bind:" + first.ID(),
		"unbind:" + first.ID() + ":replaced",
		"bind:" + second.ID(),
	}, obs.events)
}

func TestRegistry_PutSameSessionTwice(t *testing.T) {
	obs := &recordingObserver{}
	r := NewRegistry(nil, obs)
	s, ft := newBound(t, "D2")
	r.Put("D2", s)
	r.Put("D2", s)
	assert.Zero(t, ft.closes.Load())
	assert.Len(t, obs.events, 1)
}

func TestRegistry_RemoveIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	s, _ := newBound(t, "D3")
	r.Put("D3", s)

	assert.True(t, r.RemoveSession(s))
	assert.False(t, r.RemoveSession(s))
	_, ok := r.Remove("D3")
	assert.False(t, ok)

	r.Put("D3", s)
	got, ok := r.Remove("D3")
	assert.True(t, ok)
	assert.Same(t, s, got)
}

func TestRegistry_Kick(t *testing.T) {
	r := NewRegistry(nil)
	s, ft := newBound(t, "D4")
	r.Put("D4", s)
	assert.True(t, r.Kick("D4"))
	assert.False(t, r.Kick("D4"))
	assert.Equal(t, int32(1), ft.closes.Load())
}

func TestRegistry_AllAndConcurrentPut(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("dev-%d", i%50)
			s := New(&fakeTransport{}, Options{})
			s.Bind(id, jt808.Header{Phone: "1"})
			r.Put(id, s)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, r.Count())
	assert.Len(t, r.All(), 50)
}

func TestRegistry_SweepIdle(t *testing.T) {
	r := NewRegistry(nil)
	idle, ftIdle := newBound(t, "idle")
	fresh, ftFresh := newBound(t, "fresh")
	r.Put("idle", idle)
	r.Put("fresh", fresh)

	now := time.Now()
	idle.Touch(now.Add(-2 * time.Minute))
	fresh.Touch(now)

	assert.Equal(t, 1, r.SweepIdle(now))
	assert.Equal(t, int32(1), ftIdle.closes.Load())
	assert.Zero(t, ftFresh.closes.Load())
}

func TestSession_WriteAndState(t *testing.T) {
	ft := &fakeTransport{}
	s := New(ft, Options{})
	assert.Equal(t, StateConnecting, s.State())

	_, err := s.Send(jt808.MsgPlatformResponse, nil)
	assert.ErrorIs(t, err, ErrNotBound)

	require.True(t, s.Bind("13912345678", jt808.Header{Phone: "013912345678", Version: jt808.Version2013}))
	assert.Equal(t, StateActive, s.State())
	assert.False(t, s.Bind("other", jt808.Header{}))

	require.NoError(t, s.Write([]byte{0x7E, 0x01, 0x7E}))
	assert.Len(t, ft.Writes(), 1)

	s.BeginClose()
	assert.ErrorIs(t, s.Write([]byte{0x7E}), ErrSessionClosed)
	assert.Len(t, ft.Writes(), 1)

	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
	select {
	case <-s.Done():
	default:
		t.Fatalf("done channel should be closed")
	}
}

func TestSession_WriteErrorClosesSession(t *testing.T) {
	ft := &fakeTransport{writeErr: errors.New("broken pipe")}
	s := New(ft, Options{})
	err := s.Write([]byte{1})
	require.Error(t, err)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, int32(1), ft.closes.Load())
}

func TestSession_RespondEncodesGeneralResponse(t *testing.T) {
	ft := &fakeTransport{}
	s := New(ft, Options{})
	hdr := jt808.Header{MsgID: jt808.MsgHeartbeat, Phone: "013912345678", Serial: 42, Version: jt808.Version2019, ProtocolVersion: 1}
	require.True(t, s.Bind("13912345678", hdr))

	require.NoError(t, s.Respond(&jt808.Message{Header: hdr}, jt808.ResultOK))
	writes := ft.Writes()
	require.Len(t, writes, 1)

	frames, err := codec.NewDelimiterDecoder(0).Feed(writes[0])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	msg, err := jt808.Parse(frames[0])
	require.NoError(t, err)
	assert.Equal(t, uint16(jt808.MsgPlatformResponse), msg.MsgID)
	assert.Equal(t, jt808.Version2019, msg.Version)
	assert.Equal(t, "13912345678", msg.DeviceID())

	ack, err := jt808.ParseGeneralResponse(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), ack.Serial)
	assert.Equal(t, uint16(jt808.MsgHeartbeat), ack.ReplyID)

	// 流水号递增
	assert.Equal(t, uint16(1), s.NextSerial())
}
