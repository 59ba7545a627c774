package router

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/jt808-gateway/internal/codec"
	"github.com/taoyao-code/jt808-gateway/internal/jt808"
	"github.com/taoyao-code/jt808-gateway/internal/session"
)

type memTransport struct {
	mu     sync.Mutex
	writes [][]byte
}

func (m *memTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, append([]byte(nil), p...))
	return len(p), nil
}
func (m *memTransport) Close() error         { return nil }
func (m *memTransport) RemoteAddr() net.Addr { return &net.UDPAddr{} }

// replies 解出已写出的平台通用应答
func (m *memTransport) replies(t *testing.T) []jt808.GeneralResponse {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []jt808.GeneralResponse
	dec := codec.NewDelimiterDecoder(0)
	for _, w := range m.writes {
		frames, err := dec.Feed(w)
		require.NoError(t, err)
		for _, f := range frames {
			msg, err := jt808.Parse(f)
			require.NoError(t, err)
			require.Equal(t, uint16(jt808.MsgPlatformResponse), msg.MsgID)
			r, err := jt808.ParseGeneralResponse(msg.Body)
			require.NoError(t, err)
			out = append(out, r)
		}
	}
	return out
}

type archiveCall struct {
	device string
	msgID  uint32
	size   int
}

type fakeArchiver struct {
	calls []archiveCall
}

func (f *fakeArchiver) Archive(deviceID string, msgID uint32, payload []byte, _ time.Time) {
	f.calls = append(f.calls, archiveCall{deviceID, msgID, len(payload)})
}

func boundSession(t *testing.T) (*session.Session, *memTransport) {
	t.Helper()
	mt := &memTransport{}
	s := session.New(mt, session.Options{Listener: "808-TCP"})
	require.True(t, s.Bind("13912345678", jt808.Header{Phone: "013912345678"}))
	return s, mt
}

func msg(id uint16, serial uint16) *jt808.Message {
	h := jt808.Header{MsgID: id, Phone: "013912345678", Serial: serial}
	raw, _ := jt808.Build(h, nil)
	return &jt808.Message{Header: h, Raw: raw}
}

func TestRouter_DispatchAndAutoReply(t *testing.T) {
	var got []uint16
	r, err := NewBuilder().
		Handle(jt808.MsgHeartbeat, Route{Handler: func(_ context.Context, _ *session.Session, m *jt808.Message) error {
			got = append(got, m.Serial)
			return nil
		}}).
		Build()
	require.NoError(t, err)

	s, mt := boundSession(t)
	assert.True(t, r.Dispatch(context.Background(), s, msg(jt808.MsgHeartbeat, 9)))
	assert.Equal(t, []uint16{9}, got)

	replies := mt.replies(t)
	require.Len(t, replies, 1)
	assert.Equal(t, uint16(9), replies[0].Serial)
	assert.Equal(t, uint16(jt808.MsgHeartbeat), replies[0].ReplyID)
	assert.Equal(t, jt808.ResultOK, replies[0].Result)
}

func TestRouter_UnknownTypeKeepsGoing(t *testing.T) {
	var unhandled []uint32
	r, err := NewBuilder().Build(OnUnhandled(func(_ *session.Session, m *jt808.Message) {
		unhandled = append(unhandled, m.Type())
	}))
	require.NoError(t, err)

	s, mt := boundSession(t)
	assert.False(t, r.Dispatch(context.Background(), s, msg(0x0F0F, 1)))
	assert.Equal(t, []uint32{0x0F0F}, unhandled)
	assert.Empty(t, mt.replies(t))
	assert.Equal(t, session.StateActive, s.State())
}

func TestRouter_HandlerErrorAndPanicAreContained(t *testing.T) {
	r, err := NewBuilder().
		Handle(jt808.MsgLocationReport, Route{Handler: func(context.Context, *session.Session, *jt808.Message) error {
			return errors.New("boom")
		}}).
		Handle(jt808.MsgLocationBatch, Route{Handler: func(context.Context, *session.Session, *jt808.Message) error {
			panic("nil map")
		}}).
		Build()
	require.NoError(t, err)

	s, mt := boundSession(t)
	assert.True(t, r.Dispatch(context.Background(), s, msg(jt808.MsgLocationReport, 1)))
	assert.True(t, r.Dispatch(context.Background(), s, msg(jt808.MsgLocationBatch, 2)))

	replies := mt.replies(t)
	require.Len(t, replies, 2)
	assert.Equal(t, jt808.ResultFailed, replies[0].Result)
	assert.Equal(t, jt808.ResultFailed, replies[1].Result)
	assert.Equal(t, session.StateActive, s.State())
}

func TestRouter_ArchiveAndNoReply(t *testing.T) {
	arch := &fakeArchiver{}
	r, err := NewBuilder().
		Handle(jt808.MsgAVProperties, Route{Archive: true}).
		Handle(jt808.MsgTerminalRegister, Route{NoReply: true}).
		Handle(jt808.MsgAlarmFileData, Route{Archive: true}).
		Build(WithArchiver(arch))
	require.NoError(t, err)

	s, mt := boundSession(t)
	m := msg(jt808.MsgAVProperties, 3)
	r.Dispatch(context.Background(), s, m)
	r.Dispatch(context.Background(), s, msg(jt808.MsgTerminalRegister, 4))
	r.Dispatch(context.Background(), s, &jt808.Message{Raw: []byte{0x30, 0x31, 0x63, 0x64}, Packet: &jt808.DataPacket{}})

	assert.Equal(t, []archiveCall{
		{"13912345678", jt808.MsgAVProperties, len(m.Raw)},
		{"13912345678", jt808.MsgAlarmFileData, 4},
	}, arch.calls)

	// 只有 0x1003 自动应答；注册与数据包不应答
	replies := mt.replies(t)
	require.Len(t, replies, 1)
	assert.Equal(t, uint16(jt808.MsgAVProperties), replies[0].ReplyID)
}

func TestRouter_ClosingSessionNotDispatched(t *testing.T) {
	calls := 0
	arch := &fakeArchiver{}
	r, err := NewBuilder().
		Handle(jt808.MsgLocationReport, Route{Archive: true, Handler: func(context.Context, *session.Session, *jt808.Message) error {
			calls++
			return nil
		}}).
		Build(WithArchiver(arch))
	require.NoError(t, err)

	s, mt := boundSession(t)
	s.BeginClose()
	assert.False(t, r.Dispatch(context.Background(), s, msg(jt808.MsgLocationReport, 1)))

	require.NoError(t, s.Close())
	assert.False(t, r.Dispatch(context.Background(), s, msg(jt808.MsgLocationReport, 2)))

	assert.Zero(t, calls)
	assert.Empty(t, arch.calls)
	assert.Empty(t, mt.replies(t))
}

func TestBuilder_DuplicateRoute(t *testing.T) {
	_, err := NewBuilder().
		Handle(jt808.MsgHeartbeat, Route{}).
		Handle(jt808.MsgHeartbeat, Route{}).
		Build()
	assert.ErrorIs(t, err, ErrDuplicateRoute)
}

func TestRouter_Routes(t *testing.T) {
	r, err := NewBuilder().
		Handle(jt808.MsgLocationReport, Route{}).
		Handle(jt808.MsgHeartbeat, Route{Desc: "心跳"}).
		Handle(jt808.MsgAlarmFileData, Route{Archive: true}).
		Build()
	require.NoError(t, err)

	infos := r.Routes()
	require.Len(t, infos, 3)
	assert.Equal(t, "0x0002", infos[0].MsgID)
	assert.Equal(t, "心跳", infos[0].Desc)
	assert.Equal(t, "位置信息汇报", infos[1].Desc)
	assert.False(t, infos[2].Reply)
	assert.True(t, r.Has(jt808.MsgHeartbeat))
	assert.False(t, r.Has(0x0F0F))
}
