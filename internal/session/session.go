package session

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taoyao-code/jt808-gateway/internal/codec"
	"github.com/taoyao-code/jt808-gateway/internal/jt808"
)

var (
	// ErrSessionClosed 会话已进入 CLOSING/CLOSED，写入被拒绝
	ErrSessionClosed = errors.New("session closed")
	// ErrNotBound 会话尚未绑定设备，无法构建下行消息头
	ErrNotBound = errors.New("session not bound to a device")
)

// State 会话状态：CONNECTING → ACTIVE → CLOSING → CLOSED
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Transport 会话底层的传输句柄（TCP 连接或 UDP 对端）
type Transport interface {
	Write(p []byte) (int, error)
	Close() error
	RemoteAddr() net.Addr
}

type deadlineWriter interface {
	SetWriteDeadline(t time.Time) error
}

// Options 会话创建参数，来自监听端点配置
type Options struct {
	Listener       string
	MaxFrameLength int
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration
	// OnWrite 写成功回调（字节数），用于统计
	OnWrite func(n int)
}

// Session 一个终端连接的能力句柄。
// 注册表持有 设备ID -> 会话 的映射；会话本身只知道自己的设备ID。
type Session struct {
	id        string
	opts      Options
	transport Transport
	remote    string
	createdAt time.Time

	lastActive atomic.Int64 // unix nano，读写都会刷新
	state      atomic.Int32
	serial     atomic.Uint32

	mu       sync.RWMutex // 保护绑定信息
	deviceID string
	phone    string
	version  jt808.Version
	protoVer byte

	wmu       sync.Mutex // 写互斥：同一会话的帧不交错
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// New 创建处于 CONNECTING 状态的会话
func New(t Transport, opts Options) *Session {
	now := time.Now()
	s := &Session{
		id:        uuid.NewString(),
		opts:      opts,
		transport: t,
		createdAt: now,
		version:   jt808.Version2013,
		done:      make(chan struct{}),
	}
	if addr := t.RemoteAddr(); addr != nil {
		s.remote = addr.String()
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

// ID 连接ID（进程内唯一）
func (s *Session) ID() string { return s.id }

// DeviceID 已绑定的设备ID，未绑定为空
func (s *Session) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceID
}

// Bind 绑定设备。首次绑定成功后进入 ACTIVE；已绑定到其他设备时返回 false。
func (s *Session) Bind(deviceID string, h jt808.Header) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deviceID != "" && s.deviceID != deviceID {
		return false
	}
	s.deviceID = deviceID
	s.phone = h.Phone
	s.version = jt808.Version2013
	if h.Version == jt808.Version2019 {
		s.version = jt808.Version2019
		s.protoVer = h.ProtocolVersion
	}
	s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive))
	return true
}

// Version 终端使用的协议版本
func (s *Session) Version() jt808.Version {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Session) Listener() string           { return s.opts.Listener }
func (s *Session) RemoteAddr() string         { return s.remote }
func (s *Session) CreatedAt() time.Time       { return s.createdAt }
func (s *Session) MaxFrameLength() int        { return s.opts.MaxFrameLength }
func (s *Session) IdleTimeout() time.Duration { return s.opts.IdleTimeout }
func (s *Session) State() State               { return State(s.state.Load()) }
func (s *Session) Done() <-chan struct{}      { return s.done }

// LastActive 最近一次读或写的时间
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// Touch 刷新活跃时间
func (s *Session) Touch(t time.Time) { s.lastActive.Store(t.UnixNano()) }

// Idle 是否已超过空闲阈值
func (s *Session) Idle(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(s.LastActive()) > timeout
}

// NextSerial 下行流水号，16位回绕
func (s *Session) NextSerial() uint16 {
	return uint16(s.serial.Add(1) - 1)
}

// Write 同步写入一帧已编码的数据。
// 返回 nil 表示传输层已接受全部字节；会话关闭中或已关闭时返回 ErrSessionClosed。
func (s *Session) Write(frame []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if s.State() >= StateClosing {
		return ErrSessionClosed
	}
	if dw, ok := s.transport.(deadlineWriter); ok && s.opts.WriteTimeout > 0 {
		_ = dw.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	n, err := s.transport.Write(frame)
	if err != nil {
		// 传输失败只影响本会话
		_ = s.Close()
		return fmt.Errorf("session %s write: %w", s.id, err)
	}
	if n < len(frame) {
		_ = s.Close()
		return fmt.Errorf("session %s short write %d/%d", s.id, n, len(frame))
	}
	s.Touch(time.Now())
	if s.opts.OnWrite != nil {
		s.opts.OnWrite(n)
	}
	return nil
}

// Send 以本会话的下一个流水号和协议版本构建 808 消息并写出，返回使用的流水号
func (s *Session) Send(msgID uint16, body []byte) (uint16, error) {
	s.mu.RLock()
	h := jt808.Header{
		MsgID:           msgID,
		Version:         s.version,
		ProtocolVersion: s.protoVer,
		Phone:           s.phone,
	}
	bound := s.deviceID != ""
	s.mu.RUnlock()
	if !bound {
		return 0, ErrNotBound
	}

	h.Serial = s.NextSerial()
	payload, err := jt808.Build(h, body)
	if err != nil {
		return 0, err
	}
	return h.Serial, s.Write(codec.Encode(payload))
}

// Respond 对上行消息回复平台通用应答 0x8001
func (s *Session) Respond(req *jt808.Message, result byte) error {
	body := jt808.GeneralResponse{
		Serial:  req.Serial,
		ReplyID: req.MsgID,
		Result:  result,
	}.Encode()
	_, err := s.Send(jt808.MsgPlatformResponse, body)
	return err
}

// BeginClose 进入 CLOSING，之后的写入均被拒绝
func (s *Session) BeginClose() {
	for {
		cur := s.state.Load()
		if cur >= int32(StateClosing) {
			return
		}
		if s.state.CompareAndSwap(cur, int32(StateClosing)) {
			return
		}
	}
}

// Close 关闭底层传输，幂等；传输的 Close 只会被调用一次
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.BeginClose()
		s.closeErr = s.transport.Close()
		s.state.Store(int32(StateClosed))
		close(s.done)
	})
	return s.closeErr
}

// Info 会话快照，用于设备列表
type Info struct {
	DeviceID    string    `json:"device_id"`
	ConnID      string    `json:"conn_id"`
	Listener    string    `json:"listener"`
	RemoteAddr  string    `json:"remote_addr"`
	Version     string    `json:"version"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`
	LastActive  time.Time `json:"last_active"`
}

// Snapshot 返回当前会话信息
func (s *Session) Snapshot() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		DeviceID:    s.deviceID,
		ConnID:      s.id,
		Listener:    s.opts.Listener,
		RemoteAddr:  s.remote,
		Version:     s.version.String(),
		State:       s.State().String(),
		ConnectedAt: s.createdAt,
		LastActive:  s.LastActive(),
	}
}
