// Package gateway 把监听端点、分帧、会话注册与消息路由串成每连接的处理管线。
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/jt808-gateway/internal/config"
	"github.com/taoyao-code/jt808-gateway/internal/codec"
	"github.com/taoyao-code/jt808-gateway/internal/jt808"
	"github.com/taoyao-code/jt808-gateway/internal/metrics"
	"github.com/taoyao-code/jt808-gateway/internal/router"
	"github.com/taoyao-code/jt808-gateway/internal/session"
	"github.com/taoyao-code/jt808-gateway/internal/tcpserver"
	"github.com/taoyao-code/jt808-gateway/internal/udpserver"
)

const readBufSize = 4096

// Pipeline 单个监听端点的处理管线，配置在创建后不可变
type Pipeline struct {
	cfg     cfgpkg.ListenerConfig
	codec   codec.Options
	reg     *session.Registry
	router  *router.Router
	metrics *metrics.AppMetrics
	logger  *zap.Logger
}

// NewPipeline 按监听端点配置创建管线；分帧参数非法时返回错误
func NewPipeline(cfg cfgpkg.ListenerConfig, reg *session.Registry, rt *router.Router, m *metrics.AppMetrics, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	framing, err := codec.ParseFraming(cfg.Framing)
	if err != nil {
		return nil, fmt.Errorf("listener %s: %w", cfg.Name, err)
	}
	magic, err := cfg.MagicBytes()
	if err != nil {
		return nil, err
	}
	opts := codec.Options{
		Framing:                 framing,
		MaxFrameLength:          cfg.MaxFrameLength,
		Magic:                   magic,
		LengthOffset:            cfg.LengthOffset,
		LengthWidth:             cfg.LengthWidth,
		DelimiterMaxFrameLength: cfg.DelimiterMaxFrameLength,
	}
	if _, err := codec.NewDecoder(opts); err != nil {
		return nil, fmt.Errorf("listener %s: %w", cfg.Name, err)
	}
	return &Pipeline{
		cfg:     cfg,
		codec:   opts,
		reg:     reg,
		router:  rt,
		metrics: m,
		logger:  logger.With(zap.String("listener", cfg.Name)),
	}, nil
}

// Listener 监听端点配置
func (p *Pipeline) Listener() cfgpkg.ListenerConfig { return p.cfg }

// HandleTCP 实现 tcpserver.Handler：读、分帧、分派在同一协程内顺序完成
func (p *Pipeline) HandleTCP(ctx context.Context, c *tcpserver.Conn) {
	cs, err := p.open(c)
	if err != nil {
		p.logger.Error("pipeline open failed", zap.Error(err))
		return
	}
	defer cs.close()

	err = c.ReadLoop(make([]byte, readBufSize), p.cfg.IdleTimeout,
		func(b []byte) error {
			p.metrics.Received(p.cfg.Name, len(b))
			return cs.feed(ctx, b)
		},
		func() bool { return !cs.sess.Idle(time.Now(), p.cfg.IdleTimeout) },
	)
	cs.finish(err)
}

// HandleUDP 实现 udpserver.Handler：同一对端的数据报按到达顺序处理
func (p *Pipeline) HandleUDP(ctx context.Context, peer *udpserver.Peer) {
	cs, err := p.open(peer)
	if err != nil {
		p.logger.Error("pipeline open failed", zap.Error(err))
		return
	}
	defer cs.close()

	cs.finish(peer.ReadLoop(func(b []byte) error { return cs.feed(ctx, b) }))
}

func (p *Pipeline) open(t session.Transport) (*connState, error) {
	dec, err := codec.NewDecoder(p.codec)
	if err != nil {
		return nil, err
	}
	s := session.New(t, session.Options{
		Listener:       p.cfg.Name,
		MaxFrameLength: p.cfg.MaxFrameLength,
		IdleTimeout:    p.cfg.IdleTimeout,
		WriteTimeout:   p.cfg.WriteTimeout,
		OnWrite:        func(n int) { p.metrics.Sent(p.cfg.Name, n) },
	})
	p.logger.Debug("connection opened",
		zap.String("conn_id", s.ID()),
		zap.String("remote", s.RemoteAddr()))
	return &connState{p: p, dec: dec, sess: s}, nil
}

// connState 单连接状态，仅由连接协程访问
type connState struct {
	p     *Pipeline
	dec   codec.Decoder
	sess  *session.Session
	bound bool
}

// feed 处理一块数据；仅致命分帧错误会返回错误并结束连接
func (cs *connState) feed(ctx context.Context, b []byte) error {
	cs.sess.Touch(time.Now())
	frames, err := cs.dec.Feed(b)
	cs.p.metrics.Decoded(cs.p.cfg.Name, "ok", len(frames))
	for i, fr := range frames {
		// 会话进入关闭流程后不再接受应用帧
		if cs.sess.State() >= session.StateClosing {
			cs.p.logger.Debug("session closing, frames discarded",
				zap.String("conn_id", cs.sess.ID()),
				zap.String("device_id", cs.sess.DeviceID()),
				zap.Int("count", len(frames)-i))
			break
		}
		cs.handleFrame(ctx, fr)
	}
	if err == nil {
		return nil
	}
	for _, e := range splitErrors(err) {
		cs.p.metrics.Decoded(cs.p.cfg.Name, decodeResult(e), 1)
	}
	if codec.IsFatal(err) {
		return err
	}
	cs.p.logger.Debug("frame dropped",
		zap.String("conn_id", cs.sess.ID()),
		zap.String("device_id", cs.sess.DeviceID()),
		zap.Error(err))
	return nil
}

func (cs *connState) handleFrame(ctx context.Context, fr []byte) {
	m, err := cs.parse(fr)
	if err != nil {
		cs.p.metrics.Decoded(cs.p.cfg.Name, "bad_header", 1)
		cs.p.logger.Debug("message parse failed",
			zap.String("conn_id", cs.sess.ID()),
			zap.Int("len", len(fr)),
			zap.Error(err))
		return
	}
	if m.Packet == nil && !cs.bound {
		cs.bind(m)
	}
	cs.p.router.Dispatch(ctx, cs.sess, m)
}

func (cs *connState) parse(fr []byte) (*jt808.Message, error) {
	if cs.p.codec.Framing != codec.FramingDelimiter && jt808.IsDataPacket(fr) {
		return jt808.NewDataPacketMessage(fr)
	}
	return jt808.Parse(fr)
}

// bind 首个携带手机号的帧绑定会话；register 端点同时登记到注册表
func (cs *connState) bind(m *jt808.Message) {
	id := m.DeviceID()
	if id == "" {
		return
	}
	if !cs.sess.Bind(id, m.Header) {
		return
	}
	cs.bound = true
	if cs.p.cfg.Register {
		cs.p.reg.Put(id, cs.sess)
	}
	cs.p.logger.Info("device bound",
		zap.String("device_id", id),
		zap.String("conn_id", cs.sess.ID()),
		zap.String("remote", cs.sess.RemoteAddr()),
		zap.Stringer("version", cs.sess.Version()),
		zap.Bool("registered", cs.p.cfg.Register))
}

func (cs *connState) finish(err error) {
	switch {
	case err == nil:
	case errors.Is(err, tcpserver.ErrIdle):
		cs.p.logger.Info("connection idle timeout",
			zap.String("conn_id", cs.sess.ID()),
			zap.String("device_id", cs.sess.DeviceID()),
			zap.Duration("idle_timeout", cs.p.cfg.IdleTimeout))
	case codec.IsFatal(err):
		cs.p.logger.Warn("malformed stream, closing connection",
			zap.String("conn_id", cs.sess.ID()),
			zap.String("device_id", cs.sess.DeviceID()),
			zap.Error(err))
	default:
		cs.p.logger.Debug("connection read ended",
			zap.String("conn_id", cs.sess.ID()),
			zap.Error(err))
	}
}

// close 先进入 CLOSING 拒绝新写入，再注销并关闭传输
func (cs *connState) close() {
	cs.sess.BeginClose()
	if cs.bound && cs.p.cfg.Register {
		cs.p.reg.RemoveSession(cs.sess)
	}
	_ = cs.sess.Close()
	cs.p.logger.Debug("connection closed",
		zap.String("conn_id", cs.sess.ID()),
		zap.String("device_id", cs.sess.DeviceID()))
}

func splitErrors(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

func decodeResult(err error) string {
	switch {
	case errors.Is(err, codec.ErrFrameTooLong):
		return "too_long"
	case errors.Is(err, codec.ErrBadEscape):
		return "bad_escape"
	case errors.Is(err, codec.ErrMalformed):
		return "malformed"
	default:
		return "error"
	}
}
