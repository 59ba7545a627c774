// Package udpserver UDP 监听端点。
// 单个读协程按对端地址分发数据报，每个对端一个处理协程：同一对端保序，不同对端并行。
package udpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/jt808-gateway/internal/config"
	"github.com/taoyao-code/jt808-gateway/internal/metrics"
)

// ErrPeerClosed 对端已关闭
var ErrPeerClosed = errors.New("udp peer closed")

const (
	maxDatagram = 65535
	inboxSize   = 64
)

// Handler 处理一个对端，返回即关闭该对端
type Handler func(ctx context.Context, p *Peer)

// Server 单个 UDP 监听端点
type Server struct {
	cfg     cfgpkg.ListenerConfig
	handler Handler
	logger  *zap.Logger
	metrics *metrics.AppMetrics

	pc     net.PacketConn
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	peers map[string]*Peer

	dropped atomic.Int64
}

// New 创建监听端点；m 可为 nil
func New(cfg cfgpkg.ListenerConfig, h Handler, logger *zap.Logger, m *metrics.AppMetrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		handler: h,
		logger:  logger.With(zap.String("listener", cfg.Name)),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		peers:   make(map[string]*Peer),
	}
}

// Name 监听端点名称
func (s *Server) Name() string { return s.cfg.Name }

// Addr 实际监听地址
func (s *Server) Addr() net.Addr {
	if s.pc == nil {
		return nil
	}
	return s.pc.LocalAddr()
}

// Start 绑定端口并启动读协程与空闲回收
func (s *Server) Start() error {
	pc, err := net.ListenPacket("udp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.pc = pc
	s.logger.Info("udp listener started", zap.String("addr", pc.LocalAddr().String()))

	s.wg.Add(1)
	go s.readLoop()
	if s.cfg.IdleTimeout > 0 {
		s.wg.Add(1)
		go s.reapLoop(s.cfg.IdleTimeout)
	}
	return nil
}

func (s *Server) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := s.pc.ReadFrom(buf)
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("udp read failed", zap.Error(err))
			continue
		}
		if n == 0 {
			continue
		}
		s.metrics.Received(s.cfg.Name, n)
		p := s.peer(addr)
		if p == nil {
			continue
		}
		p.deliver(append([]byte(nil), buf[:n]...))
	}
}

// peer 查找或创建对端；超过上限时返回 nil
func (s *Server) peer(addr net.Addr) *Peer {
	key := addr.String()
	s.mu.Lock()
	if p, ok := s.peers[key]; ok {
		s.mu.Unlock()
		return p
	}
	if s.cfg.MaxConnections > 0 && len(s.peers) >= s.cfg.MaxConnections {
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.ConnRejected.WithLabelValues(s.cfg.Name, "limit").Inc()
		}
		return nil
	}
	p := newPeer(s, addr, key)
	s.peers[key] = p
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ConnAccepted.WithLabelValues(s.cfg.Name).Inc()
		s.metrics.ConnActive.WithLabelValues(s.cfg.Name).Inc()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer p.Close()
		s.handler(s.ctx, p)
	}()
	return p
}

func (s *Server) remove(p *Peer) {
	s.mu.Lock()
	if cur, ok := s.peers[p.key]; ok && cur == p {
		delete(s.peers, p.key)
	}
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ConnActive.WithLabelValues(s.cfg.Name).Dec()
	}
}

// reapLoop 关闭空闲对端
func (s *Server) reapLoop(idle time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(max(idle/4, 100*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Reap(now, idle); n > 0 {
				s.logger.Debug("idle udp peers reaped", zap.Int("count", n))
			}
		}
	}
}

// Reap 关闭超过 idle 未收发数据的对端，返回数量
func (s *Server) Reap(now time.Time, idle time.Duration) int {
	s.mu.Lock()
	var stale []*Peer
	for _, p := range s.peers {
		if now.Sub(p.LastSeen()) > idle {
			stale = append(stale, p)
		}
	}
	s.mu.Unlock()
	for _, p := range stale {
		_ = p.Close()
	}
	return len(stale)
}

// ActiveConns 当前对端数
func (s *Server) ActiveConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Dropped 因对端收件箱已满丢弃的数据报数
func (s *Server) Dropped() int64 { return s.dropped.Load() }

// Shutdown 关闭端口与全部对端并等待处理协程退出
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.pc != nil {
		_ = s.pc.Close()
	}
	s.mu.Lock()
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		_ = p.Close()
	}

	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		s.logger.Info("udp listener stopped")
		return nil
	}
}
