package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/jt808-gateway/internal/config"
	"github.com/taoyao-code/jt808-gateway/internal/metrics"
)

// Handler 处理一个连接，返回即关闭
type Handler func(ctx context.Context, c *Conn)

// Server 单个 TCP 监听端点
type Server struct {
	cfg     cfgpkg.ListenerConfig
	handler Handler
	adm     *Admission
	logger  *zap.Logger
	metrics *metrics.AppMetrics

	ln     net.Listener
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[*Conn]struct{}
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
		adm:     NewAdmission(cfg.AcceptRate, cfg.AcceptBurst, cfg.MaxConnections, 0),
		logger:  logger.With(zap.String("listener", cfg.Name)),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[*Conn]struct{}),
	}
}

// Name 监听端点名称
func (s *Server) Name() string { return s.cfg.Name }

// Addr 实际监听地址，Start 之前为 nil
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Admission 准入统计来源
func (s *Server) Admission() *Admission { return s.adm }

// Start 监听并接受连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("tcp listener started", zap.String("addr", ln.Addr().String()), zap.String("framing", s.cfg.Framing))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	var backoff time.Duration
	for {
		c, err := s.ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			// 短暂错误退避后重试
			backoff = min(max(backoff*2, 5*time.Millisecond), time.Second)
			s.logger.Warn("accept failed", zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		release, err := s.adm.Admit(s.ctx)
		if err != nil {
			reason := "limit"
			if errors.Is(err, ErrRateLimited) {
				reason = "rate"
			}
			if s.metrics != nil {
				s.metrics.ConnRejected.WithLabelValues(s.cfg.Name, reason).Inc()
			}
			s.logger.Debug("connection rejected", zap.String("remote_addr", c.RemoteAddr().String()), zap.Error(err))
			_ = c.Close()
			continue
		}

		conn := newConn(c, s.cfg.Name)
		if !s.track(conn) {
			release()
			_ = conn.Close()
			return
		}
		if s.metrics != nil {
			s.metrics.ConnAccepted.WithLabelValues(s.cfg.Name).Inc()
			s.metrics.ConnActive.WithLabelValues(s.cfg.Name).Inc()
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer release()
			defer s.untrack(conn)
			defer conn.Close()
			s.handler(s.ctx, conn)
		}()
	}
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ConnActive.WithLabelValues(s.cfg.Name).Dec()
	}
}

// ActiveConns 当前连接数
func (s *Server) ActiveConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown 停止接受新连接，关闭现有连接并等待处理协程退出
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if s.ln != nil {
		_ = s.ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
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
		s.logger.Info("tcp listener stopped")
		return nil
	}
}
