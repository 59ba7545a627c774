package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/jt808-gateway/internal/config"
	"github.com/taoyao-code/jt808-gateway/internal/gateway"
	"github.com/taoyao-code/jt808-gateway/internal/metrics"
	"github.com/taoyao-code/jt808-gateway/internal/router"
	"github.com/taoyao-code/jt808-gateway/internal/session"
	"github.com/taoyao-code/jt808-gateway/internal/tcpserver"
	"github.com/taoyao-code/jt808-gateway/internal/udpserver"
)

// Listener TCP 或 UDP 监听端点
type Listener interface {
	Name() string
	ActiveConns() int
	Start() error
	Shutdown(ctx context.Context) error
}

// NewListeners 为每个监听端点创建帧处理管道与传输服务器（尚未启动）
func NewListeners(
	cfgs []cfgpkg.ListenerConfig,
	reg *session.Registry,
	rt *router.Router,
	m *metrics.AppMetrics,
	logger *zap.Logger,
) ([]Listener, error) {
	out := make([]Listener, 0, len(cfgs))
	for _, lc := range cfgs {
		llog := logger.With(zap.String("listener", lc.Name))
		p, err := gateway.NewPipeline(lc, reg, rt, m, llog)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(lc.Network) {
		case "tcp":
			out = append(out, tcpserver.New(lc, p.HandleTCP, llog, m))
		case "udp":
			out = append(out, udpserver.New(lc, p.HandleUDP, llog, m))
		default:
			return nil, fmt.Errorf("listener %s: network %q", lc.Name, lc.Network)
		}
	}
	return out, nil
}

// StartListeners 依次启动；任一失败时关闭已启动的端点
func StartListeners(ctx context.Context, ls []Listener) error {
	for i, l := range ls {
		if err := l.Start(); err != nil {
			for _, started := range ls[:i] {
				_ = started.Shutdown(ctx)
			}
			return fmt.Errorf("listener %s: %w", l.Name(), err)
		}
	}
	return nil
}

// ShutdownListeners 停止接收新连接并关闭全部会话
func ShutdownListeners(ctx context.Context, ls []Listener, logger *zap.Logger) {
	for _, l := range ls {
		if err := l.Shutdown(ctx); err != nil {
			logger.Warn("listener shutdown error", zap.String("listener", l.Name()), zap.Error(err))
		}
	}
}

// ConnectionLimits 各端点的最大连接数，用于健康检查
func ConnectionLimits(cfgs []cfgpkg.ListenerConfig) map[string]int {
	limits := make(map[string]int, len(cfgs))
	for _, lc := range cfgs {
		if lc.MaxConnections > 0 {
			limits[lc.Name] = lc.MaxConnections
		}
	}
	return limits
}
