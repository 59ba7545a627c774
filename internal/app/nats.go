package app

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/jt808-gateway/internal/config"
)

// ConnectNATS 连接 NATS；未启用时返回 nil, nil
func ConnectNATS(cfg cfgpkg.NATSConfig, serverID string, logger *zap.Logger) (*nats.Conn, error) {
	if !cfg.Enabled {
		logger.Info("nats is disabled, skipping initialization")
		return nil, nil
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(serverID),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	logger.Info("nats connected", zap.String("url", cfg.URL))
	return nc, nil
}
