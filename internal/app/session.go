package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/jt808-gateway/internal/config"
	"github.com/taoyao-code/jt808-gateway/internal/metrics"
	"github.com/taoyao-code/jt808-gateway/internal/session"
	redisstorage "github.com/taoyao-code/jt808-gateway/internal/storage/redis"
)

// NewSessionRegistry 构造会话注册表。
// Redis 可用且开启在线镜像时，同时返回 Presence 作为注册表观察者，否则 Presence 为 nil。
func NewSessionRegistry(
	cfg cfgpkg.SessionConfig,
	redisClient *redisstorage.Client,
	serverID string,
	m *metrics.AppMetrics,
	logger *zap.Logger,
) (*session.Registry, *session.Presence) {
	reg := session.NewRegistry(logger, m)

	if redisClient == nil || !cfg.PresenceEnabled {
		logger.Info("using local session registry only")
		return reg, nil
	}

	presence := session.NewPresence(redisClient.Client, serverID, cfg.PresenceTTL, logger)
	presence.OnDrop(func() { m.PresenceDropped.Inc() })
	reg.AddObserver(presence)
	logger.Info("session presence mirrored to redis",
		zap.String("server_id", serverID),
		zap.Duration("ttl", cfg.PresenceTTL))
	return reg, presence
}
