package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	cfgpkg "github.com/taoyao-code/jt808-gateway/internal/config"
)

// ServerID 返回实例ID
// 优先使用配置 app.serverId，其次环境变量 SERVER_ID，否则按主机名生成
func ServerID(cfg cfgpkg.AppConfig) string {
	if cfg.ServerID != "" {
		return cfg.ServerID
	}
	if serverID := os.Getenv("SERVER_ID"); serverID != "" {
		return serverID
	}

	// 生成格式：jt808-gw-{hostname}-{uuid前8位}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("jt808-gw-%s-%s", hostname, uuid.New().String()[:8])
}
