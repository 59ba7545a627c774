package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/jt808-gateway/internal/api/middleware"
)

// Handlers 全部 API 处理器
type Handlers struct {
	T1078    *T1078Handler
	Sessions *SessionHandler
	Commands *CommandHandler
}

// RegisterRoutes 注册 /api 路由组
func RegisterRoutes(r gin.IRouter, h Handlers, authCfg middleware.AuthConfig, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := r.Group("/api")
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	t := api.Group("/t1078")
	t.POST("/command/9101", h.T1078.RealtimeAV)
	t.POST("/command/9102", h.T1078.AVControl)
	t.POST("/command/9201", h.T1078.Playback)
	t.POST("/command/9202", h.T1078.PlaybackControl)
	t.POST("/command/9205", h.T1078.QueryResources)
	t.POST("/command/9206", h.T1078.FileUpload)
	t.GET("/command/devices", h.T1078.Devices)
	t.GET("/status", h.T1078.Status)

	api.GET("/sessions", h.Sessions.ListSessions)
	api.GET("/sessions/:deviceId", h.Sessions.GetSession)
	api.DELETE("/sessions/:deviceId", h.Sessions.KickSession)
	api.GET("/archive/:deviceId", h.Sessions.RecentArchive)
	api.GET("/routes", h.Sessions.Routes)

	api.POST("/commands/:deviceId", h.Commands.Send)
	api.GET("/commands/queue/stats", h.Commands.QueueStats)
}
