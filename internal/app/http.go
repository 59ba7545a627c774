package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/jt808-gateway/internal/api"
	"github.com/taoyao-code/jt808-gateway/internal/api/middleware"
	"github.com/taoyao-code/jt808-gateway/internal/archive"
	"github.com/taoyao-code/jt808-gateway/internal/command"
	cfgpkg "github.com/taoyao-code/jt808-gateway/internal/config"
	"github.com/taoyao-code/jt808-gateway/internal/health"
	"github.com/taoyao-code/jt808-gateway/internal/httpserver"
	"github.com/taoyao-code/jt808-gateway/internal/router"
	"github.com/taoyao-code/jt808-gateway/internal/session"
	pgstorage "github.com/taoyao-code/jt808-gateway/internal/storage/pg"
	redisstorage "github.com/taoyao-code/jt808-gateway/internal/storage/redis"
)

// NewHTTPServer 根据配置创建 HTTP 服务器；metricsHandler 为 nil 时不挂载 /metrics
func NewHTTPServer(cfg *cfgpkg.Config, metricsHandler http.Handler, logger *zap.Logger) *httpserver.Server {
	return httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, logger.Named("http"))
}

// APIDeps HTTP API 依赖，可选组件为 nil 时对应接口降级
type APIDeps struct {
	Registry   *session.Registry
	Router     *router.Router
	Dispatcher *command.Dispatcher
	T1078      *command.T1078Service
	Archiver   *archive.Archiver
	Presence   *session.Presence
	Archive    *pgstorage.ArchiveRepo
	Queue      *redisstorage.CommandQueue
	Health     *health.Aggregator
}

// RegisterRoutes 挂载健康检查与 /api 路由
func RegisterRoutes(srv *httpserver.Server, cfg *cfgpkg.Config, deps APIDeps, logger *zap.Logger) {
	// 可选依赖以接口传入，nil 指针不能直接赋给接口
	var (
		presence api.PresenceLookup
		reader   api.ArchiveReader
		queue    api.CommandEnqueuer
	)
	if deps.Presence != nil {
		presence = deps.Presence
	}
	if deps.Archive != nil {
		reader = deps.Archive
	}
	if deps.Queue != nil {
		queue = deps.Queue
	}

	handlers := api.Handlers{
		T1078:    api.NewT1078Handler(deps.T1078, deps.Archiver, cfg.Archive.StoragePath, cfg.Archive.Enabled, logger),
		Sessions: api.NewSessionHandler(deps.Registry, deps.Router, presence, reader, logger),
		Commands: api.NewCommandHandler(deps.Dispatcher, queue, logger),
	}
	authCfg := middleware.AuthConfig{
		APIKeys: cfg.API.APIKeys,
		Enabled: cfg.API.Enabled,
	}

	srv.Register(func(r *gin.Engine) {
		r.Use(middleware.CORS())
		health.RegisterHTTPRoutes(r, deps.Health)
		api.RegisterRoutes(r, handlers, authCfg, logger)
	})
}
