package app

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/jt808-gateway/internal/archive"
	cfgpkg "github.com/taoyao-code/jt808-gateway/internal/config"
	"github.com/taoyao-code/jt808-gateway/internal/gateway"
	"github.com/taoyao-code/jt808-gateway/internal/jt808"
	"github.com/taoyao-code/jt808-gateway/internal/metrics"
	"github.com/taoyao-code/jt808-gateway/internal/router"
)

// NewRouter 注册全部消息处理器并冻结路由表
func NewRouter(cfg cfgpkg.ProtocolConfig, archiver *archive.Archiver, m *metrics.AppMetrics, logger *zap.Logger) (*router.Router, error) {
	catalog, err := jt808.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}

	opts := []router.Option{
		router.WithLogger(logger.Named("router")),
		router.WithMetrics(m),
		router.WithCatalog(catalog),
	}
	if archiver != nil {
		opts = append(opts, router.WithArchiver(archiver))
	}

	rt, err := gateway.NewHandlers(logger.Named("handlers")).
		Register(router.NewBuilder()).
		Build(opts...)
	if err != nil {
		return nil, err
	}
	logger.Info("message routes registered", zap.Int("routes", len(rt.Routes())))
	return rt, nil
}
