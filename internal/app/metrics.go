package app

import (
	"net/http"

	cfgpkg "github.com/taoyao-code/jt808-gateway/internal/config"
	"github.com/taoyao-code/jt808-gateway/internal/metrics"
)

// NewMetrics 初始化网关指标；关闭暴露时处理器为 nil，指标仍在进程内计数
func NewMetrics(cfg cfgpkg.MetricsConfig) (*metrics.AppMetrics, http.Handler) {
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)
	if !cfg.Enable {
		return appm, nil
	}
	return appm, metrics.Handler(reg)
}
