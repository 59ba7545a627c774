package health

import (
	"context"
	"sync/atomic"
)

// Readiness 启动就绪开关，监听端点全部启动前报告不健康
type Readiness struct {
	ready atomic.Bool
}

func NewReadiness() *Readiness { return &Readiness{} }

func (r *Readiness) SetReady(v bool) { r.ready.Store(v) }
func (r *Readiness) Name() string    { return "startup" }

func (r *Readiness) Check(_ context.Context) CheckResult {
	if !r.ready.Load() {
		return CheckResult{Status: StatusUnhealthy, Message: "starting"}
	}
	return CheckResult{Status: StatusHealthy, Message: "ok"}
}
