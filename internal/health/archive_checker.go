package health

import (
	"context"

	"github.com/taoyao-code/jt808-gateway/internal/archive"
)

// ArchiveChecker 归档队列与数据库熔断状态
type ArchiveChecker struct {
	archiver *archive.Archiver
	breaker  *archive.Breaker // 可为空
}

func NewArchiveChecker(a *archive.Archiver, b *archive.Breaker) *ArchiveChecker {
	return &ArchiveChecker{archiver: a, breaker: b}
}

func (c *ArchiveChecker) Name() string { return "archive" }

// Check 归档故障不影响收发，最多报告降级
func (c *ArchiveChecker) Check(_ context.Context) CheckResult {
	st := c.archiver.Stats()
	res := CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: map[string]any{
			"accepted": st.Accepted,
			"written":  st.Written,
			"failed":   st.Failed,
			"dropped":  st.Dropped,
			"queued":   st.Queued,
		},
	}
	if c.breaker != nil {
		bs := c.breaker.Stats()
		res.Details["breaker_state"] = bs.State
		res.Details["breaker_trips"] = bs.Trips
		if c.breaker.State() == archive.BreakerOpen {
			res.Status, res.Message = StatusDegraded, "database sink circuit open"
		}
	}
	return res
}
