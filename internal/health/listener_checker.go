package health

import (
	"context"
	"fmt"
	"time"
)

// Listener 监听端点的连接统计
type Listener interface {
	Name() string
	ActiveConns() int
}

// ListenerChecker 监听端点连接占用检查
type ListenerChecker struct {
	listeners []Listener
	limits    map[string]int
}

// NewListenerChecker limits 为各端点的连接上限，0 表示不限
func NewListenerChecker(limits map[string]int, listeners ...Listener) *ListenerChecker {
	return &ListenerChecker{listeners: listeners, limits: limits}
}

func (c *ListenerChecker) Name() string { return "listeners" }

func (c *ListenerChecker) Check(_ context.Context) CheckResult {
	start := time.Now()
	if len(c.listeners) == 0 {
		return CheckResult{Status: StatusUnhealthy, Message: "no listener started", Latency: time.Since(start)}
	}

	status, message := StatusHealthy, "ok"
	details := make(map[string]any, len(c.listeners))
	for _, l := range c.listeners {
		active := l.ActiveConns()
		d := map[string]any{"active": active}
		if limit := c.limits[l.Name()]; limit > 0 {
			u := float64(active) / float64(limit)
			d["max"] = limit
			d["utilization"] = fmt.Sprintf("%.1f%%", u*100)
			switch {
			case u > 0.95:
				status, message = StatusUnhealthy, l.Name()+": connection limit near exhausted"
			case u > 0.8 && status == StatusHealthy:
				status, message = StatusDegraded, l.Name()+": high connection usage"
			}
		}
		details[l.Name()] = d
	}
	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}
