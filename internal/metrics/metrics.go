package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taoyao-code/jt808-gateway/internal/session"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 网关业务指标；所有方法对 nil 接收者安全
type AppMetrics struct {
	ConnAccepted     *prometheus.CounterVec // labels: listener
	ConnRejected     *prometheus.CounterVec // labels: listener, reason
	ConnActive       *prometheus.GaugeVec   // labels: listener
	BytesReceived    *prometheus.CounterVec // labels: listener
	BytesSent        *prometheus.CounterVec // labels: listener
	FrameDecodeTotal *prometheus.CounterVec // labels: listener, result=ok|too_long|bad_escape|malformed|bad_header
	RouteTotal       *prometheus.CounterVec // labels: msg_id
	UnhandledTotal   *prometheus.CounterVec // labels: msg_id
	HandlerErrors    *prometheus.CounterVec // labels: msg_id
	CommandTotal     *prometheus.CounterVec // labels: source, result=sent|offline|failed
	ArchiveTotal     *prometheus.CounterVec // labels: sink, result=ok|error|dropped
	SessionReplaced  prometheus.Counter
	OnlineGauge      prometheus.Gauge // 当前在线设备数
	PresenceDropped  prometheus.Counter
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		ConnAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_conn_accepted_total",
			Help: "Accepted connections (UDP: new peers) by listener.",
		}, []string{"listener"}),
		ConnRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_conn_rejected_total",
			Help: "Rejected connections by listener and reason.",
		}, []string{"listener", "reason"}),
		ConnActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_conn_active",
			Help: "Open connections by listener.",
		}, []string{"listener"}),
		BytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_bytes_received_total",
			Help: "Bytes received by listener.",
		}, []string{"listener"}),
		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_bytes_sent_total",
			Help: "Bytes written by listener.",
		}, []string{"listener"}),
		FrameDecodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_frame_decode_total",
			Help: "Frame decode results by listener.",
		}, []string{"listener", "result"}),
		RouteTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_route_total",
			Help: "Routed messages by message id.",
		}, []string{"msg_id"}),
		UnhandledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_unhandled_total",
			Help: "Messages without a registered handler.",
		}, []string{"msg_id"}),
		HandlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_handler_errors_total",
			Help: "Handler errors and recovered panics by message id.",
		}, []string{"msg_id"}),
		CommandTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_command_total",
			Help: "Downlink command submissions by source and result.",
		}, []string{"source", "result"}),
		ArchiveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_archive_total",
			Help: "Archive records by sink and result.",
		}, []string{"sink", "result"}),
		SessionReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_replaced_total",
			Help: "Sessions superseded by a reconnect of the same device.",
		}),
		OnlineGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "session_online_count",
			Help: "Current number of online devices.",
		}),
		PresenceDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_presence_dropped_total",
			Help: "Presence events dropped because the queue was full.",
		}),
	}
	reg.MustRegister(
		m.ConnAccepted, m.ConnRejected, m.ConnActive,
		m.BytesReceived, m.BytesSent, m.FrameDecodeTotal,
		m.RouteTotal, m.UnhandledTotal, m.HandlerErrors,
		m.CommandTotal, m.ArchiveTotal,
		m.SessionReplaced, m.OnlineGauge, m.PresenceDropped,
	)
	return m
}

// Routed 记录已路由的消息
func (m *AppMetrics) Routed(msgID string) {
	if m != nil {
		m.RouteTotal.WithLabelValues(msgID).Inc()
	}
}

// Unhandled 记录无处理器的消息
func (m *AppMetrics) Unhandled(msgID string) {
	if m != nil {
		m.UnhandledTotal.WithLabelValues(msgID).Inc()
	}
}

// HandlerError 记录处理器错误或 panic
func (m *AppMetrics) HandlerError(msgID string) {
	if m != nil {
		m.HandlerErrors.WithLabelValues(msgID).Inc()
	}
}

// Decoded 记录分帧结果
func (m *AppMetrics) Decoded(listener, result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FrameDecodeTotal.WithLabelValues(listener, result).Add(float64(n))
}

// Received 记录接收字节数
func (m *AppMetrics) Received(listener string, n int) {
	if m != nil && n > 0 {
		m.BytesReceived.WithLabelValues(listener).Add(float64(n))
	}
}

// Sent 记录写出字节数
func (m *AppMetrics) Sent(listener string, n int) {
	if m != nil && n > 0 {
		m.BytesSent.WithLabelValues(listener).Add(float64(n))
	}
}

// Command 记录下发结果
func (m *AppMetrics) Command(source, result string) {
	if m != nil {
		m.CommandTotal.WithLabelValues(source, result).Inc()
	}
}

// Archived 记录归档结果
func (m *AppMetrics) Archived(sink, result string) {
	if m != nil {
		m.ArchiveTotal.WithLabelValues(sink, result).Inc()
	}
}

// OnBind 实现 session.Observer：在线数随绑定变化
func (m *AppMetrics) OnBind(_ *session.Session) {
	if m != nil {
		m.OnlineGauge.Inc()
	}
}

// OnUnbind 实现 session.Observer
func (m *AppMetrics) OnUnbind(_ *session.Session, reason session.UnbindReason) {
	if m == nil {
		return
	}
	m.OnlineGauge.Dec()
	if reason == session.ReasonReplaced {
		m.SessionReplaced.Inc()
	}
}
