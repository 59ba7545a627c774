// Package router 按消息ID把已解析的消息分派给处理器。
// 路由表在启动时通过 Builder 注册，Build 之后只读，分派时无锁。
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/jt808-gateway/internal/jt808"
	"github.com/taoyao-code/jt808-gateway/internal/metrics"
	"github.com/taoyao-code/jt808-gateway/internal/session"
)

var (
	ErrDuplicateRoute = errors.New("router: duplicate route")
	ErrHandlerPanic   = errors.New("router: handler panic")
)

// Handler 消息处理器
type Handler func(ctx context.Context, s *session.Session, m *jt808.Message) error

// Route 一条路由
type Route struct {
	Handler Handler // 可为空：仅归档/应答
	Desc    string
	Archive bool // 原始帧交给归档器（异步）
	NoReply bool // 不自动回复平台通用应答（处理器自行应答或协议不要求应答）
}

// Archiver 归档接口，实现方不得阻塞
type Archiver interface {
	Archive(deviceID string, msgID uint32, payload []byte, ts time.Time)
}

// UnhandledFunc 未注册消息的回调
type UnhandledFunc func(s *session.Session, m *jt808.Message)

// Builder 路由表构建器
type Builder struct {
	routes map[uint32]Route
	errs   []error
}

// NewBuilder 创建构建器
func NewBuilder() *Builder {
	return &Builder{routes: make(map[uint32]Route)}
}

// Handle 注册路由；重复注册在 Build 时报错
func (b *Builder) Handle(msgID uint32, r Route) *Builder {
	if _, ok := b.routes[msgID]; ok {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDuplicateRoute, jt808.FormatMsgID(msgID)))
		return b
	}
	b.routes[msgID] = r
	return b
}

// Option 路由器选项
type Option func(*Router)

func WithLogger(l *zap.Logger) Option          { return func(r *Router) { r.logger = l } }
func WithArchiver(a Archiver) Option           { return func(r *Router) { r.archiver = a } }
func WithMetrics(m *metrics.AppMetrics) Option { return func(r *Router) { r.metrics = m } }
func WithCatalog(c *jt808.Catalog) Option      { return func(r *Router) { r.catalog = c } }
func OnUnhandled(fn UnhandledFunc) Option      { return func(r *Router) { r.onUnhandled = fn } }

// Router 已冻结的路由表
type Router struct {
	routes      map[uint32]Route
	logger      *zap.Logger
	archiver    Archiver
	metrics     *metrics.AppMetrics
	catalog     *jt808.Catalog
	onUnhandled UnhandledFunc
}

// Build 冻结路由表
func (b *Builder) Build(opts ...Option) (*Router, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	routes := make(map[uint32]Route, len(b.routes))
	for k, v := range b.routes {
		routes[k] = v
	}
	r := &Router{routes: routes}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.catalog == nil {
		r.catalog = jt808.DefaultCatalog()
	}
	return r, nil
}

// Dispatch 分派一条消息，返回是否命中路由。
// 处理器错误与 panic 在此边界内被吸收，连接继续；已进入关闭流程的会话不再分派。
func (r *Router) Dispatch(ctx context.Context, s *session.Session, m *jt808.Message) bool {
	id := m.Type()
	idStr := jt808.FormatMsgID(id)
	if s.State() >= session.StateClosing {
		r.logger.Debug("message dropped on closing session",
			zap.String("device_id", s.DeviceID()),
			zap.String("msg_id", idStr),
			zap.Stringer("state", s.State()))
		return false
	}
	route, ok := r.routes[id]
	if !ok {
		r.metrics.Unhandled(idStr)
		r.logger.Debug("unhandled message",
			zap.String("device_id", s.DeviceID()),
			zap.String("msg_id", idStr),
			zap.Int("body_len", len(m.Body)))
		if r.onUnhandled != nil {
			r.onUnhandled(s, m)
		}
		return false
	}
	r.metrics.Routed(idStr)

	if route.Archive && r.archiver != nil {
		r.archiver.Archive(s.DeviceID(), id, m.Raw, time.Now())
	}

	err := r.invoke(ctx, route, s, m)
	if err != nil {
		r.metrics.HandlerError(idStr)
		r.logger.Error("handler failed",
			zap.String("device_id", s.DeviceID()),
			zap.String("msg_id", idStr),
			zap.String("desc", r.describe(route, id)),
			zap.Error(err))
	}

	if route.NoReply || m.Packet != nil {
		return true
	}
	result := jt808.ResultOK
	if err != nil {
		result = jt808.ResultFailed
	}
	if werr := s.Respond(m, result); werr != nil {
		r.logger.Debug("general response not sent",
			zap.String("device_id", s.DeviceID()),
			zap.String("msg_id", idStr),
			zap.Error(werr))
	}
	return true
}

func (r *Router) invoke(ctx context.Context, route Route, s *session.Session, m *jt808.Message) (err error) {
	if route.Handler == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return route.Handler(ctx, s, m)
}

func (r *Router) describe(route Route, id uint32) string {
	if route.Desc != "" {
		return route.Desc
	}
	return r.catalog.Describe(id)
}

// Has 是否注册了该消息
func (r *Router) Has(msgID uint32) bool {
	_, ok := r.routes[msgID]
	return ok
}

// RouteInfo 路由描述，用于 API 展示
type RouteInfo struct {
	MsgID   string `json:"msg_id"`
	Desc    string `json:"desc"`
	Archive bool   `json:"archive"`
	Reply   bool   `json:"reply"`
}

// Routes 按消息ID排序的路由列表
func (r *Router) Routes() []RouteInfo {
	ids := make([]uint32, 0, len(r.routes))
	for id := range r.routes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]RouteInfo, 0, len(ids))
	for _, id := range ids {
		rt := r.routes[id]
		out = append(out, RouteInfo{
			MsgID:   jt808.FormatMsgID(id),
			Desc:    r.describe(rt, id),
			Archive: rt.Archive,
			Reply:   !rt.NoReply && id != jt808.MsgAlarmFileData,
		})
	}
	return out
}
