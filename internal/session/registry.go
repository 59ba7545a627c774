package session

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

const shardCount = 64

// UnbindReason 解除绑定原因
type UnbindReason string

const (
	ReasonClosed   UnbindReason = "closed"   // 连接断开
	ReasonReplaced UnbindReason = "replaced" // 同一设备重连，旧会话被替换
	ReasonRemoved  UnbindReason = "removed"  // 主动移除
)

// Observer 绑定/解绑事件订阅者，回调在分片锁释放后执行
type Observer interface {
	OnBind(s *Session)
	OnUnbind(s *Session, reason UnbindReason)
}

type shard struct {
	mu sync.RWMutex
	m  map[string]*Session
}

// Registry 设备ID -> 会话 的唯一所有者。
// 同一设备ID至多一个存活会话；重连替换旧会话并关闭其传输。
type Registry struct {
	shards    [shardCount]shard
	observers []Observer
	logger    *zap.Logger
}

// NewRegistry 创建注册表
func NewRegistry(logger *zap.Logger, observers ...Observer) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{observers: observers, logger: logger}
	for i := range r.shards {
		r.shards[i].m = make(map[string]*Session)
	}
	return r
}

// AddObserver 追加订阅者，需在开始接入连接前调用
func (r *Registry) AddObserver(o Observer) {
	r.observers = append(r.observers, o)
}

func (r *Registry) shard(id string) *shard {
	return &r.shards[xxhash.Sum64String(id)%shardCount]
}

// Put 插入或替换设备会话。被替换的旧会话立即进入 CLOSING，传输在锁外异步关闭。
func (r *Registry) Put(id string, s *Session) {
	sh := r.shard(id)
	sh.mu.Lock()
	prev := sh.m[id]
	sh.m[id] = s
	sh.mu.Unlock()

	if prev != nil && prev != s {
		r.logger.Info("session replaced",
			zap.String("device_id", id),
			zap.String("old_conn", prev.ID()),
			zap.String("new_conn", s.ID()),
			zap.String("old_remote", prev.RemoteAddr()),
			zap.String("new_remote", s.RemoteAddr()))
		r.notifyUnbind(prev, ReasonReplaced)
		prev.BeginClose()
		go func() { _ = prev.Close() }()
	}
	if prev != s {
		r.notifyBind(s)
	}
}

// Get 查询设备会话；不存在返回 false，不是错误
func (r *Registry) Get(id string) (*Session, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	s, ok := sh.m[id]
	sh.mu.RUnlock()
	return s, ok
}

// Remove 移除设备条目并返回被移除的会话；幂等
func (r *Registry) Remove(id string) (*Session, bool) {
	sh := r.shard(id)
	sh.mu.Lock()
	s, ok := sh.m[id]
	if ok {
		delete(sh.m, id)
	}
	sh.mu.Unlock()
	if ok {
		r.notifyUnbind(s, ReasonRemoved)
	}
	return s, ok
}

// RemoveSession 仅当条目仍指向 s 时移除，被替换的旧会话不会误删新会话
func (r *Registry) RemoveSession(s *Session) bool {
	id := s.DeviceID()
	if id == "" {
		return false
	}
	sh := r.shard(id)
	sh.mu.Lock()
	cur, ok := sh.m[id]
	removed := ok && cur == s
	if removed {
		delete(sh.m, id)
	}
	sh.mu.Unlock()
	if removed {
		r.notifyUnbind(s, ReasonClosed)
	}
	return removed
}

// Kick 移除并关闭设备会话
func (r *Registry) Kick(id string) bool {
	s, ok := r.Remove(id)
	if ok {
		_ = s.Close()
	}
	return ok
}

// All 当前所有会话的快照
func (r *Registry) All() []*Session {
	out := make([]*Session, 0, r.Count())
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		for _, s := range sh.m {
			out = append(out, s)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Count 在线设备数
func (r *Registry) Count() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

// SweepIdle 关闭超过各自空闲阈值的会话，返回关闭数量。
// 连接读循环在传输关闭后负责从注册表移除。
func (r *Registry) SweepIdle(now time.Time) int {
	n := 0
	for _, s := range r.All() {
		if !s.Idle(now, s.IdleTimeout()) {
			continue
		}
		r.logger.Info("session idle timeout",
			zap.String("device_id", s.DeviceID()),
			zap.String("listener", s.Listener()),
			zap.Time("last_active", s.LastActive()))
		s.BeginClose()
		_ = s.Close()
		n++
	}
	return n
}

func (r *Registry) notifyBind(s *Session) {
	for _, o := range r.observers {
		o.OnBind(s)
	}
}

func (r *Registry) notifyUnbind(s *Session, reason UnbindReason) {
	for _, o := range r.observers {
		o.OnUnbind(s, reason)
	}
}
