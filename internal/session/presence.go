package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis Key设计
const (
	// jtg:session:{deviceID} -> Hash{server_id, conn_id, listener, remote, since, last_seen}
	keySessionPrefix = "jtg:session:"

	// jtg:server:{serverID}:devices -> Set[deviceID]
	keyServerPrefix = "jtg:server:"
)

// 仅当 conn_id 仍匹配时删除，避免旧连接的解绑覆盖新连接
var unbindScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "conn_id") == ARGV[1] then
	redis.call("DEL", KEYS[1])
	redis.call("SREM", KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// 仅刷新仍属于该连接的记录
var refreshScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "conn_id") == ARGV[1] then
	redis.call("HSET", KEYS[1], "last_seen", ARGV[2])
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
	return 1
end
return 0
`)

// PresenceRecord 设备在线记录（跨实例可见，仅供查询）
type PresenceRecord struct {
	DeviceID string    `json:"device_id"`
	ServerID string    `json:"server_id"`
	ConnID   string    `json:"conn_id"`
	Listener string    `json:"listener"`
	Remote   string    `json:"remote_addr"`
	Since    time.Time `json:"since"`
	LastSeen time.Time `json:"last_seen"`
}

type presenceEvent struct {
	bind     bool
	deviceID string
	connID   string
	listener string
	remote   string
	since    time.Time
}

// Presence 将本实例的会话绑定镜像到 Redis。
// 作为 Registry 的 Observer：回调只入队，由单独的协程顺序写 Redis。
type Presence struct {
	client   *redis.Client
	serverID string
	ttl      time.Duration
	logger   *zap.Logger

	events  chan presenceEvent
	dropped func()
}

// NewPresence 创建在线镜像；ttl 为记录过期时间，由 Run 周期刷新
func NewPresence(client *redis.Client, serverID string, ttl time.Duration, logger *zap.Logger) *Presence {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Presence{
		client:   client,
		serverID: serverID,
		ttl:      ttl,
		logger:   logger,
		events:   make(chan presenceEvent, 4096),
	}
}

// OnDrop 设置事件队列满时的回调（计数）
func (p *Presence) OnDrop(fn func()) { p.dropped = fn }

// OnBind 实现 Observer
func (p *Presence) OnBind(s *Session) {
	p.enqueue(presenceEvent{
		bind:     true,
		deviceID: s.DeviceID(),
		connID:   s.ID(),
		listener: s.Listener(),
		remote:   s.RemoteAddr(),
		since:    s.CreatedAt(),
	})
}

// OnUnbind 实现 Observer
func (p *Presence) OnUnbind(s *Session, _ UnbindReason) {
	p.enqueue(presenceEvent{deviceID: s.DeviceID(), connID: s.ID()})
}

func (p *Presence) enqueue(ev presenceEvent) {
	select {
	case p.events <- ev:
	default:
		if p.dropped != nil {
			p.dropped()
		}
		p.logger.Warn("presence event dropped", zap.String("device_id", ev.deviceID), zap.Bool("bind", ev.bind))
	}
}

// Run 处理绑定事件并按 ttl/3 周期刷新本实例所有会话的 last_seen，阻塞直至 ctx 结束
func (p *Presence) Run(ctx context.Context, reg *Registry) {
	ticker := time.NewTicker(p.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.events:
			p.apply(ctx, reg, ev)
		case <-ticker.C:
			if err := p.Refresh(ctx, reg.All()); err != nil {
				p.logger.Warn("presence refresh failed", zap.Error(err))
			}
		}
	}
}

func (p *Presence) apply(ctx context.Context, reg *Registry, ev presenceEvent) {
	if ev.bind && !current(reg, ev) {
		p.logger.Debug("stale presence bind skipped",
			zap.String("device_id", ev.deviceID),
			zap.String("conn_id", ev.connID))
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var err error
	if ev.bind {
		err = p.bind(opCtx, ev)
	} else {
		err = unbindScript.Run(opCtx, p.client,
			[]string{keySessionPrefix + ev.deviceID, p.serverKey()},
			ev.connID, ev.deviceID).Err()
	}
	if err != nil {
		p.logger.Warn("presence update failed",
			zap.String("device_id", ev.deviceID),
			zap.Bool("bind", ev.bind),
			zap.Error(err))
	}
}

// current 绑定事件对应的连接仍是注册表中的会话。
// 回调在分片锁外执行，同一设备的并发替换可能使事件乱序到达。
func current(reg *Registry, ev presenceEvent) bool {
	if reg == nil {
		return true
	}
	s, ok := reg.Get(ev.deviceID)
	return ok && s.ID() == ev.connID
}

func (p *Presence) bind(ctx context.Context, ev presenceEvent) error {
	key := keySessionPrefix + ev.deviceID
	now := time.Now()
	pipe := p.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"server_id", p.serverID,
		"conn_id", ev.connID,
		"listener", ev.listener,
		"remote", ev.remote,
		"since", ev.since.UnixMilli(),
		"last_seen", now.UnixMilli(),
	)
	pipe.Expire(ctx, key, p.ttl)
	pipe.SAdd(ctx, p.serverKey(), ev.deviceID)
	_, err := pipe.Exec(ctx)
	return err
}

// Refresh 刷新会话的 last_seen 与过期时间
func (p *Presence) Refresh(ctx context.Context, sessions []*Session) error {
	if len(sessions) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, s := range sessions {
		refreshScript.Eval(ctx, pipe, []string{keySessionPrefix + s.DeviceID()},
			s.ID(), s.LastActive().UnixMilli(), p.ttl.Milliseconds())
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Lookup 查询设备在线记录；不存在返回 redis.Nil
func (p *Presence) Lookup(ctx context.Context, deviceID string) (*PresenceRecord, error) {
	vals, err := p.client.HGetAll(ctx, keySessionPrefix+deviceID).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, redis.Nil
	}
	rec := &PresenceRecord{
		DeviceID: deviceID,
		ServerID: vals["server_id"],
		ConnID:   vals["conn_id"],
		Listener: vals["listener"],
		Remote:   vals["remote"],
	}
	rec.Since = parseMillis(vals["since"])
	rec.LastSeen = parseMillis(vals["last_seen"])
	return rec, nil
}

// Cleanup 删除本实例登记的所有在线记录（用于优雅关闭）
func (p *Presence) Cleanup(ctx context.Context) error {
	ids, err := p.client.SMembers(ctx, p.serverKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, id := range ids {
		key := keySessionPrefix + id
		owner, err := p.client.HGet(ctx, key, "server_id").Result()
		if err != nil {
			continue
		}
		if owner == p.serverID {
			p.client.Del(ctx, key)
		}
	}
	return p.client.Del(ctx, p.serverKey()).Err()
}

func (p *Presence) serverKey() string {
	return fmt.Sprintf("%s%s:devices", keyServerPrefix, p.serverID)
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
