// Package archive 异步归档原始报文。
// 分发路径只做非阻塞入队；队列满时丢弃并计数，写盘与写库在工作协程中完成，失败不影响连接。
package archive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/jt808-gateway/internal/jt808"
	"github.com/taoyao-code/jt808-gateway/internal/metrics"
)

// Record 一条待归档报文
type Record struct {
	DeviceID string
	MsgID    uint32
	Payload  []byte
	Time     time.Time
}

// Sink 归档目的地
type Sink interface {
	Name() string
	Write(ctx context.Context, rec Record) error
}

// Options 归档器参数
type Options struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.AppMetrics
}

// Archiver 实现 router.Archiver
type Archiver struct {
	queue   chan Record
	sinks   []Sink
	workers int
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.AppMetrics

	accepted atomic.Int64
	dropped  atomic.Int64
	written  atomic.Int64
	failed   atomic.Int64

	wg sync.WaitGroup
}

// New 创建归档器；需调用 Run 启动工作协程
func New(opts Options, sinks ...Sink) *Archiver {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 4096
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Archiver{
		queue:   make(chan Record, opts.QueueSize),
		sinks:   sinks,
		workers: opts.Workers,
		timeout: opts.WriteTimeout,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// Archive 非阻塞入队。payload 会被复制，调用方可复用缓冲
func (a *Archiver) Archive(deviceID string, msgID uint32, payload []byte, ts time.Time) {
	rec := Record{
		DeviceID: deviceID,
		MsgID:    msgID,
		Payload:  append([]byte(nil), payload...),
		Time:     ts,
	}
	select {
	case a.queue <- rec:
		a.accepted.Add(1)
	default:
		a.dropped.Add(1)
		a.metrics.Archived("queue", "dropped")
		a.logger.Debug("archive queue full, record dropped",
			zap.String("device_id", deviceID),
			zap.String("msg_id", jt808.FormatMsgID(msgID)))
	}
}

// Run 启动工作协程并阻塞到 ctx 取消；退出前写完队列中已有的记录
func (a *Archiver) Run(ctx context.Context) {
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go a.worker(ctx)
	}
	a.wg.Wait()
}

func (a *Archiver) worker(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case rec := <-a.queue:
			a.write(context.Background(), rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-a.queue:
					a.write(context.Background(), rec)
				default:
					return
				}
			}
		}
	}
}

func (a *Archiver) write(parent context.Context, rec Record) {
	for _, s := range a.sinks {
		ctx, cancel := context.WithTimeout(parent, a.timeout)
		err := s.Write(ctx, rec)
		cancel()
		if err != nil {
			a.failed.Add(1)
			a.metrics.Archived(s.Name(), "error")
			a.logger.Warn("archive write failed",
				zap.String("sink", s.Name()),
				zap.String("device_id", rec.DeviceID),
				zap.String("msg_id", jt808.FormatMsgID(rec.MsgID)),
				zap.Error(err))
			continue
		}
		a.written.Add(1)
		a.metrics.Archived(s.Name(), "ok")
	}
}

// Stats 归档统计
type Stats struct {
	Accepted int64 `json:"accepted"`
	Dropped  int64 `json:"dropped"`
	Written  int64 `json:"written"`
	Failed   int64 `json:"failed"`
	Queued   int   `json:"queued"`
}

// Stats 返回统计
func (a *Archiver) Stats() Stats {
	return Stats{
		Accepted: a.accepted.Load(),
		Dropped:  a.dropped.Load(),
		Written:  a.written.Load(),
		Failed:   a.failed.Load(),
		Queued:   len(a.queue),
	}
}
