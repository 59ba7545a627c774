package command

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	redisstorage "github.com/taoyao-code/jt808-gateway/internal/storage/redis"
)

// CommandQueue 队列操作，由 storage/redis.CommandQueue 实现
type CommandQueue interface {
	Dequeue(ctx context.Context) (*redisstorage.QueuedCommand, error)
	MarkProcessing(ctx context.Context, cmd *redisstorage.QueuedCommand) error
	MarkDone(ctx context.Context, cmd *redisstorage.QueuedCommand) error
	MarkFailed(ctx context.Context, cmd *redisstorage.QueuedCommand, reason string) (bool, error)
}

// 每个节拍最多处理的命令数，避免单次占用过久
const queueBatch = 64

// QueueWorker 从 Redis 队列取出命令并下发
type QueueWorker struct {
	queue    CommandQueue
	d        *Dispatcher
	interval time.Duration
	maxRetry int
	logger   *zap.Logger

	sent    atomic.Int64
	retried atomic.Int64
	dead    atomic.Int64
}

// NewQueueWorker 创建 Worker；maxRetry 用于未指定重试次数的命令
func NewQueueWorker(q CommandQueue, d *Dispatcher, interval time.Duration, maxRetry int, logger *zap.Logger) *QueueWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &QueueWorker{queue: q, d: d, interval: interval, maxRetry: maxRetry, logger: logger}
}

// Run 阻塞运行直到 ctx 取消
func (w *QueueWorker) Run(ctx context.Context) {
	w.logger.Info("command queue worker started", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("command queue worker stopped")
			return
		case <-ticker.C:
			for i := 0; i < queueBatch; i++ {
				if !w.processOne(ctx) {
					break
				}
			}
		}
	}
}

// processOne 处理一条命令，队列为空或出错时返回 false
func (w *QueueWorker) processOne(ctx context.Context) bool {
	cmd, err := w.queue.Dequeue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("dequeue failed", zap.Error(err))
		}
		return false
	}
	if cmd == nil {
		return false
	}
	if cmd.MaxRetry <= 0 {
		cmd.MaxRetry = w.maxRetry
	}

	if err := w.queue.MarkProcessing(ctx, cmd); err != nil {
		w.logger.Error("mark processing failed",
			zap.String("cmd_id", cmd.ID),
			zap.Error(err))
		return false
	}

	if err := w.d.Deliver(SourceQueue, cmd.DeviceID, cmd.Frame); err != nil {
		w.markFailed(ctx, cmd, err.Error())
		return true
	}

	if err := w.queue.MarkDone(ctx, cmd); err != nil {
		w.logger.Error("mark done failed",
			zap.String("cmd_id", cmd.ID),
			zap.Error(err))
	}
	w.sent.Add(1)
	return true
}

func (w *QueueWorker) markFailed(ctx context.Context, cmd *redisstorage.QueuedCommand, reason string) {
	dead, err := w.queue.MarkFailed(ctx, cmd, reason)
	if err != nil {
		w.logger.Error("mark failed error",
			zap.String("cmd_id", cmd.ID),
			zap.Error(err))
		return
	}
	if dead {
		w.dead.Add(1)
		w.logger.Warn("command moved to dead queue",
			zap.String("cmd_id", cmd.ID),
			zap.String("device_id", cmd.DeviceID),
			zap.Int("retries", cmd.Retries),
			zap.String("error", reason))
		return
	}
	w.retried.Add(1)
	w.logger.Debug("command retrying",
		zap.String("cmd_id", cmd.ID),
		zap.String("device_id", cmd.DeviceID),
		zap.Int("retry", cmd.Retries))
}

// WorkerStats 统计
type WorkerStats struct {
	Sent    int64 `json:"sent"`
	Retried int64 `json:"retried"`
	Dead    int64 `json:"dead"`
}

// Stats 返回统计信息
func (w *QueueWorker) Stats() WorkerStats {
	return WorkerStats{
		Sent:    w.sent.Load(),
		Retried: w.retried.Load(),
		Dead:    w.dead.Load(),
	}
}
