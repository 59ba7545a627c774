package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	commandQueueKey      = "jtg:cmd:queue"      // 待下发（Sorted Set，优先级高、入队早的先出）
	commandProcessingKey = "jtg:cmd:processing" // 处理中（Hash）
	commandDeadKey       = "jtg:cmd:dead"       // 死信（List）

	// MaxPriority 优先级上限（0-9，9最高）
	MaxPriority = 9

	priorityWeight = 1e13
)

// ErrInvalidCommand 队列中无法解析的成员
var ErrInvalidCommand = errors.New("invalid queued command")

// QueuedCommand 待下发到终端的完整帧（已转义，含标识位）
type QueuedCommand struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Frame     []byte    `json:"frame"`
	Priority  int       `json:"priority"`
	Retries   int       `json:"retries"`
	MaxRetry  int       `json:"max_retry"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QueueStats 队列统计
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Dead       int64 `json:"dead"`
}

// CommandQueue 基于Redis的下行命令队列，外部系统可直接写入
type CommandQueue struct {
	client     *redis.Client
	processTTL time.Duration
}

// NewCommandQueue 创建命令队列
func NewCommandQueue(client *redis.Client) *CommandQueue {
	return &CommandQueue{client: client, processTTL: time.Minute}
}

func score(cmd *QueuedCommand) float64 {
	p := min(max(cmd.Priority, 0), MaxPriority)
	return float64(MaxPriority-p)*priorityWeight + float64(cmd.CreatedAt.UnixMilli())
}

// Enqueue 入队；ID 与创建时间为空时自动补齐
func (q *CommandQueue) Enqueue(ctx context.Context, cmd *QueuedCommand) error {
	if cmd.DeviceID == "" || len(cmd.Frame) == 0 {
		return fmt.Errorf("%w: device id and frame required", ErrInvalidCommand)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now()
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return q.client.ZAdd(ctx, commandQueueKey, redis.Z{
		Score:  score(cmd),
		Member: cmd.ID + ":" + string(data),
	}).Err()
}

// Dequeue 原子出队一条命令；队列为空时返回 nil, nil
func (q *CommandQueue) Dequeue(ctx context.Context) (*QueuedCommand, error) {
	result, err := q.client.ZPopMin(ctx, commandQueueKey, 1).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	member, _ := result[0].Member.(string)
	return parseMember(member)
}

// MarkProcessing 标记处理中，带TTL防止进程崩溃后残留
func (q *CommandQueue) MarkProcessing(ctx context.Context, cmd *QueuedCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, commandProcessingKey, cmd.ID, data)
	pipe.Expire(ctx, commandProcessingKey, q.processTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// MarkDone 下发成功
func (q *CommandQueue) MarkDone(ctx context.Context, cmd *QueuedCommand) error {
	return q.client.HDel(ctx, commandProcessingKey, cmd.ID).Err()
}

// MarkFailed 下发失败：未超过重试上限则重新入队，否则进入死信。返回是否进入死信
func (q *CommandQueue) MarkFailed(ctx context.Context, cmd *QueuedCommand, reason string) (bool, error) {
	if err := q.client.HDel(ctx, commandProcessingKey, cmd.ID).Err(); err != nil {
		return false, err
	}

	cmd.Retries++
	cmd.UpdatedAt = time.Now()
	if cmd.Retries < cmd.MaxRetry {
		return false, q.Enqueue(ctx, cmd)
	}

	data, err := json.Marshal(map[string]any{
		"command":   cmd,
		"error":     reason,
		"failed_at": cmd.UpdatedAt,
	})
	if err != nil {
		return true, err
	}
	return true, q.client.LPush(ctx, commandDeadKey, data).Err()
}

// Stats 队列统计
func (q *CommandQueue) Stats(ctx context.Context) (QueueStats, error) {
	pipe := q.client.Pipeline()
	pending := pipe.ZCard(ctx, commandQueueKey)
	processing := pipe.HLen(ctx, commandProcessingKey)
	dead := pipe.LLen(ctx, commandDeadKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return QueueStats{}, err
	}
	return QueueStats{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Dead:       dead.Val(),
	}, nil
}

// 成员格式: "ID:JSON"
func parseMember(member string) (*QueuedCommand, error) {
	_, data, ok := strings.Cut(member, ":")
	if !ok {
		return nil, ErrInvalidCommand
	}
	var cmd QueuedCommand
	if err := json.Unmarshal([]byte(data), &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return &cmd, nil
}
