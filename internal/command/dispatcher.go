// Package command 下行命令：按设备ID查找会话并同步写出。
// HTTP、Redis 队列与 NATS 三个入口最终都经过 Dispatcher。
package command

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/taoyao-code/jt808-gateway/internal/jt808"
	"github.com/taoyao-code/jt808-gateway/internal/metrics"
	"github.com/taoyao-code/jt808-gateway/internal/session"
)

// ErrOffline 设备不在线（未注册或会话已关闭）
var ErrOffline = errors.New("device not connected")

// 命令来源，用于指标与日志
const (
	SourceAPI   = "api"
	SourceHTTP  = "http"
	SourceQueue = "queue"
	SourceNATS  = "nats"
	SourceT1078 = "t1078"
)

// Dispatcher 下行命令分发
type Dispatcher struct {
	reg     *session.Registry
	metrics *metrics.AppMetrics
	logger  *zap.Logger
}

// NewDispatcher 创建分发器，metrics 可为 nil
func NewDispatcher(reg *session.Registry, m *metrics.AppMetrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{reg: reg, metrics: m, logger: logger}
}

// Registry 会话注册表
func (d *Dispatcher) Registry() *session.Registry { return d.reg }

// SendCommand 写出一帧已编码的数据。
// 设备不在线返回 false；仅当传输层接受写入时返回 true。
func (d *Dispatcher) SendCommand(deviceID string, frame []byte) bool {
	return d.Deliver(SourceAPI, deviceID, frame) == nil
}

// Send 以会话的下一个流水号与协议版本编码 808 消息并写出
func (d *Dispatcher) Send(deviceID string, msgID uint16, body []byte) (uint16, bool) {
	serial, err := d.SendMessage(SourceAPI, deviceID, msgID, body)
	return serial, err == nil
}

// Deliver 同 SendCommand，返回具体错误并按来源计数
func (d *Dispatcher) Deliver(source, deviceID string, frame []byte) error {
	s, ok := d.reg.Get(deviceID)
	if !ok {
		d.metrics.Command(source, "offline")
		return fmt.Errorf("%w: %s", ErrOffline, deviceID)
	}
	// 查找与写入之间会话可能已关闭，Write 在写锁内复查状态
	if err := s.Write(frame); err != nil {
		return d.fail(source, deviceID, err)
	}
	d.metrics.Command(source, "sent")
	d.logger.Debug("command sent",
		zap.String("source", source),
		zap.String("device_id", deviceID),
		zap.Int("bytes", len(frame)))
	return nil
}

// SendMessage 同 Send，返回具体错误并按来源计数
func (d *Dispatcher) SendMessage(source, deviceID string, msgID uint16, body []byte) (uint16, error) {
	s, ok := d.reg.Get(deviceID)
	if !ok {
		d.metrics.Command(source, "offline")
		return 0, fmt.Errorf("%w: %s", ErrOffline, deviceID)
	}
	serial, err := s.Send(msgID, body)
	if err != nil {
		return 0, d.fail(source, deviceID, err)
	}
	d.metrics.Command(source, "sent")
	d.logger.Info("command sent",
		zap.String("source", source),
		zap.String("device_id", deviceID),
		zap.String("msg_id", jt808.FormatMsgID(uint32(msgID))),
		zap.Uint16("serial", serial))
	return serial, nil
}

func (d *Dispatcher) fail(source, deviceID string, err error) error {
	if errors.Is(err, session.ErrSessionClosed) {
		d.metrics.Command(source, "offline")
		return fmt.Errorf("%w: %s", ErrOffline, deviceID)
	}
	d.metrics.Command(source, "failed")
	d.logger.Warn("command write failed",
		zap.String("source", source),
		zap.String("device_id", deviceID),
		zap.Error(err))
	return err
}
