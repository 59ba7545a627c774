package command

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DownlinkRequest NATS 下行命令。
// frame_hex 为完整的已编码帧；否则以 msg_id + body_hex 由网关编码。
type DownlinkRequest struct {
	DeviceID string `json:"device_id"`
	FrameHex string `json:"frame_hex,omitempty"`
	MsgID    uint16 `json:"msg_id,omitempty"`
	BodyHex  string `json:"body_hex,omitempty"`
}

// DownlinkReply 请求带回复主题时的应答
type DownlinkReply struct {
	Accepted bool   `json:"accepted"`
	Serial   uint16 `json:"serial,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NATSConsumer 订阅 <prefix>.<serverID> 上的下行命令
type NATSConsumer struct {
	nc      *nats.Conn
	d       *Dispatcher
	subject string
	queue   string
	logger  *zap.Logger
}

// Subject 本实例的下行主题
func Subject(prefix, serverID string) string {
	return strings.TrimSuffix(prefix, ".") + "." + serverID
}

// NewNATSConsumer 创建消费者；queueGroup 为空时普通订阅
func NewNATSConsumer(nc *nats.Conn, d *Dispatcher, subject, queueGroup string, logger *zap.Logger) *NATSConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSConsumer{nc: nc, d: d, subject: subject, queue: queueGroup, logger: logger}
}

// Run 订阅并阻塞直到 ctx 取消
func (c *NATSConsumer) Run(ctx context.Context) error {
	var (
		sub *nats.Subscription
		err error
	)
	if c.queue != "" {
		sub, err = c.nc.QueueSubscribe(c.subject, c.queue, c.onMessage)
	} else {
		sub, err = c.nc.Subscribe(c.subject, c.onMessage)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	c.logger.Info("nats downlink consumer started", zap.String("subject", c.subject))

	<-ctx.Done()
	_ = sub.Unsubscribe()
	c.logger.Info("nats downlink consumer stopped")
	return nil
}

func (c *NATSConsumer) onMessage(msg *nats.Msg) {
	reply := c.handle(msg.Data)
	if msg.Reply == "" {
		return
	}
	data, _ := json.Marshal(reply)
	if err := msg.Respond(data); err != nil {
		c.logger.Warn("nats reply failed", zap.Error(err))
	}
}

// handle 解析并下发一条命令
func (c *NATSConsumer) handle(data []byte) DownlinkReply {
	var req DownlinkRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.logger.Warn("invalid downlink message", zap.Error(err))
		return DownlinkReply{Error: err.Error()}
	}
	if req.DeviceID == "" {
		return DownlinkReply{Error: "device_id required"}
	}

	if req.FrameHex != "" {
		frame, err := hex.DecodeString(req.FrameHex)
		if err != nil {
			return DownlinkReply{Error: fmt.Sprintf("frame_hex: %v", err)}
		}
		if err := c.d.Deliver(SourceNATS, req.DeviceID, frame); err != nil {
			return c.rejected(req, err)
		}
		return DownlinkReply{Accepted: true}
	}

	if req.MsgID == 0 {
		return DownlinkReply{Error: "frame_hex or msg_id required"}
	}
	body, err := hex.DecodeString(req.BodyHex)
	if err != nil {
		return DownlinkReply{Error: fmt.Sprintf("body_hex: %v", err)}
	}
	serial, err := c.d.SendMessage(SourceNATS, req.DeviceID, req.MsgID, body)
	if err != nil {
		return c.rejected(req, err)
	}
	return DownlinkReply{Accepted: true, Serial: serial}
}

func (c *NATSConsumer) rejected(req DownlinkRequest, err error) DownlinkReply {
	if !errors.Is(err, ErrOffline) {
		c.logger.Warn("nats downlink failed",
			zap.String("device_id", req.DeviceID),
			zap.Error(err))
	}
	return DownlinkReply{Error: err.Error()}
}
