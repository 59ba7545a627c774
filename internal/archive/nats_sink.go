package archive

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Publisher 由 *nats.Conn 实现
type Publisher interface {
	Publish(subject string, data []byte) error
}

// UplinkEvent 发布到 NATS 的上行报文
type UplinkEvent struct {
	DeviceID   string    `json:"device_id"`
	MsgID      string    `json:"msg_id"`
	PayloadHex string    `json:"payload_hex"`
	ReceivedAt time.Time `json:"received_at"`
}

// NATSSink 把归档报文转发到 <prefix>.<msgId>，供下游消费
type NATSSink struct {
	pub    Publisher
	prefix string
}

// NewNATSSink 创建转发归档
func NewNATSSink(pub Publisher, prefix string) *NATSSink {
	return &NATSSink{pub: pub, prefix: strings.TrimSuffix(prefix, ".")}
}

func (n *NATSSink) Name() string { return "nats" }

// Subject 报文对应的主题
func (n *NATSSink) Subject(msgID uint32) string {
	return fmt.Sprintf("%s.%X", n.prefix, msgID)
}

// Write 发布一条记录
func (n *NATSSink) Write(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(UplinkEvent{
		DeviceID:   rec.DeviceID,
		MsgID:      fmt.Sprintf("0x%X", rec.MsgID),
		PayloadHex: hex.EncodeToString(rec.Payload),
		ReceivedAt: rec.Time,
	})
	if err != nil {
		return err
	}
	return n.pub.Publish(n.Subject(rec.MsgID), data)
}
