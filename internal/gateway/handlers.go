package gateway

import (
	"context"

	"go.uber.org/zap"

	"github.com/taoyao-code/jt808-gateway/internal/jt808"
	"github.com/taoyao-code/jt808-gateway/internal/router"
	"github.com/taoyao-code/jt808-gateway/internal/session"
)

// Handlers 网关内置的上行消息处理
type Handlers struct {
	logger *zap.Logger
}

// NewHandlers 创建内置处理集合
func NewHandlers(logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{logger: logger}
}

// Register 注册全部内置路由。
// 基础 808 消息回复通用应答；T1078 上行归档后应答；报警附件数据包只归档。
func (h *Handlers) Register(b *router.Builder) *router.Builder {
	b.Handle(jt808.MsgTerminalRegister, router.Route{Handler: h.handleRegister, NoReply: true}).
		Handle(jt808.MsgTerminalAuth, router.Route{Handler: h.handleAuth}).
		Handle(jt808.MsgHeartbeat, router.Route{}).
		Handle(jt808.MsgTerminalLogout, router.Route{Handler: h.handleLogout}).
		Handle(jt808.MsgTerminalResponse, router.Route{Handler: h.handleTerminalResponse}).
		Handle(jt808.MsgLocationReport, router.Route{}).
		Handle(jt808.MsgLocationBatch, router.Route{}).
		Handle(jt808.MsgAlarmAttachmentInfo, router.Route{Archive: true}).
		Handle(jt808.MsgFileInfoUpload, router.Route{Archive: true}).
		Handle(jt808.MsgFileUploadDone, router.Route{Archive: true})

	// T1078
	for _, id := range []uint32{
		jt808.MsgAVProperties,
		jt808.MsgPassengerFlow,
		jt808.MsgAVResourceList,
		jt808.MsgFileUploadNotify,
		jt808.MsgRealtimeAVStatus,
	} {
		b.Handle(id, router.Route{Archive: true})
	}
	b.Handle(jt808.MsgAlarmFileData, router.Route{Handler: h.handleDataPacket, Archive: true, NoReply: true})
	return b
}

// handleRegister 终端注册：应答 0x8100，鉴权码取设备ID
func (h *Handlers) handleRegister(_ context.Context, s *session.Session, m *jt808.Message) error {
	body := jt808.RegisterResponse{
		Serial:   m.Serial,
		Result:   jt808.RegisterOK,
		AuthCode: s.DeviceID(),
	}.Encode()
	serial, err := s.Send(jt808.MsgRegisterResponse, body)
	if err != nil {
		return err
	}
	h.logger.Info("terminal registered",
		zap.String("device_id", s.DeviceID()),
		zap.Uint16("ack_serial", m.Serial),
		zap.Uint16("serial", serial))
	return nil
}

// handleAuth 鉴权码不做校验
func (h *Handlers) handleAuth(_ context.Context, s *session.Session, m *jt808.Message) error {
	h.logger.Info("terminal authenticated",
		zap.String("device_id", s.DeviceID()),
		zap.Int("auth_len", len(m.Body)))
	return nil
}

func (h *Handlers) handleLogout(_ context.Context, s *session.Session, _ *jt808.Message) error {
	h.logger.Info("terminal logout", zap.String("device_id", s.DeviceID()))
	return nil
}

func (h *Handlers) handleTerminalResponse(_ context.Context, s *session.Session, m *jt808.Message) error {
	r, err := jt808.ParseGeneralResponse(m.Body)
	if err != nil {
		return err
	}
	h.logger.Debug("terminal ack",
		zap.String("device_id", s.DeviceID()),
		zap.Uint16("ack_serial", r.Serial),
		zap.String("ack_id", jt808.FormatMsgID(uint32(r.ReplyID))),
		zap.Uint8("result", r.Result))
	return nil
}

func (h *Handlers) handleDataPacket(_ context.Context, s *session.Session, m *jt808.Message) error {
	h.logger.Debug("alarm file data",
		zap.String("conn_id", s.ID()),
		zap.String("file", m.Packet.Name),
		zap.Uint32("offset", m.Packet.Offset),
		zap.Uint32("length", m.Packet.Length))
	return nil
}
