package command

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/jt808-gateway/internal/config"
	"github.com/taoyao-code/jt808-gateway/internal/jt808"
)

// T1078Service 音视频命令下发
type T1078Service struct {
	d        *Dispatcher
	defaults config.T1078Defaults
	logger   *zap.Logger
	now      func() time.Time
}

// NewT1078Service 创建服务；defaults 填充请求中未给出的媒体服务器地址与通道
func NewT1078Service(d *Dispatcher, defaults config.T1078Defaults, logger *zap.Logger) *T1078Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &T1078Service{d: d, defaults: defaults, logger: logger, now: time.Now}
}

func (s *T1078Service) fillServer(ip *string, tcp, udp *int) {
	if *ip == "" {
		*ip = s.defaults.ServerIP
	}
	if tcp != nil && *tcp == 0 {
		*tcp = s.defaults.TCPPort
	}
	if udp != nil && *udp == 0 {
		*udp = s.defaults.UDPPort
	}
}

func (s *T1078Service) fillChannel(ch *int) {
	if *ch == 0 {
		*ch = s.defaults.Channel
	}
}

type encoder interface {
	Encode() ([]byte, error)
}

func (s *T1078Service) send(deviceID string, msgID uint16, req encoder) (uint16, error) {
	body, err := req.Encode()
	if err != nil {
		return 0, err
	}
	serial, err := s.d.SendMessage(SourceT1078, deviceID, msgID, body)
	if err != nil {
		s.logger.Warn("t1078 command not sent",
			zap.String("device_id", deviceID),
			zap.String("msg_id", jt808.FormatMsgID(uint32(msgID))),
			zap.Error(err))
		return 0, err
	}
	return serial, nil
}

// RealtimeAV 下发 0x9101
func (s *T1078Service) RealtimeAV(deviceID string, req RealtimeAV) (uint16, error) {
	s.fillServer(&req.ServerIP, &req.TCPPort, &req.UDPPort)
	s.fillChannel(&req.Channel)
	s.logger.Info("sending realtime av request",
		zap.String("device_id", deviceID),
		zap.String("server_ip", req.ServerIP),
		zap.Int("tcp_port", req.TCPPort),
		zap.Int("udp_port", req.UDPPort),
		zap.Int("channel", req.Channel),
		zap.Int("media_type", req.MediaType),
		zap.Int("stream_type", req.StreamType))
	return s.send(deviceID, jt808.MsgRealtimeAV, req)
}

// AVControl 下发 0x9102
func (s *T1078Service) AVControl(deviceID string, req AVControl) (uint16, error) {
	s.fillChannel(&req.Channel)
	return s.send(deviceID, jt808.MsgRealtimeAVCtrl, req)
}

// Playback 下发 0x9201
func (s *T1078Service) Playback(deviceID string, req Playback) (uint16, error) {
	s.fillServer(&req.ServerIP, &req.TCPPort, &req.UDPPort)
	s.fillChannel(&req.Channel)
	if req.EndTime == "" {
		req.EndTime = ZeroTime
	}
	s.logger.Info("sending playback request",
		zap.String("device_id", deviceID),
		zap.String("server_ip", req.ServerIP),
		zap.Int("tcp_port", req.TCPPort),
		zap.Int("channel", req.Channel),
		zap.Int("playback_mode", req.PlaybackMode),
		zap.String("start_time", req.StartTime))
	return s.send(deviceID, jt808.MsgPlayback, req)
}

// PlaybackControl 下发 0x9202
func (s *T1078Service) PlaybackControl(deviceID string, req PlaybackControl) (uint16, error) {
	s.fillChannel(&req.Channel)
	if req.Position == "" {
		req.Position = ZeroTime
	}
	return s.send(deviceID, jt808.MsgPlaybackCtrl, req)
}

// QueryResources 下发 0x9205
func (s *T1078Service) QueryResources(deviceID string, req QueryResources) (uint16, error) {
	s.fillChannel(&req.Channel)
	if req.StartTime == "" {
		req.StartTime = ZeroTime
	}
	if req.EndTime == "" {
		req.EndTime = ZeroTime
	}
	s.logger.Info("sending resource query",
		zap.String("device_id", deviceID),
		zap.Int("channel", req.Channel),
		zap.Int("media_type", req.MediaType),
		zap.String("start_time", req.StartTime),
		zap.String("end_time", req.EndTime))
	return s.send(deviceID, jt808.MsgQueryResources, req)
}

// FileUpload 下发 0x9206；起止时间无法解析时以当前时间代替
func (s *T1078Service) FileUpload(deviceID string, req FileUpload) (uint16, error) {
	s.fillServer(&req.ServerIP, nil, nil)
	if req.Port == 0 {
		req.Port = s.defaults.TCPPort
	}
	s.fillChannel(&req.Channel)
	if req.Path == "" {
		req.Path = "/upload"
	}
	now := s.now()
	req.StartTime = FormatBCDTime(ParseBCDTime(req.StartTime, now))
	req.EndTime = FormatBCDTime(ParseBCDTime(req.EndTime, now))
	s.logger.Info("sending file upload request",
		zap.String("device_id", deviceID),
		zap.String("server_ip", req.ServerIP),
		zap.Int("port", req.Port),
		zap.Int("channel", req.Channel),
		zap.Int("media_type", req.MediaType),
		zap.String("start_time", req.StartTime))
	return s.send(deviceID, jt808.MsgFileUpload, req)
}

// DeviceDetail 在线设备详情
type DeviceDetail struct {
	Connected   bool      `json:"connected"`
	ClientID    string    `json:"clientId"`
	Listener    string    `json:"listener"`
	RemoteAddr  string    `json:"remoteAddr"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastActive  time.Time `json:"lastActive"`
}

// ConnectedDevices 在线设备列表
type ConnectedDevices struct {
	TotalDevices  int                     `json:"totalDevices"`
	DeviceDetails map[string]DeviceDetail `json:"deviceDetails"`
	Devices       []string                `json:"devices"`
}

// ConnectedDevices 当前注册表中的全部设备
func (s *T1078Service) ConnectedDevices() ConnectedDevices {
	sessions := s.d.Registry().All()
	out := ConnectedDevices{
		TotalDevices:  len(sessions),
		DeviceDetails: make(map[string]DeviceDetail, len(sessions)),
		Devices:       make([]string, 0, len(sessions)),
	}
	for _, sess := range sessions {
		info := sess.Snapshot()
		out.DeviceDetails[info.DeviceID] = DeviceDetail{
			Connected:   true,
			ClientID:    info.DeviceID,
			Listener:    info.Listener,
			RemoteAddr:  info.RemoteAddr,
			ConnectedAt: info.ConnectedAt,
			LastActive:  info.LastActive,
		}
		out.Devices = append(out.Devices, info.DeviceID)
	}
	sort.Strings(out.Devices)
	return out
}
