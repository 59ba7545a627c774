package jt808

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// 终端上行
const (
	MsgTerminalResponse    = 0x0001 // 终端通用应答
	MsgHeartbeat           = 0x0002 // 终端心跳
	MsgTerminalLogout      = 0x0003 // 终端注销
	MsgTerminalRegister    = 0x0100 // 终端注册
	MsgTerminalAuth        = 0x0102 // 终端鉴权
	MsgLocationReport      = 0x0200 // 位置信息汇报
	MsgLocationBatch       = 0x0704 // 定位数据批量上传
	MsgAlarmAttachmentInfo = 0x1210 // 报警附件信息消息
	MsgFileInfoUpload      = 0x1211 // 文件信息上传
	MsgFileUploadDone      = 0x1212 // 文件上传完成消息
)

// T1078 上行
const (
	MsgAVProperties     = 0x1003     // 终端上传音视频属性
	MsgPassengerFlow    = 0x1005     // 终端上传乘客流量
	MsgAVResourceList   = 0x1205     // 终端上传音视频资源列表
	MsgFileUploadNotify = 0x1206     // 文件上传完成通知
	MsgRealtimeAVStatus = 0x9105     // 实时音视频传输状态通知
	MsgAlarmFileData    = 0x30316364 // 实时音视频流及透传数据传输（报警附件数据包）
)

// 平台下行
const (
	MsgPlatformResponse = 0x8001 // 平台通用应答
	MsgRegisterResponse = 0x8100 // 终端注册应答
	MsgRealtimeAV       = 0x9101 // 实时音视频传输请求
	MsgRealtimeAVCtrl   = 0x9102 // 音视频实时传输控制
	MsgPlayback         = 0x9201 // 平台下发远程录像回放请求
	MsgPlaybackCtrl     = 0x9202 // 平台下发远程录像回放控制
	MsgQueryResources   = 0x9205 // 查询资源列表
	MsgFileUpload       = 0x9206 // 文件上传指令
)

var defaultCatalog = map[uint32]string{
	MsgTerminalResponse:    "终端通用应答",
	MsgHeartbeat:           "终端心跳",
	MsgTerminalLogout:      "终端注销",
	MsgTerminalRegister:    "终端注册",
	MsgTerminalAuth:        "终端鉴权",
	MsgLocationReport:      "位置信息汇报",
	MsgLocationBatch:       "定位数据批量上传",
	MsgAlarmAttachmentInfo: "报警附件信息消息",
	MsgFileInfoUpload:      "文件信息上传",
	MsgFileUploadDone:      "文件上传完成消息",
	MsgAVProperties:        "终端上传音视频属性",
	MsgPassengerFlow:       "终端上传乘客流量",
	MsgAVResourceList:      "终端上传音视频资源列表",
	MsgFileUploadNotify:    "文件上传完成通知",
	MsgRealtimeAVStatus:    "实时音视频传输状态通知",
	MsgAlarmFileData:       "实时音视频流及透传数据传输",
	MsgPlatformResponse:    "平台通用应答",
	MsgRegisterResponse:    "终端注册应答",
	MsgRealtimeAV:          "实时音视频传输请求",
	MsgRealtimeAVCtrl:      "音视频实时传输控制",
	MsgPlayback:            "平台下发远程录像回放请求",
	MsgPlaybackCtrl:        "平台下发远程录像回放控制",
	MsgQueryResources:      "查询资源列表",
	MsgFileUpload:          "文件上传指令",
}

// Catalog 消息ID到名称的映射，构建后只读
type Catalog struct {
	names map[uint32]string
}

// DefaultCatalog 内置消息名称表
func DefaultCatalog() *Catalog {
	names := make(map[uint32]string, len(defaultCatalog))
	for k, v := range defaultCatalog {
		names[k] = v
	}
	return &Catalog{names: names}
}

type catalogFile struct {
	Messages map[string]string `yaml:"messages"`
}

// LoadCatalog 读取 YAML 覆盖文件并与内置表合并；path 为空时返回内置表。
//
//	messages:
//	  "0x0200": 位置信息汇报
func LoadCatalog(path string) (*Catalog, error) {
	c := DefaultCatalog()
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for k, v := range f.Messages {
		id, err := ParseMsgID(k)
		if err != nil {
			return nil, err
		}
		c.names[id] = v
	}
	return c, nil
}

// Describe 返回消息名称，未知时返回 "unknown"
func (c *Catalog) Describe(id uint32) string {
	if c != nil {
		if n, ok := c.names[id]; ok {
			return n
		}
	}
	return "unknown"
}

// FormatMsgID 统一的消息ID展示形式
func FormatMsgID(id uint32) string {
	if id > 0xFFFF {
		return fmt.Sprintf("0x%08X", id)
	}
	return fmt.Sprintf("0x%04X", id)
}

// ParseMsgID 解析 "0x0200" / "0200" / "512" 形式的消息ID
func ParseMsgID(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	} else if len(s) == 4 {
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q: %w", s, err)
	}
	return uint32(v), nil
}
