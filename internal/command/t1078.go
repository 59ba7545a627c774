package command

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

var (
	// ErrInvalidParam 命令参数超出协议字段范围
	ErrInvalidParam = errors.New("invalid command parameter")
	// ErrInvalidTime BCD 时间不是 12 位数字
	ErrInvalidTime = errors.New("invalid bcd time")
)

// ZeroTime 全零时间，表示不限
const ZeroTime = "000000000000"

const bcdTimeLayout = "060102150405"

// RealtimeAV 实时音视频传输请求 0x9101
type RealtimeAV struct {
	ServerIP   string `form:"serverIp" json:"serverIp"`
	TCPPort    int    `form:"tcpPort" json:"tcpPort"`
	UDPPort    int    `form:"udpPort" json:"udpPort"`
	Channel    int    `form:"channelNo" json:"channelNo"`
	MediaType  int    `form:"mediaType,default=0" json:"mediaType"`   // 0音视频 1视频 2双向对讲 3监听 4广播 5透传
	StreamType int    `form:"streamType,default=0" json:"streamType"` // 0主码流 1子码流
}

// Encode IP长度[1] IP[n] TCP端口[2] UDP端口[2] 通道[1] 数据类型[1] 码流类型[1]
func (r RealtimeAV) Encode() ([]byte, error) {
	w := &bodyWriter{}
	w.str(r.ServerIP)
	w.u16(r.TCPPort, "tcpPort")
	w.u16(r.UDPPort, "udpPort")
	w.u8(r.Channel, "channelNo")
	w.u8(r.MediaType, "mediaType")
	w.u8(r.StreamType, "streamType")
	return w.result()
}

// AVControl 音视频实时传输控制 0x9102
type AVControl struct {
	Channel    int `form:"channelNo" json:"channelNo"`
	Command    int `form:"command,default=0" json:"command"`     // 0关闭 1切换码流 2暂停 3恢复 4关闭对讲
	CloseType  int `form:"closeType,default=0" json:"closeType"` // 0关闭全部 1只关音频 2只关视频
	StreamType int `form:"streamType,default=0" json:"streamType"`
}

// Encode 通道[1] 控制指令[1] 关闭类型[1] 切换码流类型[1]
func (r AVControl) Encode() ([]byte, error) {
	w := &bodyWriter{}
	w.u8(r.Channel, "channelNo")
	w.u8(r.Command, "command")
	w.u8(r.CloseType, "closeType")
	w.u8(r.StreamType, "streamType")
	return w.result()
}

// Playback 远程录像回放请求 0x9201
type Playback struct {
	ServerIP      string `form:"serverIp" json:"serverIp"`
	TCPPort       int    `form:"tcpPort" json:"tcpPort"`
	UDPPort       int    `form:"udpPort" json:"udpPort"`
	Channel       int    `form:"channelNo" json:"channelNo"`
	MediaType     int    `form:"mediaType,default=2" json:"mediaType"` // 0音视频 1音频 2视频 3视频或音视频
	StreamType    int    `form:"streamType,default=0" json:"streamType"`
	StorageType   int    `form:"storageType,default=0" json:"storageType"`
	PlaybackMode  int    `form:"playbackMode,default=4" json:"playbackMode"` // 4 单帧上传
	PlaybackSpeed int    `form:"playbackSpeed,default=0" json:"playbackSpeed"`
	StartTime     string `form:"startTime" json:"startTime" binding:"required"`
	EndTime       string `form:"endTime,default=000000000000" json:"endTime"`
}

// Encode IP长度[1] IP[n] TCP端口[2] UDP端口[2] 通道[1] 音视频类型[1] 码流类型[1]
// 存储器类型[1] 回放方式[1] 倍数[1] 开始时间[6] 结束时间[6]
func (r Playback) Encode() ([]byte, error) {
	w := &bodyWriter{}
	w.str(r.ServerIP)
	w.u16(r.TCPPort, "tcpPort")
	w.u16(r.UDPPort, "udpPort")
	w.u8(r.Channel, "channelNo")
	w.u8(r.MediaType, "mediaType")
	w.u8(r.StreamType, "streamType")
	w.u8(r.StorageType, "storageType")
	w.u8(r.PlaybackMode, "playbackMode")
	w.u8(r.PlaybackSpeed, "playbackSpeed")
	w.bcdTime(r.StartTime, "startTime")
	w.bcdTime(r.EndTime, "endTime")
	return w.result()
}

// PlaybackControl 远程录像回放控制 0x9202
type PlaybackControl struct {
	Channel  int    `form:"channelNo" json:"channelNo"`
	Command  int    `form:"command,default=0" json:"command"` // 0开始 1暂停 2结束 3快进 4关键帧快退 5拖动 6关键帧播放
	Speed    int    `form:"speed,default=0" json:"speed"`
	Position string `form:"position,default=000000000000" json:"position"` // 拖动回放位置
}

// Encode 通道[1] 控制[1] 倍数[1] 拖动位置[6]
func (r PlaybackControl) Encode() ([]byte, error) {
	w := &bodyWriter{}
	w.u8(r.Channel, "channelNo")
	w.u8(r.Command, "command")
	w.u8(r.Speed, "speed")
	w.bcdTime(r.Position, "position")
	return w.result()
}

// QueryResources 查询资源列表 0x9205
type QueryResources struct {
	Channel     int    `form:"channelNo,default=1" json:"channelNo"`
	StartTime   string `form:"startTime,default=000000000000" json:"startTime"`
	EndTime     string `form:"endTime,default=000000000000" json:"endTime"`
	WarnBit1    uint32 `form:"warnBit1,default=0" json:"warnBit1"`
	WarnBit2    uint32 `form:"warnBit2,default=0" json:"warnBit2"`
	MediaType   int    `form:"mediaType,default=2" json:"mediaType"`
	StreamType  int    `form:"streamType,default=0" json:"streamType"`
	StorageType int    `form:"storageType,default=0" json:"storageType"`
}

// Encode 通道[1] 开始时间[6] 结束时间[6] 报警标志[8] 音视频类型[1] 码流类型[1] 存储器类型[1]
func (r QueryResources) Encode() ([]byte, error) {
	w := &bodyWriter{}
	w.u8(r.Channel, "channelNo")
	w.bcdTime(r.StartTime, "startTime")
	w.bcdTime(r.EndTime, "endTime")
	w.u32(r.WarnBit1)
	w.u32(r.WarnBit2)
	w.u8(r.MediaType, "mediaType")
	w.u8(r.StreamType, "streamType")
	w.u8(r.StorageType, "storageType")
	return w.result()
}

// FileUpload 文件上传指令 0x9206
type FileUpload struct {
	ServerIP    string `form:"serverIp" json:"serverIp"`
	Port        int    `form:"port" json:"port"`
	Username    string `form:"username" json:"username"`
	Password    string `form:"password" json:"password"`
	Path        string `form:"path,default=/upload" json:"path"`
	Channel     int    `form:"channelNo" json:"channelNo"`
	StartTime   string `form:"startTime" json:"startTime" binding:"required"`
	EndTime     string `form:"endTime" json:"endTime" binding:"required"`
	WarnBit1    uint32 `form:"warnBit1,default=0" json:"warnBit1"`
	WarnBit2    uint32 `form:"warnBit2,default=0" json:"warnBit2"`
	MediaType   int    `form:"mediaType,default=2" json:"mediaType"`
	StreamType  int    `form:"streamType,default=0" json:"streamType"`
	StorageType int    `form:"storageType,default=0" json:"storageType"`
	Condition   int    `form:"condition,default=7" json:"condition"` // 位0 WIFI 位1 LAN 位2 3G/4G
}

// Encode IP长度[1] IP[n] 端口[2] 用户名长度[1] 用户名[n] 密码长度[1] 密码[n] 路径长度[1] 路径[n]
// 通道[1] 开始时间[6] 结束时间[6] 报警标志[8] 音视频类型[1] 码流类型[1] 存储位置[1] 执行条件[1]
func (r FileUpload) Encode() ([]byte, error) {
	w := &bodyWriter{}
	w.str(r.ServerIP)
	w.u16(r.Port, "port")
	w.str(r.Username)
	w.str(r.Password)
	w.str(r.Path)
	w.u8(r.Channel, "channelNo")
	w.bcdTime(r.StartTime, "startTime")
	w.bcdTime(r.EndTime, "endTime")
	w.u32(r.WarnBit1)
	w.u32(r.WarnBit2)
	w.u8(r.MediaType, "mediaType")
	w.u8(r.StreamType, "streamType")
	w.u8(r.StorageType, "storageType")
	w.u8(r.Condition, "condition")
	return w.result()
}

// ParseBCDTime 解析 YYMMDDHHMMSS；长度不是 12 或无法解析时返回 now
func ParseBCDTime(s string, now time.Time) time.Time {
	if len(s) != 12 {
		return now
	}
	t, err := time.ParseInLocation(bcdTimeLayout, s, now.Location())
	if err != nil {
		return now
	}
	return t
}

// FormatBCDTime 格式化为 YYMMDDHHMMSS
func FormatBCDTime(t time.Time) string { return t.Format(bcdTimeLayout) }

// EncodeGBK UTF-8 转 GBK
func EncodeGBK(s string) ([]byte, error) {
	d, err := io.ReadAll(transform.NewReader(strings.NewReader(s), simplifiedchinese.GBK.NewEncoder()))
	if err != nil {
		return nil, err
	}
	return d, nil
}

// bodyWriter 顺序写入消息体，记录第一个错误
type bodyWriter struct {
	buf []byte
	err error
}

func (w *bodyWriter) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *bodyWriter) u8(v int, field string) {
	if v < 0 || v > 0xFF {
		w.fail(fmt.Errorf("%w: %s=%d", ErrInvalidParam, field, v))
		return
	}
	w.buf = append(w.buf, byte(v))
}

func (w *bodyWriter) u16(v int, field string) {
	if v < 0 || v > 0xFFFF {
		w.fail(fmt.Errorf("%w: %s=%d", ErrInvalidParam, field, v))
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
}

func (w *bodyWriter) u32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

// str 长度[1] + GBK 字符串
func (w *bodyWriter) str(s string) {
	b, err := EncodeGBK(s)
	if err != nil {
		w.fail(fmt.Errorf("%w: %q: %v", ErrInvalidParam, s, err))
		return
	}
	if len(b) > 0xFF {
		w.fail(fmt.Errorf("%w: %q longer than 255 bytes", ErrInvalidParam, s))
		return
	}
	w.buf = append(w.buf, byte(len(b)))
	w.buf = append(w.buf, b...)
}

// bcdTime 12 位数字压缩为 6 字节 BCD；全零表示不限
func (w *bodyWriter) bcdTime(s, field string) {
	if len(s) != 12 {
		w.fail(fmt.Errorf("%w: %s=%q", ErrInvalidTime, field, s))
		return
	}
	out := make([]byte, 6)
	for i := range out {
		hi, lo := s[i*2], s[i*2+1]
		if hi < '0' || hi > '9' || lo < '0' || lo > '9' {
			w.fail(fmt.Errorf("%w: %s=%q", ErrInvalidTime, field, s))
			return
		}
		out[i] = (hi-'0')<<4 | (lo - '0')
	}
	w.buf = append(w.buf, out...)
}

func (w *bodyWriter) result() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}
