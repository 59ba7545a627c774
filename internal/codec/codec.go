// Package codec 负责终端字节流的分帧与下行帧编码。
//
// 两种分帧策略按监听端点选择：
//   - 转义分隔（0x7E 标识位 + 0x7D 转义），JT808/T1078 主通道使用；
//   - 魔数 + 长度字段，报警附件上传通道使用（可与转义分隔混用于同一连接）。
//
// 所有解码器都是纯内存状态机：Feed 追加任意大小的数据块并返回其中完整的帧，
// 从不阻塞，也不做任何 I/O。
package codec

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFrameTooLong 帧在出现结束标识位之前已超过最大长度，缓冲被丢弃并重新同步
	ErrFrameTooLong = errors.New("frame exceeds max length")
	// ErrBadEscape 非法转义序列（0x7D 之后不是 0x01/0x02），该帧被丢弃
	ErrBadEscape = errors.New("bad escape sequence")
	// ErrMalformed 长度字段帧魔数或长度非法；流已损坏，连接应关闭
	ErrMalformed = errors.New("malformed length-field frame")
)

// Decoder 流式解码器：处理半包/粘包
type Decoder interface {
	// Feed 追加数据并返回本次可解出的全部完整帧。
	// 可恢复错误与已解出的帧同时返回；ErrMalformed 为致命错误。
	Feed(p []byte) ([][]byte, error)
	// Buffered 返回尚未构成完整帧的缓冲字节数
	Buffered() int
	// Reset 清空内部状态
	Reset()
}

// Framing 分帧策略
type Framing string

const (
	FramingDelimiter   Framing = "delimiter"
	FramingLengthField Framing = "lengthfield"
	FramingMulti       Framing = "multi"
)

// Options 单个监听端点的分帧参数
type Options struct {
	Framing                 Framing
	MaxFrameLength          int
	Magic                   []byte // 长度字段帧魔数（4字节）
	LengthOffset            int    // 长度字段相对帧首的偏移
	LengthWidth             int    // 长度字段宽度：1/2/4
	DelimiterMaxFrameLength int    // 混合分帧时分隔帧的上限，此时 MaxFrameLength 只约束长度字段帧
}

// ParseFraming 解析配置中的分帧策略名称
func ParseFraming(s string) (Framing, error) {
	switch Framing(strings.ToLower(strings.TrimSpace(s))) {
	case "", FramingDelimiter:
		return FramingDelimiter, nil
	case FramingLengthField, "length-field", "length_field":
		return FramingLengthField, nil
	case FramingMulti:
		return FramingMulti, nil
	default:
		return "", fmt.Errorf("unknown framing %q", s)
	}
}

// NewDecoder 按配置创建解码器
func NewDecoder(o Options) (Decoder, error) {
	switch o.Framing {
	case "", FramingDelimiter:
		return NewDelimiterDecoder(o.MaxFrameLength), nil
	case FramingLengthField:
		return NewLengthFieldDecoder(o.Magic, o.LengthOffset, o.LengthWidth, o.MaxFrameLength)
	case FramingMulti:
		return NewMultiDecoder(o.Magic, o.LengthOffset, o.LengthWidth, o.MaxFrameLength, o.DelimiterMaxFrameLength)
	default:
		return nil, fmt.Errorf("unknown framing %q", o.Framing)
	}
}
