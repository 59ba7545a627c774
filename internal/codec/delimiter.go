package codec

import (
	"errors"
	"fmt"
)

const (
	MarkerByte byte = 0x7E // 标识位
	EscapeByte byte = 0x7D // 转义字节
	escMark    byte = 0x02 // 0x7E -> 0x7D 0x02
	escEsc     byte = 0x01 // 0x7D -> 0x7D 0x01
)

// DefaultMaxFrameLength 标识位[2] + 消息头[21] + 消息体[1023 * 2(转义预留)] + 校验码[1] + 标识位[2]
const DefaultMaxFrameLength = 2 + 21 + 1023*2 + 1 + 2

// DelimiterDecoder 0x7E 分隔 + 0x7D 转义的流式解码器。
// 输出的帧已反转义且不含标识位。
type DelimiterDecoder struct {
	maxFrameLen int
	buf         []byte
	inFrame     bool // 已见到起始标识位
	escaping    bool // 上一个字节是 0x7D
	dropping    bool // 当前帧已判定无效，丢弃至下一个标识位
	closed      bool // 上一个标识位刚结束一帧，之后尚无数据
	dropErr     error
}

// NewDelimiterDecoder 创建转义分隔解码器
func NewDelimiterDecoder(maxFrameLen int) *DelimiterDecoder {
	if maxFrameLen <= 0 {
		maxFrameLen = DefaultMaxFrameLength
	}
	return &DelimiterDecoder{maxFrameLen: maxFrameLen}
}

// Feed 追加数据并尽可能解出多帧
func (d *DelimiterDecoder) Feed(p []byte) ([][]byte, error) {
	var (
		frames [][]byte
		errs   []error
	)
	for _, b := range p {
		fr, err := d.step(b)
		if fr != nil {
			frames = append(frames, fr)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return frames, errors.Join(errs...)
}

// step 单字节状态迁移；返回完整帧或本帧被丢弃的原因
func (d *DelimiterDecoder) step(b byte) ([]byte, error) {
	if b == MarkerByte {
		return d.onMarker()
	}
	if !d.inFrame || d.dropping {
		// 帧外垃圾字节或已丢弃的帧
		return nil, nil
	}
	d.closed = false
	if d.escaping {
		d.escaping = false
		switch b {
		case escMark:
			b = MarkerByte
		case escEsc:
			b = EscapeByte
		default:
			d.drop(fmt.Errorf("%w: 0x7d 0x%02x", ErrBadEscape, b))
			return nil, nil
		}
	} else if b == EscapeByte {
		d.escaping = true
		return nil, nil
	}
	if len(d.buf) >= d.maxFrameLen {
		d.drop(fmt.Errorf("%w: limit %d", ErrFrameTooLong, d.maxFrameLen))
		return nil, nil
	}
	d.buf = append(d.buf, b)
	return nil, nil
}

func (d *DelimiterDecoder) onMarker() ([]byte, error) {
	if !d.inFrame {
		d.inFrame = true
		return nil, nil
	}
	if d.dropping {
		err := d.dropErr
		d.resetFrame()
		d.closed = true
		return nil, err
	}
	if d.escaping {
		d.resetFrame()
		d.closed = true
		return nil, fmt.Errorf("%w: 0x7d before marker", ErrBadEscape)
	}
	if len(d.buf) == 0 {
		// 连续两个标识位：空帧，第二个标识位作为下一帧的起始
		d.closed = false
		return nil, nil
	}
	fr := make([]byte, len(d.buf))
	copy(fr, d.buf)
	// 相邻帧可共用一个标识位：结束标识位同时是下一帧的起始
	d.resetFrame()
	d.closed = true
	return fr, nil
}

func (d *DelimiterDecoder) drop(err error) {
	d.dropping = true
	d.dropErr = err
	d.buf = d.buf[:0]
}

// resetFrame 丢弃当前帧内容，保持在帧内（标识位既结束也开始）
func (d *DelimiterDecoder) resetFrame() {
	d.buf = d.buf[:0]
	d.escaping = false
	d.dropping = false
	d.dropErr = nil
}

// atBoundary 处于帧外，或上一个标识位刚结束一帧且之后尚无数据
func (d *DelimiterDecoder) atBoundary() bool { return !d.inFrame || d.closed }

// Buffered 返回当前帧已缓冲的字节数
func (d *DelimiterDecoder) Buffered() int { return len(d.buf) }

// Reset 清空状态
func (d *DelimiterDecoder) Reset() {
	d.resetFrame()
	d.inFrame = false
	d.closed = false
}

// Escape 正向转义：0x7E -> 0x7D 0x02，0x7D -> 0x7D 0x01
func Escape(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/8+2)
	for _, b := range data {
		switch b {
		case MarkerByte:
			out = append(out, EscapeByte, escMark)
		case EscapeByte:
			out = append(out, EscapeByte, escEsc)
		default:
			out = append(out, b)
		}
	}
	return out
}

// Unescape 反转义，遇到非法转义返回 ErrBadEscape
func Unescape(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		b := data[i]
		if b != EscapeByte {
			out = append(out, b)
			continue
		}
		if i+1 >= len(data) {
			return nil, fmt.Errorf("%w: trailing 0x7d", ErrBadEscape)
		}
		i++
		switch data[i] {
		case escMark:
			out = append(out, MarkerByte)
		case escEsc:
			out = append(out, EscapeByte)
		default:
			return nil, fmt.Errorf("%w: 0x7d 0x%02x", ErrBadEscape, data[i])
		}
	}
	return out, nil
}

// Encode 转义并在首尾加上标识位，得到可直接写入连接的字节
func Encode(payload []byte) []byte {
	escaped := Escape(payload)
	out := make([]byte, 0, len(escaped)+2)
	out = append(out, MarkerByte)
	out = append(out, escaped...)
	return append(out, MarkerByte)
}
