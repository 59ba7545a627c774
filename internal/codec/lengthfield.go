package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// 报警附件数据包：魔数[4] + 文件名称[50] + 数据偏移量[4] + 数据长度[4] + 数据体[n]
var AlarmFileMagic = []byte{0x30, 0x31, 0x63, 0x64}

const (
	AlarmFileLengthOffset = 58
	AlarmFileLengthWidth  = 4
	AlarmFileMaxLength    = 1024 * 65
)

// lengthSpec 长度字段帧的布局
type lengthSpec struct {
	magic  []byte
	offset int
	width  int
	max    int
}

func newLengthSpec(magic []byte, offset, width, maxLen int) (lengthSpec, error) {
	if len(magic) == 0 {
		magic = AlarmFileMagic
	}
	switch width {
	case 1, 2, 4:
	default:
		return lengthSpec{}, fmt.Errorf("length field width %d not supported", width)
	}
	if offset < len(magic) {
		return lengthSpec{}, fmt.Errorf("length offset %d overlaps magic", offset)
	}
	if maxLen <= 0 {
		maxLen = AlarmFileMaxLength
	}
	return lengthSpec{magic: append([]byte(nil), magic...), offset: offset, width: width, max: maxLen}, nil
}

func (ls lengthSpec) headerLen() int { return ls.offset + ls.width }

// prefixOK 已到达的字节与魔数前缀一致
func (ls lengthSpec) prefixOK(buf []byte) bool {
	n := min(len(buf), len(ls.magic))
	return bytes.Equal(buf[:n], ls.magic[:n])
}

// extract 从 buf 头部尝试取出一帧；返回帧长度，0 表示数据不足
func (ls lengthSpec) extract(buf []byte) (int, error) {
	if !ls.prefixOK(buf) {
		return 0, fmt.Errorf("%w: bad magic % x", ErrMalformed, buf[:min(len(buf), len(ls.magic))])
	}
	if len(buf) < ls.headerLen() {
		return 0, nil
	}
	field := buf[ls.offset:ls.headerLen()]
	var length uint64
	switch ls.width {
	case 1:
		length = uint64(field[0])
	case 2:
		length = uint64(binary.BigEndian.Uint16(field))
	case 4:
		length = uint64(binary.BigEndian.Uint32(field))
	}
	if length > uint64(ls.max) {
		return 0, fmt.Errorf("%w: length %d exceeds %d", ErrMalformed, length, ls.max)
	}
	total := ls.headerLen() + int(length)
	if len(buf) < total {
		return 0, nil
	}
	return total, nil
}

// LengthFieldDecoder 魔数 + 长度字段的流式解码器。
// 帧 = 头部(offset+width) + length 字节，按原样输出（含魔数）。
// 一旦遇到非法魔数或超长长度，解码器进入失败状态，后续 Feed 均返回同一错误。
type LengthFieldDecoder struct {
	spec lengthSpec
	buf  []byte
	err  error
}

// NewLengthFieldDecoder 创建长度字段解码器
func NewLengthFieldDecoder(magic []byte, offset, width, maxLen int) (*LengthFieldDecoder, error) {
	ls, err := newLengthSpec(magic, offset, width, maxLen)
	if err != nil {
		return nil, err
	}
	return &LengthFieldDecoder{spec: ls}, nil
}

// Feed 追加数据并解出所有完整帧
func (d *LengthFieldDecoder) Feed(p []byte) ([][]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.buf = append(d.buf, p...)

	var frames [][]byte
	for len(d.buf) > 0 {
		n, err := d.spec.extract(d.buf)
		if err != nil {
			d.err = err
			d.buf = nil
			return frames, err
		}
		if n == 0 {
			break
		}
		fr := make([]byte, n)
		copy(fr, d.buf[:n])
		frames = append(frames, fr)
		d.buf = append(d.buf[:0], d.buf[n:]...)
	}
	return frames, nil
}

// Buffered 返回未成帧的字节数
func (d *LengthFieldDecoder) Buffered() int { return len(d.buf) }

// Reset 清空缓冲与失败状态
func (d *LengthFieldDecoder) Reset() {
	d.buf = d.buf[:0]
	d.err = nil
}

// IsFatal 判断解码错误是否要求关闭连接
func IsFatal(err error) bool {
	return errors.Is(err, ErrMalformed)
}
