package codec

import "errors"

// MultiDecoder 同一连接上混合两种分帧：以魔数开头的数据包按长度字段切分，
// 其余按 0x7E 分隔切分。分帧方式只在帧边界（尚未进入分隔帧，或刚有一帧结束）时判定。
type MultiDecoder struct {
	spec    lengthSpec
	delim   *DelimiterDecoder
	pending []byte
	err     error
}

// NewMultiDecoder 创建混合解码器。maxLen 约束长度字段帧，delimMaxLen 约束分隔帧，
// 为 0 时分别取 AlarmFileMaxLength 与 DefaultMaxFrameLength。
func NewMultiDecoder(magic []byte, offset, width, maxLen, delimMaxLen int) (*MultiDecoder, error) {
	ls, err := newLengthSpec(magic, offset, width, maxLen)
	if err != nil {
		return nil, err
	}
	return &MultiDecoder{spec: ls, delim: NewDelimiterDecoder(delimMaxLen)}, nil
}

// Feed 追加数据并解出所有完整帧
func (d *MultiDecoder) Feed(p []byte) ([][]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.pending = append(d.pending, p...)

	var (
		frames [][]byte
		errs   []error
		i      int
	)
	for i < len(d.pending) {
		if d.delim.atBoundary() && d.pending[i] == d.spec.magic[0] && d.spec.prefixOK(d.pending[i:]) {
			n, err := d.spec.extract(d.pending[i:])
			if err != nil {
				d.err = err
				d.pending = nil
				errs = append(errs, err)
				return frames, errors.Join(errs...)
			}
			if n == 0 {
				break
			}
			fr := make([]byte, n)
			copy(fr, d.pending[i:i+n])
			frames = append(frames, fr)
			i += n
			continue
		}
		fr, err := d.delim.step(d.pending[i])
		i++
		if fr != nil {
			frames = append(frames, fr)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	d.pending = append(d.pending[:0], d.pending[i:]...)
	return frames, errors.Join(errs...)
}

// Buffered 返回未成帧的字节数
func (d *MultiDecoder) Buffered() int { return len(d.pending) + d.delim.Buffered() }

// Reset 清空状态
func (d *MultiDecoder) Reset() {
	d.pending = d.pending[:0]
	d.delim.Reset()
	d.err = nil
}
