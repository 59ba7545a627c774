// Package jt808 实现 JT/T 808 消息头的解析与构建（2013/2019 版本），
// 以及网关需要应答或下发的少量消息体。
//
// 输入输出均为不含标识位、已反转义的帧内容；转义与分帧由 codec 包负责。
package jt808

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrShortFrame   = errors.New("jt808: frame too short")
	ErrChecksum     = errors.New("jt808: checksum mismatch")
	ErrBodyLength   = errors.New("jt808: body length mismatch")
	ErrBodyTooLong  = errors.New("jt808: body exceeds 1023 bytes")
	ErrInvalidPhone = errors.New("jt808: invalid terminal phone")
)

// Version 协议版本
type Version int

const (
	Version2013 Version = 2013
	Version2019 Version = 2019
)

func (v Version) String() string {
	switch v {
	case Version2019:
		return "2019"
	default:
		return "2013"
	}
}

const (
	maxBodyLen = 0x03FF

	propsLenMask     = 0x03FF
	propsEncryptMask = 0x1C00
	propsSubpackage  = 1 << 13
	propsVersionFlag = 1 << 14

	phoneLen2013 = 6
	phoneLen2019 = 10
)

// Header 消息头
type Header struct {
	MsgID           uint16
	BodyLen         int   // 解析时由消息体属性得到，构建时忽略
	Encryption      uint8 // 数据加密方式（3位）
	Subpackage      bool
	Version         Version
	ProtocolVersion byte   // 2019 版协议版本号
	Phone           string // 终端手机号（BCD 原始数字）
	Serial          uint16
	PackageTotal    uint16
	PackageIndex    uint16
}

// DeviceID 设备标识：去掉前导零的终端手机号
func (h Header) DeviceID() string {
	id := strings.TrimLeft(h.Phone, "0")
	if id == "" && h.Phone != "" {
		return "0"
	}
	return id
}

// Message 一条已解析的消息
type Message struct {
	Header
	Body   []byte
	Raw    []byte      // 完整帧（不含标识位、已反转义）
	Packet *DataPacket // 报警附件数据包（非 808 帧）时非空
}

// Type 路由使用的消息类型
func (m *Message) Type() uint32 {
	if m.Packet != nil {
		return MsgAlarmFileData
	}
	return uint32(m.MsgID)
}

// Checksum 计算异或校验码
func Checksum(data []byte) byte {
	var cs byte
	for _, b := range data {
		cs ^= b
	}
	return cs
}

// Parse 解析一帧 808 消息（含末尾校验码）
func Parse(frame []byte) (*Message, error) {
	// 消息ID[2] + 属性[2] + 手机号[6] + 流水号[2] + 校验码[1]
	if len(frame) < 13 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(frame))
	}
	content := frame[:len(frame)-1]
	if cs := Checksum(content); cs != frame[len(frame)-1] {
		return nil, fmt.Errorf("%w: want 0x%02x got 0x%02x", ErrChecksum, cs, frame[len(frame)-1])
	}

	var h Header
	h.MsgID = binary.BigEndian.Uint16(content[0:2])
	props := binary.BigEndian.Uint16(content[2:4])
	h.BodyLen = int(props & propsLenMask)
	h.Encryption = uint8((props & propsEncryptMask) >> 10)
	h.Subpackage = props&propsSubpackage != 0

	pos := 4
	if props&propsVersionFlag != 0 {
		h.Version = Version2019
		if len(content) < pos+1+phoneLen2019+2 {
			return nil, fmt.Errorf("%w: 2019 header", ErrShortFrame)
		}
		h.ProtocolVersion = content[pos]
		pos++
		h.Phone = BCDToString(content[pos : pos+phoneLen2019])
		pos += phoneLen2019
	} else {
		h.Version = Version2013
		h.Phone = BCDToString(content[pos : pos+phoneLen2013])
		pos += phoneLen2013
	}
	h.Serial = binary.BigEndian.Uint16(content[pos : pos+2])
	pos += 2

	if h.Subpackage {
		if len(content) < pos+4 {
			return nil, fmt.Errorf("%w: subpackage fields", ErrShortFrame)
		}
		h.PackageTotal = binary.BigEndian.Uint16(content[pos : pos+2])
		h.PackageIndex = binary.BigEndian.Uint16(content[pos+2 : pos+4])
		pos += 4
	}

	body := content[pos:]
	if len(body) != h.BodyLen {
		return nil, fmt.Errorf("%w: header %d actual %d", ErrBodyLength, h.BodyLen, len(body))
	}
	return &Message{Header: h, Body: body, Raw: frame}, nil
}

// Build 构建一帧 808 消息：消息头 + 消息体 + 校验码（未转义）
func Build(h Header, body []byte) ([]byte, error) {
	if len(body) > maxBodyLen {
		return nil, fmt.Errorf("%w: %d", ErrBodyTooLong, len(body))
	}
	phoneLen := phoneLen2013
	if h.Version == Version2019 {
		phoneLen = phoneLen2019
	}
	phone, err := StringToBCD(h.Phone, phoneLen)
	if err != nil {
		return nil, err
	}

	props := uint16(len(body)) | uint16(h.Encryption&0x07)<<10
	if h.Subpackage {
		props |= propsSubpackage
	}
	if h.Version == Version2019 {
		props |= propsVersionFlag
	}

	out := make([]byte, 0, 4+1+phoneLen+2+4+len(body)+1)
	out = binary.BigEndian.AppendUint16(out, h.MsgID)
	out = binary.BigEndian.AppendUint16(out, props)
	if h.Version == Version2019 {
		out = append(out, h.ProtocolVersion)
	}
	out = append(out, phone...)
	out = binary.BigEndian.AppendUint16(out, h.Serial)
	if h.Subpackage {
		out = binary.BigEndian.AppendUint16(out, h.PackageTotal)
		out = binary.BigEndian.AppendUint16(out, h.PackageIndex)
	}
	out = append(out, body...)
	return append(out, Checksum(out)), nil
}

// BCDToString BCD 转数字字符串，跳过非十进制半字节（填充位）
func BCDToString(bcd []byte) string {
	var sb strings.Builder
	sb.Grow(len(bcd) * 2)
	for _, b := range bcd {
		if hi := b >> 4; hi < 10 {
			sb.WriteByte('0' + hi)
		}
		if lo := b & 0x0F; lo < 10 {
			sb.WriteByte('0' + lo)
		}
	}
	return sb.String()
}

// StringToBCD 数字字符串转定长 BCD，不足左补零
func StringToBCD(s string, size int) ([]byte, error) {
	if len(s) > size*2 {
		return nil, fmt.Errorf("%w: %q longer than %d digits", ErrInvalidPhone, s, size*2)
	}
	s = strings.Repeat("0", size*2-len(s)) + s
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		hi, lo := s[i*2], s[i*2+1]
		if hi < '0' || hi > '9' || lo < '0' || lo > '9' {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPhone, s)
		}
		out[i] = (hi-'0')<<4 | (lo - '0')
	}
	return out, nil
}
