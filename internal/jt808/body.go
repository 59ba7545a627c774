package jt808

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// 通用应答结果
const (
	ResultOK          byte = 0
	ResultFailed      byte = 1
	ResultBadMessage  byte = 2
	ResultUnsupported byte = 3
	ResultAlarmAck    byte = 4
)

// 注册应答结果
const (
	RegisterOK            byte = 0
	RegisterVehicleTaken  byte = 1
	RegisterNoVehicle     byte = 2
	RegisterTerminalTaken byte = 3
	RegisterNoTerminal    byte = 4
)

var ErrBodyShort = errors.New("jt808: body too short")

// GeneralResponse 通用应答体（0x8001 / 0x0001）
type GeneralResponse struct {
	Serial  uint16 // 应答流水号
	ReplyID uint16 // 应答ID
	Result  byte
}

// Encode 应答流水号[2] + 应答ID[2] + 结果[1]
func (r GeneralResponse) Encode() []byte {
	out := make([]byte, 0, 5)
	out = binary.BigEndian.AppendUint16(out, r.Serial)
	out = binary.BigEndian.AppendUint16(out, r.ReplyID)
	return append(out, r.Result)
}

// ParseGeneralResponse 解析终端通用应答 0x0001
func ParseGeneralResponse(body []byte) (GeneralResponse, error) {
	if len(body) < 5 {
		return GeneralResponse{}, fmt.Errorf("%w: general response %d", ErrBodyShort, len(body))
	}
	return GeneralResponse{
		Serial:  binary.BigEndian.Uint16(body[0:2]),
		ReplyID: binary.BigEndian.Uint16(body[2:4]),
		Result:  body[4],
	}, nil
}

// RegisterResponse 终端注册应答体 0x8100
type RegisterResponse struct {
	Serial   uint16
	Result   byte
	AuthCode string // 仅成功时携带
}

// Encode 应答流水号[2] + 结果[1] + 鉴权码[n]
func (r RegisterResponse) Encode() []byte {
	out := make([]byte, 0, 3+len(r.AuthCode))
	out = binary.BigEndian.AppendUint16(out, r.Serial)
	out = append(out, r.Result)
	if r.Result == RegisterOK {
		out = append(out, r.AuthCode...)
	}
	return out
}

// DataPacket 报警附件数据包（JSATL12 码流）
type DataPacket struct {
	Name   string
	Offset uint32
	Length uint32
	Data   []byte
}

const dataPacketHeaderLen = 4 + 50 + 4 + 4

var dataPacketMagic = []byte{0x30, 0x31, 0x63, 0x64}

// IsDataPacket 判断帧是否以数据包魔数开头
func IsDataPacket(frame []byte) bool {
	return len(frame) >= 4 && bytes.Equal(frame[:4], dataPacketMagic)
}

// ParseDataPacket 魔数[4] + 文件名称[50] + 数据偏移量[4] + 数据长度[4] + 数据体
func ParseDataPacket(frame []byte) (*DataPacket, error) {
	if len(frame) < dataPacketHeaderLen {
		return nil, fmt.Errorf("%w: data packet %d", ErrShortFrame, len(frame))
	}
	if !IsDataPacket(frame) {
		return nil, fmt.Errorf("data packet: bad magic % x", frame[:4])
	}
	p := &DataPacket{
		Name:   string(bytes.TrimRight(frame[4:54], "\x00 ")),
		Offset: binary.BigEndian.Uint32(frame[54:58]),
		Length: binary.BigEndian.Uint32(frame[58:62]),
	}
	data := frame[dataPacketHeaderLen:]
	if uint32(len(data)) != p.Length {
		return nil, fmt.Errorf("%w: data packet header %d actual %d", ErrBodyLength, p.Length, len(data))
	}
	p.Data = data
	return p, nil
}

// NewDataPacketMessage 包装为可路由的消息
func NewDataPacketMessage(frame []byte) (*Message, error) {
	p, err := ParseDataPacket(frame)
	if err != nil {
		return nil, err
	}
	return &Message{Body: p.Data, Raw: frame, Packet: p}, nil
}
