package jt808

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParse_2013(t *testing.T) {
	h := Header{MsgID: MsgHeartbeat, Phone: "13912345678", Serial: 7}
	frame, err := Build(h, nil)
	require.NoError(t, err)
	assert.Len(t, frame, 13)

	msg, err := Parse(frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(MsgHeartbeat), msg.MsgID)
	assert.Equal(t, Version2013, msg.Version)
	assert.Equal(t, "013912345678", msg.Phone)
	assert.Equal(t, "13912345678", msg.DeviceID())
	assert.Equal(t, uint16(7), msg.Serial)
	assert.Empty(t, msg.Body)
	assert.Equal(t, uint32(MsgHeartbeat), msg.Type())
}

func TestBuildParse_2019Subpackage(t *testing.T) {
	body := []byte{0x01, 0x7E, 0x7D, 0x02}
	h := Header{
		MsgID:           MsgLocationReport,
		Version:         Version2019,
		ProtocolVersion: 1,
		Phone:           "12345678901234567890",
		Serial:          0xFFFF,
		Subpackage:      true,
		PackageTotal:    3,
		PackageIndex:    2,
		Encryption:      1,
	}
	frame, err := Build(h, body)
	require.NoError(t, err)

	msg, err := Parse(frame)
	require.NoError(t, err)
	assert.Equal(t, Version2019, msg.Version)
	assert.Equal(t, byte(1), msg.ProtocolVersion)
	assert.Equal(t, "12345678901234567890", msg.Phone)
	assert.True(t, msg.Subpackage)
	assert.Equal(t, uint16(3), msg.PackageTotal)
	assert.Equal(t, uint16(2), msg.PackageIndex)
	assert.Equal(t, uint8(1), msg.Encryption)
	assert.Equal(t, body, msg.Body)
	assert.Equal(t, frame, msg.Raw)
}

func TestParse_Errors(t *testing.T) {
	frame, err := Build(Header{MsgID: MsgHeartbeat, Phone: "1"}, []byte{1, 2})
	require.NoError(t, err)

	bad := append([]byte(nil), frame...)
	bad[len(bad)-1] ^= 0xFF
	_, err = Parse(bad)
	assert.ErrorIs(t, err, ErrChecksum)

	_, err = Parse(frame[:5])
	assert.ErrorIs(t, err, ErrShortFrame)

	// 篡改消息体长度并重算校验码
	lied := append([]byte(nil), frame[:len(frame)-1]...)
	binary.BigEndian.PutUint16(lied[2:4], 5)
	lied = append(lied, Checksum(lied))
	_, err = Parse(lied)
	assert.ErrorIs(t, err, ErrBodyLength)
}

func TestBuild_Limits(t *testing.T) {
	_, err := Build(Header{Phone: "1"}, make([]byte, 1024))
	assert.ErrorIs(t, err, ErrBodyTooLong)

	_, err = Build(Header{Phone: "1234567890123"}, nil)
	assert.ErrorIs(t, err, ErrInvalidPhone)

	_, err = Build(Header{Phone: "13a"}, nil)
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

func TestBCD(t *testing.T) {
	b, err := StringToBCD("260101120000", 6)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x26, 0x01, 0x01, 0x12, 0x00, 0x00}, b)
	assert.Equal(t, "260101120000", BCDToString(b))
	assert.Equal(t, "12", BCDToString([]byte{0xF1, 0x2F}))
}

func TestDeviceID_AllZero(t *testing.T) {
	assert.Equal(t, "0", Header{Phone: "000000000000"}.DeviceID())
	assert.Equal(t, "", Header{}.DeviceID())
}

func TestGeneralResponse(t *testing.T) {
	r := GeneralResponse{Serial: 0x0102, ReplyID: MsgTerminalAuth, Result: ResultOK}
	body := r.Encode()
	assert.Equal(t, []byte{0x01, 0x02, 0x01, 0x02, 0x00}, body)

	got, err := ParseGeneralResponse(body)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = ParseGeneralResponse(body[:4])
	assert.ErrorIs(t, err, ErrBodyShort)
}

func TestRegisterResponse(t *testing.T) {
	ok := RegisterResponse{Serial: 1, Result: RegisterOK, AuthCode: "13912345678"}
	assert.Equal(t, append([]byte{0, 1, 0}, "13912345678"...), ok.Encode())

	fail := RegisterResponse{Serial: 1, Result: RegisterNoTerminal, AuthCode: "ignored"}
	assert.Equal(t, []byte{0, 1, RegisterNoTerminal}, fail.Encode())
}

func TestParseDataPacket(t *testing.T) {
	frame := append([]byte(nil), dataPacketMagic...)
	name := make([]byte, 50)
	copy(name, "00_64_6401_0_abc.jpg")
	frame = append(frame, name...)
	frame = binary.BigEndian.AppendUint32(frame, 128)
	frame = binary.BigEndian.AppendUint32(frame, 3)
	frame = append(frame, 7, 8, 9)

	msg, err := NewDataPacketMessage(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(MsgAlarmFileData), msg.Type())
	assert.Equal(t, "00_64_6401_0_abc.jpg", msg.Packet.Name)
	assert.Equal(t, uint32(128), msg.Packet.Offset)
	assert.Equal(t, []byte{7, 8, 9}, msg.Body)

	_, err = ParseDataPacket(frame[:len(frame)-1])
	assert.ErrorIs(t, err, ErrBodyLength)
	assert.False(t, IsDataPacket([]byte{0x7E}))
}

func TestCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, "终端心跳", c.Describe(MsgHeartbeat))
	assert.Equal(t, "unknown", c.Describe(0x0F0F))

	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("messages:\n  \"0x0F0F\": 自定义\n  \"0002\": heartbeat\n"), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "自定义", c.Describe(0x0F0F))
	assert.Equal(t, "heartbeat", c.Describe(MsgHeartbeat))
	assert.Equal(t, "终端注册", c.Describe(MsgTerminalRegister))

	assert.Equal(t, "0x0200", FormatMsgID(MsgLocationReport))
	assert.Equal(t, "0x30316364", FormatMsgID(MsgAlarmFileData))
}
