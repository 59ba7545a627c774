package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/jt808-gateway/internal/config"
	"github.com/taoyao-code/jt808-gateway/internal/jt808"
)

func TestRealtimeAV_Encode(t *testing.T) {
	body, err := RealtimeAV{ServerIP: "1.2.3.4", TCPPort: 8554, UDPPort: 8555, Channel: 1, MediaType: 0, StreamType: 1}.Encode()
	require.NoError(t, err)
	want := []byte{7, '1', '.', '2', '.', '3', '.', '4', 0x21, 0x6A, 0x21, 0x6B, 1, 0, 1}
	assert.Equal(t, want, body)

	_, err = RealtimeAV{ServerIP: "1.2.3.4", TCPPort: 70000}.Encode()
	assert.ErrorIs(t, err, ErrInvalidParam)
	_, err = RealtimeAV{ServerIP: "1.2.3.4", Channel: 256}.Encode()
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestPlayback_Encode(t *testing.T) {
	body, err := Playback{
		ServerIP:  "h", TCPPort: 1, UDPPort: 2, Channel: 3, MediaType: 2, PlaybackMode: 4,
		StartTime: "240131235959", EndTime: ZeroTime,
	}.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		1, 'h', 0, 1, 0, 2, 3, 2, 0, 0, 4, 0,
		0x24, 0x01, 0x31, 0x23, 0x59, 0x59,
		0, 0, 0, 0, 0, 0,
	}, body)

	_, err = Playback{ServerIP: "h", StartTime: "2401", EndTime: ZeroTime}.Encode()
	assert.ErrorIs(t, err, ErrInvalidTime)
	_, err = Playback{ServerIP: "h", StartTime: "24013123595a", EndTime: ZeroTime}.Encode()
	assert.ErrorIs(t, err, ErrInvalidTime)
}

func TestControlBodies(t *testing.T) {
	body, err := AVControl{Channel: 2, Command: 1, CloseType: 0, StreamType: 1}.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 1, 0, 1}, body)

	body, err = PlaybackControl{Channel: 1, Command: 5, Speed: 0, Position: "240101000000"}.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 5, 0, 0x24, 0x01, 0x01, 0, 0, 0}, body)
}

func TestQueryResources_Encode(t *testing.T) {
	body, err := QueryResources{
		Channel:  1, StartTime: ZeroTime, EndTime: ZeroTime,
		WarnBit1: 0x01020304, WarnBit2: 0x0A0B0C0D, MediaType: 2,
	}.Encode()
	require.NoError(t, err)
	assert.Len(t, body, 1+6+6+8+3)
	assert.Equal(t, []byte{1, 2, 3, 4, 0x0A, 0x0B, 0x0C, 0x0D}, body[13:21])
	assert.Equal(t, []byte{2, 0, 0}, body[21:])
}

func TestFileUpload_EncodeGBK(t *testing.T) {
	body, err := FileUpload{
		ServerIP: "10.0.0.1", Port: 21, Username: "用户", Password: "pw", Path: "/up",
		Channel:  1, StartTime: "240101000000", EndTime: "240101010000", MediaType: 2, Condition: 7,
	}.Encode()
	require.NoError(t, err)

	user, err := EncodeGBK("用户")
	require.NoError(t, err)
	require.Len(t, user, 4)

	off := 1 + 8 + 2
	assert.Equal(t, byte(4), body[off])
	assert.Equal(t, user, body[off+1:off+5])
	assert.Equal(t, byte(7), body[len(body)-1])
}

func TestParseBCDTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.Local)

	got := ParseBCDTime("240131235959", now)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, 0, time.Local), got)
	assert.Equal(t, "240131235959", FormatBCDTime(got))

	assert.Equal(t, now, ParseBCDTime("", now))
	assert.Equal(t, now, ParseBCDTime("2401312359", now))
	assert.Equal(t, now, ParseBCDTime(ZeroTime, now))
	assert.Equal(t, now, ParseBCDTime("241301000000", now))
}

func newT1078(t *testing.T) (*T1078Service, *fakeConn) {
	d, conns := newDispatcher(t, "13912345678")
	svc := NewT1078Service(d, config.T1078Defaults{ServerIP: "35.194.18.237", TCPPort: 8554, UDPPort: 8554, Channel: 1}, nil)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 8, 0, 0, 0, time.Local) }
	return svc, conns["13912345678"]
}

func TestT1078Service_RealtimeAVDefaults(t *testing.T) {
	svc, conn := newT1078(t)

	_, err := svc.RealtimeAV("13912345678", RealtimeAV{})
	require.NoError(t, err)

	msgs := conn.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, uint16(jt808.MsgRealtimeAV), msgs[0].MsgID)
	want, _ := RealtimeAV{ServerIP: "35.194.18.237", TCPPort: 8554, UDPPort: 8554, Channel: 1}.Encode()
	assert.Equal(t, want, msgs[0].Body)

	_, err = svc.RealtimeAV("2002", RealtimeAV{})
	assert.ErrorIs(t, err, ErrOffline)
}

func TestT1078Service_FileUploadTimeFallback(t *testing.T) {
	svc, conn := newT1078(t)

	_, err := svc.FileUpload("13912345678", FileUpload{StartTime: "bogus", EndTime: "240101010000", MediaType: 2, Condition: 7})
	require.NoError(t, err)

	msgs := conn.messages(t)
	require.Len(t, msgs, 1)
	want, _ := FileUpload{
		ServerIP:  "35.194.18.237", Port: 8554, Path: "/upload", Channel: 1,
		StartTime: "250601080000", EndTime: "240101010000", MediaType: 2, Condition: 7,
	}.Encode()
	assert.Equal(t, want, msgs[0].Body)
}

func TestT1078Service_OtherCommands(t *testing.T) {
	svc, conn := newT1078(t)

	_, err := svc.Playback("13912345678", Playback{StartTime: "240101000000", MediaType: 2, PlaybackMode: 4})
	require.NoError(t, err)
	_, err = svc.QueryResources("13912345678", QueryResources{MediaType: 2})
	require.NoError(t, err)
	_, err = svc.AVControl("13912345678", AVControl{})
	require.NoError(t, err)
	_, err = svc.PlaybackControl("13912345678", PlaybackControl{Command: 2})
	require.NoError(t, err)

	_, err = svc.Playback("13912345678", Playback{StartTime: "x"})
	assert.ErrorIs(t, err, ErrInvalidTime)

	var ids []uint16
	for _, m := range conn.messages(t) {
		ids = append(ids, m.MsgID)
	}
	assert.Equal(t, []uint16{jt808.MsgPlayback, jt808.MsgQueryResources, jt808.MsgRealtimeAVCtrl, jt808.MsgPlaybackCtrl}, ids)
}

func TestT1078Service_ConnectedDevices(t *testing.T) {
	d, _ := newDispatcher(t, "1002", "1001")
	svc := NewT1078Service(d, config.T1078Defaults{}, nil)

	got := svc.ConnectedDevices()
	assert.Equal(t, 2, got.TotalDevices)
	assert.Equal(t, []string{"1001", "1002"}, got.Devices)
	assert.True(t, got.DeviceDetails["1001"].Connected)
	assert.Equal(t, "1001", got.DeviceDetails["1001"].ClientID)
	assert.Equal(t, "808-TCP", got.DeviceDetails["1001"].Listener)
}
