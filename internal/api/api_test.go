package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/jt808-gateway/internal/api/middleware"
	"github.com/taoyao-code/jt808-gateway/internal/codec"
	"github.com/taoyao-code/jt808-gateway/internal/command"
	"github.com/taoyao-code/jt808-gateway/internal/config"
	"github.com/taoyao-code/jt808-gateway/internal/jt808"
	"github.com/taoyao-code/jt808-gateway/internal/router"
	"github.com/taoyao-code/jt808-gateway/internal/session"
	pgstorage "github.com/taoyao-code/jt808-gateway/internal/storage/pg"
	redisstorage "github.com/taoyao-code/jt808-gateway/internal/storage/redis"
)

type memConn struct {
	mu     sync.Mutex
	writes [][]byte
}

func (m *memConn) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, append([]byte(nil), p...))
	return len(p), nil
}
func (m *memConn) Close() error         { return nil }
func (m *memConn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 5000} }

func (m *memConn) lastMsgID(t *testing.T) uint16 {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.writes)
	frames, err := codec.NewDelimiterDecoder(0).Feed(m.writes[len(m.writes)-1])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	msg, err := jt808.Parse(frames[0])
	require.NoError(t, err)
	return msg.MsgID
}

type fakePresence struct{ rec *session.PresenceRecord }

func (f fakePresence) Lookup(_ context.Context, id string) (*session.PresenceRecord, error) {
	if f.rec == nil || f.rec.DeviceID != id {
		return nil, redis.Nil
	}
	return f.rec, nil
}

type fakeArchive struct{}

func (fakeArchive) Recent(_ context.Context, id string, limit int) ([]pgstorage.ArchiveRow, error) {
	return []pgstorage.ArchiveRow{{ID: 1, DeviceID: id, MsgID: jt808.MsgAVProperties, ReceivedAt: time.Now()}}, nil
}

type fakeQueue struct {
	cmds []*redisstorage.QueuedCommand
}

func (f *fakeQueue) Enqueue(_ context.Context, cmd *redisstorage.QueuedCommand) error {
	cmd.ID = "q-1"
	f.cmds = append(f.cmds, cmd)
	return nil
}

func (f *fakeQueue) Stats(context.Context) (redisstorage.QueueStats, error) {
	return redisstorage.QueueStats{Pending: int64(len(f.cmds))}, nil
}

type env struct {
	engine *gin.Engine
	reg    *session.Registry
	conn   *memConn
	queue  *fakeQueue
}

const testKey = "sk_test_0123456789"

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := session.NewRegistry(nil)
	conn := &memConn{}
	s := session.New(conn, session.Options{Listener: "808-TCP"})
	require.True(t, s.Bind("13800138000", jt808.Header{Phone: "013800138000", Version: jt808.Version2013}))
	reg.Put("13800138000", s)

	rt, err := router.NewBuilder().Handle(jt808.MsgHeartbeat, router.Route{}).Build()
	require.NoError(t, err)

	d := command.NewDispatcher(reg, nil, nil)
	svc := command.NewT1078Service(d, config.T1078Defaults{ServerIP: "10.0.0.9", TCPPort: 8554, UDPPort: 8554, Channel: 1}, nil)
	q := &fakeQueue{}

	r := gin.New()
	RegisterRoutes(r, Handlers{
		T1078:    NewT1078Handler(svc, nil, t.TempDir(), true, nil),
		Sessions: NewSessionHandler(reg, rt, fakePresence{&session.PresenceRecord{DeviceID: "999", ServerID: "gw-2"}}, fakeArchive{}, nil),
		Commands: NewCommandHandler(d, q, nil),
	}, middleware.AuthConfig{Enabled: true, APIKeys: []string{testKey}}, nil)
	return &env{engine: r, reg: reg, conn: conn, queue: q}
}

func (e *env) do(method, path, body string) (*httptest.ResponseRecorder, Result) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", testKey)
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	var res Result
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	return w, res
}

func TestAuth(t *testing.T) {
	e := newEnv(t)

	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer wrong-key-000")
	w = httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	w = httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestT1078_RealtimeAV(t *testing.T) {
	e := newEnv(t)

	w, res := e.do(http.MethodPost, "/api/t1078/command/9101?deviceId=13800138000&channelNo=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CodeOK, res.Code)
	assert.Equal(t, "T9101 command sent successfully to device: 13800138000", res.Data)
	assert.Equal(t, uint16(jt808.MsgRealtimeAV), e.conn.lastMsgID(t))

	w, res = e.do(http.MethodPost, "/api/t1078/command/9101?deviceId=404", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Failed to send T9101 command - device not connected", res.Msg)

	w, _ = e.do(http.MethodPost, "/api/t1078/command/9101", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestT1078_OtherCommands(t *testing.T) {
	e := newEnv(t)

	cases := map[string]uint16{
		"/api/t1078/command/9102?deviceId=13800138000&command=2":                                   jt808.MsgRealtimeAVCtrl,
		"/api/t1078/command/9201?deviceId=13800138000&startTime=240101000000":                      jt808.MsgPlayback,
		"/api/t1078/command/9202?deviceId=13800138000":                                             jt808.MsgPlaybackCtrl,
		"/api/t1078/command/9205?deviceId=13800138000":                                             jt808.MsgQueryResources,
		"/api/t1078/command/9206?deviceId=13800138000&startTime=240101000000&endTime=240101010000": jt808.MsgFileUpload,
	}
	for path, id := range cases {
		w, res := e.do(http.MethodPost, path, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, CodeOK, res.Code)
		assert.Equal(t, id, e.conn.lastMsgID(t), path)
	}

	w, res := e.do(http.MethodPost, "/api/t1078/command/9201?deviceId=13800138000&startTime=bad", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidParam, res.Code)
}

func TestT1078_DevicesAndStatus(t *testing.T) {
	e := newEnv(t)

	w, res := e.do(http.MethodGet, "/api/t1078/command/devices", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := res.Data.(map[string]any)
	assert.EqualValues(t, 1, data["totalDevices"])
	assert.Equal(t, []any{"13800138000"}, data["devices"])

	w, res = e.do(http.MethodGet, "/api/t1078/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := res.Data.(map[string]any)
	assert.Equal(t, true, st["enabled"])
	assert.Equal(t, true, st["storageExists"])
	assert.Equal(t, true, st["storageWritable"])
}

func TestSessions(t *testing.T) {
	e := newEnv(t)

	w, res := e.do(http.MethodGet, "/api/sessions/13800138000", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, res.Data.(map[string]any)["local"])

	w, res = e.do(http.MethodGet, "/api/sessions/999", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, res.Data.(map[string]any)["local"])

	w, _ = e.do(http.MethodGet, "/api/sessions/000", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.do(http.MethodDelete, "/api/sessions/13800138000", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, e.reg.Count())

	w, _ = e.do(http.MethodDelete, "/api/sessions/13800138000", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, res = e.do(http.MethodGet, "/api/archive/13800138000?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, res.Data, 1)

	w, res = e.do(http.MethodGet, "/api/routes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, res.Data, 1)
}

func TestCommands(t *testing.T) {
	e := newEnv(t)

	payload, err := jt808.Build(jt808.Header{MsgID: jt808.MsgRealtimeAVCtrl, Phone: "013800138000"}, []byte{1, 0, 0, 0})
	require.NoError(t, err)

	// 未封帧内容由网关转义封帧
	w, _ := e.do(http.MethodPost, "/api/commands/13800138000", `{"frame":"`+hex.EncodeToString(payload)+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint16(jt808.MsgRealtimeAVCtrl), e.conn.lastMsgID(t))

	w, _ = e.do(http.MethodPost, "/api/commands/13800138000", `{"frame":"`+hex.EncodeToString(codec.Encode(payload))+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = e.do(http.MethodPost, "/api/commands/404", `{"frame":"7e0102037e"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.do(http.MethodPost, "/api/commands/13800138000", `{"frame":"zz"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, res := e.do(http.MethodPost, "/api/commands/13800138000", `{"frame":"7e0102037e","queue":true,"priority":5}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "q-1", res.Data.(map[string]any)["id"])
	require.Len(t, e.queue.cmds, 1)
	assert.Equal(t, 5, e.queue.cmds[0].Priority)

	w, res = e.do(http.MethodGet, "/api/commands/queue/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, res.Data.(map[string]any)["pending"])
}
