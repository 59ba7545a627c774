package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/jt808-gateway/internal/archive"
	"github.com/taoyao-code/jt808-gateway/internal/command"
)

// T1078Handler T1078 指令与状态接口
type T1078Handler struct {
	svc      *command.T1078Service
	archiver *archive.Archiver // 可为空
	storage  string
	enabled  bool
	logger   *zap.Logger
}

// NewT1078Handler 创建 T1078 接口处理器
func NewT1078Handler(svc *command.T1078Service, archiver *archive.Archiver, storagePath string, enabled bool, logger *zap.Logger) *T1078Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &T1078Handler{
		svc:      svc,
		archiver: archiver,
		storage:  storagePath,
		enabled:  enabled,
		logger:   logger,
	}
}

// deviceParam 设备ID取自查询参数或表单
func deviceParam(c *gin.Context) string {
	if id := c.Query("deviceId"); id != "" {
		return id
	}
	return c.PostForm("deviceId")
}

// respondSend 按下发结果生成响应
func (h *T1078Handler) respondSend(c *gin.Context, name, deviceID string, err error) {
	switch {
	case err == nil:
		ok(c, fmt.Sprintf("%s command sent successfully to device: %s", name, deviceID))
	case errors.Is(err, command.ErrOffline):
		fail(c, http.StatusNotFound, CodeOperationFailed, fmt.Sprintf("Failed to send %s command - device not connected", name))
	case errors.Is(err, command.ErrInvalidParam), errors.Is(err, command.ErrInvalidTime):
		fail(c, http.StatusBadRequest, CodeInvalidParam, err.Error())
	default:
		h.logger.Error("t1078 command failed", zap.String("command", name), zap.String("device_id", deviceID), zap.Error(err))
		fail(c, http.StatusInternalServerError, CodeOperationFailed, fmt.Sprintf("Error sending %s command: %v", name, err))
	}
}

// bind 解析设备ID与请求参数，失败时已写出响应
func bind(c *gin.Context, req any) (string, bool) {
	deviceID := deviceParam(c)
	if deviceID == "" {
		fail(c, http.StatusBadRequest, CodeInvalidParam, "deviceId required")
		return "", false
	}
	if err := c.ShouldBind(req); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidParam, err.Error())
		return "", false
	}
	return deviceID, true
}

// RealtimeAV 实时音视频传输请求
// @Summary 下发 T9101 实时音视频传输请求
// @Tags T1078 指令
// @Produce json
// @Security ApiKeyAuth
// @Param deviceId query string true "设备ID"
// @Param serverIp query string false "媒体服务器IP"
// @Param tcpPort query int false "TCP端口"
// @Param udpPort query int false "UDP端口"
// @Param channelNo query int false "逻辑通道号"
// @Param mediaType query int false "数据类型"
// @Param streamType query int false "码流类型"
// @Success 200 {object} Result
// @Failure 404 {object} Result "设备不在线"
// @Router /api/t1078/command/9101 [post]
func (h *T1078Handler) RealtimeAV(c *gin.Context) {
	var req command.RealtimeAV
	deviceID, bound := bind(c, &req)
	if !bound {
		return
	}
	_, err := h.svc.RealtimeAV(deviceID, req)
	h.respondSend(c, "T9101", deviceID, err)
}

// AVControl 音视频实时传输控制
// @Summary 下发 T9102 音视频实时传输控制
// @Tags T1078 指令
// @Produce json
// @Security ApiKeyAuth
// @Param deviceId query string true "设备ID"
// @Param channelNo query int false "逻辑通道号"
// @Param command query int false "控制指令"
// @Param closeType query int false "关闭类型"
// @Param streamType query int false "切换码流类型"
// @Success 200 {object} Result
// @Router /api/t1078/command/9102 [post]
func (h *T1078Handler) AVControl(c *gin.Context) {
	var req command.AVControl
	deviceID, bound := bind(c, &req)
	if !bound {
		return
	}
	_, err := h.svc.AVControl(deviceID, req)
	h.respondSend(c, "T9102", deviceID, err)
}

// Playback 远程录像回放请求
// @Summary 下发 T9201 远程录像回放请求
// @Tags T1078 指令
// @Produce json
// @Security ApiKeyAuth
// @Param deviceId query string true "设备ID"
// @Param startTime query string true "开始时间 YYMMDDHHMMSS"
// @Param endTime query string false "结束时间 YYMMDDHHMMSS"
// @Success 200 {object} Result
// @Router /api/t1078/command/9201 [post]
func (h *T1078Handler) Playback(c *gin.Context) {
	var req command.Playback
	deviceID, bound := bind(c, &req)
	if !bound {
		return
	}
	_, err := h.svc.Playback(deviceID, req)
	h.respondSend(c, "T9201", deviceID, err)
}

// PlaybackControl 远程录像回放控制
// @Summary 下发 T9202 远程录像回放控制
// @Tags T1078 指令
// @Produce json
// @Security ApiKeyAuth
// @Param deviceId query string true "设备ID"
// @Success 200 {object} Result
// @Router /api/t1078/command/9202 [post]
func (h *T1078Handler) PlaybackControl(c *gin.Context) {
	var req command.PlaybackControl
	deviceID, bound := bind(c, &req)
	if !bound {
		return
	}
	_, err := h.svc.PlaybackControl(deviceID, req)
	h.respondSend(c, "T9202", deviceID, err)
}

// QueryResources 查询资源列表
// @Summary 下发 T9205 查询资源列表
// @Tags T1078 指令
// @Produce json
// @Security ApiKeyAuth
// @Param deviceId query string true "设备ID"
// @Param startTime query string false "开始时间 YYMMDDHHMMSS"
// @Param endTime query string false "结束时间 YYMMDDHHMMSS"
// @Success 200 {object} Result
// @Router /api/t1078/command/9205 [post]
func (h *T1078Handler) QueryResources(c *gin.Context) {
	var req command.QueryResources
	deviceID, bound := bind(c, &req)
	if !bound {
		return
	}
	_, err := h.svc.QueryResources(deviceID, req)
	h.respondSend(c, "T9205", deviceID, err)
}

// FileUpload 文件上传指令
// @Summary 下发 T9206 文件上传指令
// @Tags T1078 指令
// @Produce json
// @Security ApiKeyAuth
// @Param deviceId query string true "设备ID"
// @Param startTime query string true "开始时间 YYMMDDHHMMSS"
// @Param endTime query string true "结束时间 YYMMDDHHMMSS"
// @Success 200 {object} Result
// @Router /api/t1078/command/9206 [post]
func (h *T1078Handler) FileUpload(c *gin.Context) {
	var req command.FileUpload
	deviceID, bound := bind(c, &req)
	if !bound {
		return
	}
	_, err := h.svc.FileUpload(deviceID, req)
	h.respondSend(c, "T9206", deviceID, err)
}

// Devices 已连接设备
// @Summary 查询已连接设备
// @Tags T1078 指令
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} Result{data=command.ConnectedDevices}
// @Router /api/t1078/command/devices [get]
func (h *T1078Handler) Devices(c *gin.Context) {
	ok(c, h.svc.ConnectedDevices())
}

// T1078Status 归档目录状态与归档统计
type T1078Status struct {
	archive.Status
	Archive *archive.Stats `json:"archive,omitempty"`
}

// Status 归档状态
// @Summary 查询 T1078 数据归档状态
// @Tags T1078 状态
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} Result{data=T1078Status}
// @Router /api/t1078/status [get]
func (h *T1078Handler) Status(c *gin.Context) {
	st := T1078Status{Status: archive.CheckStorage(h.storage, h.enabled)}
	if h.archiver != nil {
		s := h.archiver.Stats()
		st.Archive = &s
	}
	ok(c, st)
}
