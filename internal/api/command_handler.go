package api

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/jt808-gateway/internal/codec"
	"github.com/taoyao-code/jt808-gateway/internal/command"
	redisstorage "github.com/taoyao-code/jt808-gateway/internal/storage/redis"
)

// CommandEnqueuer 命令队列
type CommandEnqueuer interface {
	Enqueue(ctx context.Context, cmd *redisstorage.QueuedCommand) error
	Stats(ctx context.Context) (redisstorage.QueueStats, error)
}

// CommandRequest 原始帧下发请求
type CommandRequest struct {
	// 十六进制帧；不含 7E 标识位时按 808 消息内容转义封帧
	Frame    string `json:"frame" binding:"required"`
	Queue    bool   `json:"queue"`    // 经 Redis 队列异步下发
	Priority int    `json:"priority"` // 0-9，越大越先
}

// CommandHandler 原始帧下发接口
type CommandHandler struct {
	d      *command.Dispatcher
	queue  CommandEnqueuer // 可为空
	logger *zap.Logger
}

func NewCommandHandler(d *command.Dispatcher, queue CommandEnqueuer, logger *zap.Logger) *CommandHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandHandler{d: d, queue: queue, logger: logger}
}

// parseFrame 解析十六进制帧，未封帧的内容补齐转义与标识位
func parseFrame(s string) ([]byte, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("empty frame")
	}
	if raw[0] == codec.MarkerByte && raw[len(raw)-1] == codec.MarkerByte && len(raw) > 2 {
		return raw, nil
	}
	return codec.Encode(raw), nil
}

// Send 下发原始帧
// @Summary 向在线设备下发原始帧
// @Tags 指令
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param deviceId path string true "设备ID"
// @Param body body CommandRequest true "帧内容"
// @Success 200 {object} Result
// @Failure 404 {object} Result "设备不在线"
// @Router /api/commands/{deviceId} [post]
func (h *CommandHandler) Send(c *gin.Context) {
	id := c.Param("deviceId")
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidParam, err.Error())
		return
	}
	frame, err := parseFrame(req.Frame)
	if err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidParam, "invalid frame: "+err.Error())
		return
	}

	if req.Queue {
		if h.queue == nil {
			fail(c, http.StatusNotImplemented, CodeOperationFailed, "command queue disabled")
			return
		}
		cmd := &redisstorage.QueuedCommand{DeviceID: id, Frame: frame, Priority: req.Priority}
		if err := h.queue.Enqueue(c.Request.Context(), cmd); err != nil {
			h.logger.Error("enqueue command failed", zap.String("device_id", id), zap.Error(err))
			fail(c, http.StatusInternalServerError, CodeInternal, err.Error())
			return
		}
		c.JSON(http.StatusAccepted, Result{Code: CodeOK, Msg: "queued", Data: gin.H{"id": cmd.ID}})
		return
	}

	switch err := h.d.Deliver(command.SourceHTTP, id, frame); {
	case err == nil:
		ok(c, gin.H{"device_id": id, "bytes": len(frame)})
	case errors.Is(err, command.ErrOffline):
		fail(c, http.StatusNotFound, CodeOperationFailed, "device not connected: "+id)
	default:
		fail(c, http.StatusBadGateway, CodeOperationFailed, err.Error())
	}
}

// QueueStats 命令队列统计
// @Summary 查询命令队列统计
// @Tags 指令
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} Result{data=redisstorage.QueueStats}
// @Router /api/commands/queue/stats [get]
func (h *CommandHandler) QueueStats(c *gin.Context) {
	if h.queue == nil {
		fail(c, http.StatusNotImplemented, CodeOperationFailed, "command queue disabled")
		return
	}
	st, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	ok(c, st)
}
