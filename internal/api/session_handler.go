package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taoyao-code/jt808-gateway/internal/router"
	"github.com/taoyao-code/jt808-gateway/internal/session"
	pgstorage "github.com/taoyao-code/jt808-gateway/internal/storage/pg"
)

// PresenceLookup 跨实例在线查询
type PresenceLookup interface {
	Lookup(ctx context.Context, deviceID string) (*session.PresenceRecord, error)
}

// ArchiveReader 归档记录查询
type ArchiveReader interface {
	Recent(ctx context.Context, deviceID string, limit int) ([]pgstorage.ArchiveRow, error)
}

// SessionHandler 会话与归档查询接口
type SessionHandler struct {
	reg      *session.Registry
	router   *router.Router
	presence PresenceLookup // 可为空
	archive  ArchiveReader  // 可为空
	logger   *zap.Logger
}

// NewSessionHandler presence 与 archive 可为空
func NewSessionHandler(reg *session.Registry, rt *router.Router, presence PresenceLookup, archive ArchiveReader, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{reg: reg, router: rt, presence: presence, archive: archive, logger: logger}
}

// ListSessions 本实例全部会话
// @Summary 查询本实例会话列表
// @Tags 会话
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} Result{data=[]session.Info}
// @Router /api/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	all := h.reg.All()
	infos := make([]session.Info, 0, len(all))
	for _, s := range all {
		infos = append(infos, s.Snapshot())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].DeviceID < infos[j].DeviceID })
	ok(c, infos)
}

// GetSession 查询设备会话；本实例没有时查询在线镜像
// @Summary 查询设备会话状态
// @Tags 会话
// @Produce json
// @Security ApiKeyAuth
// @Param deviceId path string true "设备ID"
// @Success 200 {object} Result
// @Failure 404 {object} Result
// @Router /api/sessions/{deviceId} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	id := c.Param("deviceId")
	if s, found := h.reg.Get(id); found {
		ok(c, gin.H{"online": true, "local": true, "session": s.Snapshot()})
		return
	}
	if h.presence != nil {
		rec, err := h.presence.Lookup(c.Request.Context(), id)
		switch {
		case err == nil:
			ok(c, gin.H{"online": true, "local": false, "presence": rec})
			return
		case !errors.Is(err, redis.Nil):
			h.logger.Warn("presence lookup failed", zap.String("device_id", id), zap.Error(err))
		}
	}
	fail(c, http.StatusNotFound, CodeNotFound, "device not connected: "+id)
}

// KickSession 断开设备连接
// @Summary 断开设备连接
// @Tags 会话
// @Produce json
// @Security ApiKeyAuth
// @Param deviceId path string true "设备ID"
// @Success 200 {object} Result
// @Failure 404 {object} Result
// @Router /api/sessions/{deviceId} [delete]
func (h *SessionHandler) KickSession(c *gin.Context) {
	id := c.Param("deviceId")
	if !h.reg.Kick(id) {
		fail(c, http.StatusNotFound, CodeNotFound, "device not connected: "+id)
		return
	}
	h.logger.Info("session kicked via api", zap.String("device_id", id))
	ok(c, gin.H{"device_id": id})
}

// RecentArchive 设备最近的归档记录
// @Summary 查询设备最近归档的原始帧
// @Tags 归档
// @Produce json
// @Security ApiKeyAuth
// @Param deviceId path string true "设备ID"
// @Param limit query int false "条数(默认100)"
// @Success 200 {object} Result{data=[]pgstorage.ArchiveRow}
// @Router /api/archive/{deviceId} [get]
func (h *SessionHandler) RecentArchive(c *gin.Context) {
	if h.archive == nil {
		fail(c, http.StatusNotImplemented, CodeOperationFailed, "database archive disabled")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	rows, err := h.archive.Recent(c.Request.Context(), c.Param("deviceId"), limit)
	if err != nil {
		h.logger.Error("archive query failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	ok(c, rows)
}

// Routes 路由表
// @Summary 查询消息路由表
// @Tags 会话
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} Result{data=[]router.RouteInfo}
// @Router /api/routes [get]
func (h *SessionHandler) Routes(c *gin.Context) {
	ok(c, h.router.Routes())
}
