package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 业务结果码
const (
	CodeOK              = 0
	CodeOperationFailed = 1 // 设备不在线或写入失败
	CodeInvalidParam    = 2
	CodeNotFound        = 3
	CodeInternal        = 5
)

// Result 统一响应体
type Result struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Result{Code: CodeOK, Msg: "success", Data: data})
}

func fail(c *gin.Context, status, code int, msg string) {
	c.JSON(status, Result{Code: code, Msg: msg})
}
