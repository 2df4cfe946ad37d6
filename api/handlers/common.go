package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/BaSui01/evoflow/tracker"
	"github.com/BaSui01/evoflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Kind      string `json:"kind,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Action    string `json:"action,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// 接口层自身的错误码
const (
	ErrInvalidRequest types.ErrorCode = "INVALID_REQUEST"
	ErrNotFound       types.ErrorCode = "NOT_FOUND"
	ErrInternal       types.ErrorCode = "INTERNAL_ERROR"
)

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 头已写出，编码失败只能放弃
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError 写入错误响应；非 types.Error 按内部错误处理
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status := statusFor(err)

	info := &ErrorInfo{Code: string(ErrInternal), Message: "internal error"}
	if e, ok := types.AsError(err); ok {
		info = &ErrorInfo{
			Kind:      string(e.Kind),
			Code:      string(e.Code),
			Message:   e.Message,
			Action:    e.Action,
			Retryable: e.Retryable,
		}
	}
	if status == http.StatusNotFound {
		info.Code = string(ErrNotFound)
	}

	if logger != nil {
		level := logger.Warn
		if status >= http.StatusInternalServerError {
			level = logger.Error
		}
		level("API error",
			zap.String("code", info.Code),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	WriteJSON(w, status, Response{
		Success:   false,
		Error:     info,
		Timestamp: time.Now(),
	})
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string) {
	WriteJSON(w, status, Response{
		Success:   false,
		Error:     &ErrorInfo{Code: string(code), Message: message},
		Timestamp: time.Now(),
	})
}

// =============================================================================
// 🔄 错误到 HTTP 状态码映射
// =============================================================================

func statusFor(err error) int {
	if errors.Is(err, tracker.ErrNotFound) {
		return http.StatusNotFound
	}
	switch types.KindOf(err) {
	case types.KindWorkflowConfiguration:
		return http.StatusBadRequest
	case types.KindRaceCondition, types.KindStateManagement:
		return http.StatusConflict
	case types.KindRunTracking:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap 供 http.ResponseController 与 WebSocket 握手取得底层连接
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack 透传给底层连接，WebSocket 升级需要
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying response writer does not support hijacking")
	}
	rw.Written = true
	return hj.Hijack()
}
