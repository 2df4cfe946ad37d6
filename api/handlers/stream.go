package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BaSui01/evoflow/api"
	"github.com/BaSui01/evoflow/observer"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// =============================================================================
// 📡 事件流 Handler
// =============================================================================

// StreamConfig 事件流配置
type StreamConfig struct {
	// 每个订阅者的通道缓冲
	Buffer int
	// 单条消息写超时
	WriteTimeout time.Duration
	// 允许的跨域 Origin 模式，空表示只接受同源
	OriginPatterns []string
}

// DefaultStreamConfig 返回默认事件流配置
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Buffer:       256,
		WriteTimeout: 10 * time.Second,
	}
}

// StreamHandler 将运行的观测事件通过 WebSocket 推送给客户端
type StreamHandler struct {
	hub    *observer.Hub
	config StreamConfig
	logger *zap.Logger
}

// NewStreamHandler 创建事件流处理器
func NewStreamHandler(hub *observer.Hub, config StreamConfig, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Buffer <= 0 {
		config.Buffer = DefaultStreamConfig().Buffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultStreamConfig().WriteTimeout
	}
	return &StreamHandler{
		hub:    hub,
		config: config,
		logger: logger.With(zap.String("component", "stream_handler")),
	}
}

// HandleSnapshot 处理 GET /runs/{runID}/events
func (h *StreamHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	sink, ok := h.hub.Lookup(runID)
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, ErrNotFound, "no live events for run "+runID)
		return
	}

	WriteSuccess(w, api.EventSnapshot{
		RunID:   runID,
		Events:  sink.Snapshot(),
		Dropped: sink.Dropped(),
	})
}

// HandleStream 处理 GET /runs/{runID}/stream（WebSocket）
//
// 连接建立后先回放缓冲，再实时推送；运行的 Sink 关闭时以正常关闭码结束。
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	sink, ok := h.hub.Lookup(runID)
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, ErrNotFound, "no live events for run "+runID)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.config.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	id, events := sink.Subscribe(h.config.Buffer)
	defer sink.Unsubscribe(id)

	// 客户端只读；CloseRead 在对端关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())
	log := h.logger.With(zap.String("run_id", runID))
	log.Debug("stream subscriber attached", zap.Uint64("subscriber", id))

	for {
		select {
		case <-ctx.Done():
			log.Debug("stream subscriber detached", zap.Error(ctx.Err()))
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "run stream closed")
				return
			}
			if err := h.write(ctx, conn, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Warn("stream write failed", zap.Error(err))
				}
				return
			}
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, ev observer.Event) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
