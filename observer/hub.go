package observer

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDisposeAfter 运行结束后保留 Sink 的时长
const DefaultDisposeAfter = 5 * time.Minute

// Hub 按运行 ID 管理 Sink，运行结束后延迟释放
type Hub struct {
	mu           sync.Mutex
	sinks        map[string]*Sink
	timers       map[string]*time.Timer
	capacity     int
	disposeAfter time.Duration
	logger       *zap.Logger
}

// NewHub creates a hub. Zero values use the package defaults.
func NewHub(capacity int, disposeAfter time.Duration, logger *zap.Logger) *Hub {
	if disposeAfter <= 0 {
		disposeAfter = DefaultDisposeAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sinks:        make(map[string]*Sink),
		timers:       make(map[string]*time.Timer),
		capacity:     capacity,
		disposeAfter: disposeAfter,
		logger:       logger.With(zap.String("component", "observer_hub")),
	}
}

// Sink returns the run's sink, creating it on first use.
func (h *Hub) Sink(runID string) *Sink {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sinks[runID]; ok {
		return s
	}
	s := NewSink(h.capacity, h.logger)
	h.sinks[runID] = s
	return s
}

// Lookup returns an existing sink.
func (h *Hub) Lookup(runID string) (*Sink, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sinks[runID]
	return s, ok
}

// Release 安排在 disposeAfter 之后关闭并移除运行的 Sink
func (h *Hub) Release(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sinks[runID]; !ok {
		return
	}
	if t, ok := h.timers[runID]; ok {
		t.Stop()
	}
	h.timers[runID] = time.AfterFunc(h.disposeAfter, func() { h.dispose(runID) })
}

func (h *Hub) dispose(runID string) {
	h.mu.Lock()
	s, ok := h.sinks[runID]
	delete(h.sinks, runID)
	delete(h.timers, runID)
	h.mu.Unlock()
	if ok {
		s.Close()
		h.logger.Debug("observer sink disposed", zap.String("run_id", runID))
	}
}

// Close disposes every sink immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.sinks))
	for id := range h.sinks {
		ids = append(ids, id)
	}
	for _, t := range h.timers {
		t.Stop()
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.dispose(id)
	}
}

// Len returns the number of live sinks.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sinks)
}
