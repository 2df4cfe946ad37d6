package observer

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultCapacity 默认环形缓冲容量
const DefaultCapacity = 1000

// Sink 有界环形缓冲事件接收器。慢订阅者丢弃事件，不阻塞发送方。
type Sink struct {
	mu       sync.RWMutex
	buf      []Event
	next     int
	full     bool
	subs     map[uint64]chan Event
	nextSub  uint64
	closed   bool
	dropped  atomic.Int64
	capacity int
	logger   *zap.Logger
}

// NewSink creates a sink; capacity <= 0 uses DefaultCapacity.
func NewSink(capacity int, logger *zap.Logger) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		buf:      make([]Event, capacity),
		subs:     make(map[uint64]chan Event),
		capacity: capacity,
		logger:   logger.With(zap.String("component", "observer_sink")),
	}
}

// Emit 写入缓冲并扇出给订阅者；关闭后为 no-op
func (s *Sink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.buf[s.next] = e
	s.next = (s.next + 1) % s.capacity
	if s.next == 0 {
		s.full = true
	}

	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

// Snapshot returns buffered events oldest first.
func (s *Sink) Snapshot() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Sink) snapshotLocked() []Event {
	if !s.full {
		return append([]Event(nil), s.buf[:s.next]...)
	}
	out := make([]Event, 0, s.capacity)
	out = append(out, s.buf[s.next:]...)
	return append(out, s.buf[:s.next]...)
}

// Subscribe 订阅事件，先回放当前缓冲内容。buffer 小于回放量时按需扩大。
func (s *Sink) Subscribe(buffer int) (uint64, <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.snapshotLocked()
	if buffer < len(history)+1 {
		buffer = len(history) + 1
	}
	ch := make(chan Event, buffer)
	for _, e := range history {
		ch <- e
	}
	if s.closed {
		close(ch)
		return 0, ch
	}

	s.nextSub++
	id := s.nextSub
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe 取消订阅并关闭其通道
func (s *Sink) Unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// Close 关闭所有订阅，之后的 Emit 被忽略
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	if n := s.dropped.Load(); n > 0 {
		s.logger.Debug("sink closed with dropped events", zap.Int64("dropped", n))
	}
}

// Dropped returns how many events slow subscribers missed.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Len returns the number of buffered events.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.full {
		return s.capacity
	}
	return s.next
}
