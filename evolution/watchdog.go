package evolution

import (
	"context"
	"sync/atomic"
	"time"
)

// stallWatchdog 在超过阈值没有完成新的一代时触发回调，只触发一次
type stallWatchdog struct {
	threshold time.Duration
	last      atomic.Int64
	now       func() time.Time
}

func newStallWatchdog(threshold time.Duration) *stallWatchdog {
	w := &stallWatchdog{threshold: threshold, now: time.Now}
	w.Touch()
	return w
}

// Touch records forward progress.
func (w *stallWatchdog) Touch() {
	w.last.Store(w.now().UnixNano())
}

// Idle returns the time since the last progress.
func (w *stallWatchdog) Idle() time.Duration {
	return w.now().Sub(time.Unix(0, w.last.Load()))
}

// Run blocks until ctx is done or a stall is detected.
func (w *stallWatchdog) Run(ctx context.Context, onStall func(idle time.Duration)) {
	if w.threshold <= 0 {
		return
	}
	interval := w.threshold / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if idle := w.Idle(); idle > w.threshold {
				onStall(idle)
				return
			}
		}
	}
}
