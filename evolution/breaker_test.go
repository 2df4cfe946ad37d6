package evolution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostBreaker(t *testing.T) {
	b := NewCostBreaker(1.0)
	assert.True(t, b.Allow())
	assert.False(t, b.Add(0.6))
	assert.True(t, b.Allow())
	assert.True(t, b.Add(0.5), "crossing the limit trips once")
	assert.False(t, b.Allow())
	assert.False(t, b.Add(0.1), "already tripped")
	assert.InDelta(t, 1.2, b.Spent(), 1e-9)
}

func TestCostBreaker_Unlimited(t *testing.T) {
	b := NewCostBreaker(0)
	for i := 0; i < 100; i++ {
		b.Add(10)
	}
	assert.True(t, b.Allow())
}

func TestCostBreaker_Concurrent(t *testing.T) {
	b := NewCostBreaker(50)
	var wg sync.WaitGroup
	var mu sync.Mutex
	trips := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Add(1) {
				mu.Lock()
				trips++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, trips)
	assert.InDelta(t, 100.0, b.Spent(), 1e-9)
}

func TestStallWatchdog_FiresWithoutProgress(t *testing.T) {
	w := newStallWatchdog(30 * time.Millisecond)
	fired := make(chan time.Duration, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go w.Run(ctx, func(idle time.Duration) { fired <- idle })

	select {
	case idle := <-fired:
		assert.Greater(t, idle, 30*time.Millisecond)
	case <-ctx.Done():
		t.Fatal("watchdog did not fire")
	}
}

func TestStallWatchdog_TouchKeepsAlive(t *testing.T) {
	w := newStallWatchdog(60 * time.Millisecond)
	fired := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, func(time.Duration) { fired <- struct{}{} })
		close(done)
	}()

	for i := 0; i < 10; i++ {
		time.Sleep(15 * time.Millisecond)
		w.Touch()
	}
	cancel()
	<-done
	assert.Empty(t, fired)
}

func TestStallWatchdog_DisabledReturnsImmediately(t *testing.T) {
	w := newStallWatchdog(0)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), func(time.Duration) {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "disabled watchdog should return")
	}
}
