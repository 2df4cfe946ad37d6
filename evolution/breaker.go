package evolution

import "sync"

// CostBreaker 运行级别的费用熔断器。limit 为 0 表示不限制。
// 已放行的评估不受影响，熔断后只拒绝新的派发。
type CostBreaker struct {
	mu      sync.Mutex
	limit   float64
	spent   float64
	tripped bool
}

// NewCostBreaker creates a breaker with the given USD limit.
func NewCostBreaker(limit float64) *CostBreaker {
	return &CostBreaker{limit: limit}
}

// Add records spend and reports whether this call tripped the breaker.
func (b *CostBreaker) Add(usd float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spent += usd
	if b.limit > 0 && !b.tripped && b.spent >= b.limit {
		b.tripped = true
		return true
	}
	return false
}

// Allow reports whether new evaluations may be dispatched.
func (b *CostBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.tripped
}

// Spent returns the accumulated spend.
func (b *CostBreaker) Spent() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spent
}
