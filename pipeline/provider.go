package pipeline

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/BaSui01/evoflow/observer"
	"github.com/BaSui01/evoflow/tools"
	"github.com/BaSui01/evoflow/types"
	"github.com/BaSui01/evoflow/workflow"
)

// GenerateRequest 一轮模型调用的输入
type GenerateRequest struct {
	Node    workflow.Node
	History []types.Message
	Tools   []types.ToolSchema
	Round   int
}

// ModelProvider 给定节点配置、历史和可用工具，返回下一批 AgentStep。
// tool-call 步骤只需填写 Tool，结果由管道执行后补齐。
type ModelProvider interface {
	Generate(ctx context.Context, req *GenerateRequest) ([]types.AgentStep, error)
}

// ProviderFunc adapts a function to ModelProvider.
type ProviderFunc func(ctx context.Context, req *GenerateRequest) ([]types.AgentStep, error)

func (f ProviderFunc) Generate(ctx context.Context, req *GenerateRequest) ([]types.AgentStep, error) {
	return f(ctx, req)
}

// ToolProvider 工具解析协作方
type ToolProvider interface {
	Resolve(ctx context.Context, names []string, workflowID string) tools.ResolveResult
}

// Observer 可选事件接收方；nil 表示不观测
type Observer interface {
	Emit(e observer.Event)
}

// LimitedProvider 对模型调用做准入控制：并发上限 + 可选速率限制，
// 并把每次调用的费用上报给成本熔断器。
type LimitedProvider struct {
	inner   ModelProvider
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	onCost  func(usd float64)

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// NewLimitedProvider wraps inner. maxConcurrent <= 0 means unbounded; rps <= 0 disables rate limiting.
func NewLimitedProvider(inner ModelProvider, maxConcurrent int, rps float64, burst int) *LimitedProvider {
	p := &LimitedProvider{inner: inner}
	if maxConcurrent > 0 {
		p.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return p
}

// WithCostReporter sets the per-call cost callback.
func (p *LimitedProvider) WithCostReporter(fn func(usd float64)) *LimitedProvider {
	p.onCost = fn
	return p
}

func (p *LimitedProvider) Generate(ctx context.Context, req *GenerateRequest) ([]types.AgentStep, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer p.sem.Release(1)
	}

	n := p.inFlight.Add(1)
	for {
		cur := p.maxInFlight.Load()
		if n <= cur || p.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	defer p.inFlight.Add(-1)

	steps, err := p.inner.Generate(ctx, req)
	if p.onCost != nil {
		var cost float64
		for _, s := range steps {
			cost += s.Usage.CostUSD
		}
		if cost > 0 {
			p.onCost(cost)
		}
	}
	return steps, err
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (p *LimitedProvider) MaxInFlight() int {
	return int(p.maxInFlight.Load())
}

// EchoProvider 立即以最后一条用户消息终止，用于演练运行
type EchoProvider struct{}

func (EchoProvider) Generate(ctx context.Context, req *GenerateRequest) ([]types.AgentStep, error) {
	var last string
	for i := len(req.History) - 1; i >= 0; i-- {
		if req.History[i].Role == types.RoleUser {
			last = req.History[i].Content
			break
		}
	}
	step := types.AgentStep{Type: types.StepTerminate, Content: last}
	if len(req.Node.Handoffs) > 0 {
		step.HandoffTo = req.Node.Handoffs[0]
	}
	return []types.AgentStep{step}, nil
}
