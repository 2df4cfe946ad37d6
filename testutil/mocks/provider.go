// MockProvider 的模型提供方测试模拟实现。
//
// 支持按轮次脚本化步骤、错误注入、延迟和按调用计费。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/evoflow/pipeline"
	"github.com/BaSui01/evoflow/types"
)

// ErrMockFailure 默认注入的错误
var ErrMockFailure = errors.New("mock provider failure")

// --- MockProvider 结构 ---

// MockProvider 是 pipeline.ModelProvider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	// 响应配置
	response string
	rounds   [][]types.AgentStep
	err      error
	fn       func(ctx context.Context, req *pipeline.GenerateRequest) ([]types.AgentStep, error)

	// 行为控制
	delay     time.Duration
	failAfter int
	costUSD   float64

	// 调用记录
	calls []*pipeline.GenerateRequest
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider，默认立即以固定内容终止
func NewMockProvider() *MockProvider {
	return &MockProvider{response: "Mock response"}
}

// WithResponse 设置默认终止内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithRounds 按顺序为每一轮调用返回给定步骤；用完后回到默认响应
func (m *MockProvider) WithRounds(rounds ...[]types.AgentStep) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds = rounds
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFunc 使用自定义生成函数
func (m *MockProvider) WithFunc(fn func(ctx context.Context, req *pipeline.GenerateRequest) ([]types.AgentStep, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// WithDelay 设置模拟延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 在第 n 次调用之后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCost 每次调用计入的费用（记在第一个步骤上）
func (m *MockProvider) WithCost(usd float64) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.costUSD = usd
	return m
}

// --- pipeline.ModelProvider 实现 ---

func (m *MockProvider) Generate(ctx context.Context, req *pipeline.GenerateRequest) ([]types.AgentStep, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	callNum := len(m.calls)
	delay, fn, err := m.delay, m.fn, m.err
	failAfter, cost, response := m.failAfter, m.costUSD, m.response
	var scripted []types.AgentStep
	if len(m.rounds) > 0 {
		scripted = m.rounds[0]
		m.rounds = m.rounds[1:]
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if failAfter > 0 && callNum > failAfter {
		return nil, ErrMockFailure
	}

	var steps []types.AgentStep
	switch {
	case fn != nil:
		steps, err = fn(ctx, req)
		if err != nil {
			return nil, err
		}
	case scripted != nil:
		steps = append([]types.AgentStep(nil), scripted...)
	default:
		steps = []types.AgentStep{{Type: types.StepTerminate, Content: response}}
	}
	if cost > 0 && len(steps) > 0 {
		steps[0].Usage.CostUSD += cost
	}
	return steps, nil
}

// --- 调用记录 ---

// Calls returns the recorded requests.
func (m *MockProvider) Calls() []*pipeline.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*pipeline.GenerateRequest(nil), m.calls...)
}

// CallCount returns the number of Generate calls.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset 清空调用记录
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// ToolCallStep 构造一个工具调用步骤
func ToolCallStep(id, name, args string) types.AgentStep {
	return types.AgentStep{
		Type: types.StepToolCall,
		Tool: &types.ToolCall{ID: id, Name: name, Arguments: []byte(args)},
	}
}

// TerminateStep 构造一个终止步骤
func TerminateStep(content, handoff string) types.AgentStep {
	return types.AgentStep{Type: types.StepTerminate, Content: content, HandoffTo: handoff}
}
