package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/evoflow/observer"
	"github.com/BaSui01/evoflow/tools"
	"github.com/BaSui01/evoflow/types"
	"github.com/BaSui01/evoflow/workflow"
)

const (
	DefaultMaxSteps  = 20
	DefaultMaxRounds = 10
)

var tracer = otel.Tracer("github.com/BaSui01/evoflow/pipeline")

// Options 管道选项
type Options struct {
	// MaxSteps 单次执行允许的步骤上限；节点自身的 MaxSteps 优先
	MaxSteps int
	// MaxRounds 模型调用轮数上限
	MaxRounds int
	Observer  Observer
	Logger    *zap.Logger
	Clock     func() time.Time
	// InvocationID 事件关联用；为空时由调用方忽略
	InvocationID string
}

// Result 处理后的节点输出
type Result struct {
	NodeID   string            `json:"node_id"`
	Output   string            `json:"output"`
	Next     string            `json:"next"`
	Steps    []types.AgentStep `json:"steps"`
	Duration time.Duration     `json:"duration"`
	CostUSD  float64           `json:"cost_usd"`
	Usage    types.Usage       `json:"usage"`
	// FailedTools 解析失败而被省略的工具
	FailedTools []string `json:"failed_tools,omitempty"`
}

// Pipeline 单个节点的一次调用：prepare → execute → process。
// 每个实例只能使用一次；状态通过 CAS 严格单调推进。
type Pipeline struct {
	state     atomic.Int32
	preparing atomic.Bool

	node       workflow.Node
	workflowID string
	runID      string
	message    *types.WorkflowMessage
	provider   ModelProvider
	resolver   ToolProvider
	opts       Options
	logger     *zap.Logger

	toolset     *tools.ToolSet
	failedTools []string
	history     []types.Message
	steps       []types.AgentStep
	startedAt   time.Time
	finishedAt  time.Time
}

// New creates a pipeline in state CREATED.
func New(node workflow.Node, workflowID string, msg *types.WorkflowMessage,
	provider ModelProvider, resolver ToolProvider, opts Options) *Pipeline {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if node.MaxSteps > 0 {
		opts.MaxSteps = node.MaxSteps
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		node:       node,
		workflowID: workflowID,
		message:    msg,
		provider:   provider,
		resolver:   resolver,
		opts:       opts,
		logger: logger.With(
			zap.String("component", "pipeline"),
			zap.String("node_id", node.ID),
			zap.String("workflow_id", workflowID)),
	}
}

// State returns the current state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Prepare 解析工具并由传入消息构建对话历史。CREATED → PREPARED。
func (p *Pipeline) Prepare(ctx context.Context) error {
	if p.State() != StateCreated || !p.preparing.CompareAndSwap(false, true) {
		return types.NewStateManagementError("prepare", p.State().String(), StateCreated.String())
	}

	p.runID, _ = types.RunID(ctx)
	p.toolset = tools.NewToolSet()
	if len(p.node.Tools) > 0 && p.resolver != nil {
		res := p.resolver.Resolve(ctx, p.node.Tools, p.workflowID)
		if res.Tools != nil {
			p.toolset = res.Tools
		}
		p.failedTools = res.Failed
		if len(res.Failed) > 0 {
			p.logger.Warn("tools unavailable for node", zap.Strings("tools", res.Failed))
		}
	} else if len(p.node.Tools) > 0 {
		p.failedTools = append([]string(nil), p.node.Tools...)
	}

	p.history = []types.Message{types.NewSystemMessage(systemPrompt(p.node))}
	if text := p.message.Text(); text != "" {
		p.history = append(p.history, types.NewUserMessage(text))
	}

	p.state.Store(int32(StatePrepared))
	return nil
}

func systemPrompt(node workflow.Node) string {
	if len(node.Memory) == 0 {
		return node.SystemPrompt
	}
	keys := make([]string, 0, len(node.Memory))
	for k := range node.Memory {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(node.SystemPrompt)
	b.WriteString("\n\nContext:")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s: %s", k, node.Memory[k])
	}
	return b.String()
}

// Execute 运行 agent 循环。PREPARED → EXECUTING → EXECUTED。
// 已在执行或已执行完成时返回 RaceConditionError。
func (p *Pipeline) Execute(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StatePrepared), int32(StateExecuting)) {
		cur := p.State()
		if cur == StateExecuting || cur == StateExecuted {
			return types.NewRaceConditionError("execute", cur.String())
		}
		return types.NewStateManagementError("execute", cur.String(), StatePrepared.String())
	}
	defer p.state.Store(int32(StateExecuted))

	ctx, span := tracer.Start(ctx, "pipeline.execute")
	span.SetAttributes(
		attribute.String("workflow.id", p.workflowID),
		attribute.String("node.id", p.node.ID))
	defer span.End()

	p.startedAt = p.opts.Clock()
	p.emit(observer.EventAgentStart, "", "", nil)

	err := p.loop(ctx)
	p.finishedAt = p.opts.Clock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.emit(observer.EventAgentError, "", err.Error(), nil)
		p.logger.Debug("node execution failed", zap.Error(err))
		return err
	}
	p.emit(observer.EventAgentEnd, "", "", map[string]any{
		"steps":    len(p.steps),
		"duration": p.finishedAt.Sub(p.startedAt).String(),
	})
	return nil
}

func (p *Pipeline) loop(ctx context.Context) error {
	schemas := p.toolset.Schemas()

	for round := 1; round <= p.opts.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			p.appendError(err.Error())
			return types.NewWorkflowExecutionError(types.ErrWorkflowCancelled,
				fmt.Sprintf("node %s cancelled", p.node.ID), err)
		}

		generated, err := p.provider.Generate(ctx, &GenerateRequest{
			Node:    p.node,
			History: append([]types.Message(nil), p.history...),
			Tools:   schemas,
			Round:   round,
		})
		if err != nil {
			p.appendError(err.Error())
			return types.NewWorkflowExecutionError(types.ErrModelCall,
				fmt.Sprintf("model call failed for node %s", p.node.ID), err).
				WithDebug("round", round)
		}

		toolCalls := 0
		for _, step := range generated {
			if len(p.steps) >= p.opts.MaxSteps {
				p.logger.Debug("step limit reached", zap.Int("max_steps", p.opts.MaxSteps))
				return nil
			}
			if step.Timestamp.IsZero() {
				step.Timestamp = p.opts.Clock()
			}
			if step.Type == types.StepToolCall && step.Tool != nil {
				toolCalls++
				step.Result = p.callTool(ctx, *step.Tool)
			}
			p.steps = append(p.steps, step)
			p.history = append(p.history, step.ToMessages()...)
			if step.IsTerminal() {
				return nil
			}
		}
		if toolCalls == 0 {
			return nil
		}
	}
	p.logger.Debug("round limit reached", zap.Int("max_rounds", p.opts.MaxRounds))
	return nil
}

func (p *Pipeline) callTool(ctx context.Context, call types.ToolCall) *types.ToolResult {
	start := p.opts.Clock()
	p.emit(observer.EventAgentToolStart, call.Name, "", nil)

	result := &types.ToolResult{ToolCallID: call.ID, Name: call.Name}
	tool, ok := p.toolset.Get(call.Name)
	if !ok {
		result.Error = fmt.Sprintf("tool %s is not available", call.Name)
	} else {
		out, err := tool.Call(ctx, call.Arguments)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Result = out
		}
	}
	result.Duration = p.opts.Clock().Sub(start)

	p.emit(observer.EventAgentToolEnd, call.Name, result.Error, map[string]any{
		"duration": result.Duration.String(),
	})
	return result
}

func (p *Pipeline) appendError(msg string) {
	p.steps = append(p.steps, types.AgentStep{
		Type:      types.StepError,
		Content:   msg,
		Timestamp: p.opts.Clock(),
	})
}

// Process 将步骤轨迹转换为最终输出。EXECUTED → PROCESSING → COMPLETED。
func (p *Pipeline) Process(ctx context.Context) (*Result, error) {
	if !p.state.CompareAndSwap(int32(StateExecuted), int32(StateProcessing)) {
		return nil, types.NewStateManagementError("process", p.State().String(), StateExecuted.String())
	}
	defer p.state.Store(int32(StateCompleted))

	res := &Result{
		NodeID:      p.node.ID,
		Output:      finalOutput(p.steps),
		Next:        p.nextNode(),
		Steps:       append([]types.AgentStep(nil), p.steps...),
		Duration:    p.finishedAt.Sub(p.startedAt),
		FailedTools: p.failedTools,
	}
	for _, s := range p.steps {
		res.Usage = res.Usage.Add(s.Usage)
	}
	res.CostUSD = res.Usage.CostUSD
	return res, nil
}

// finalOutput 取终止步骤内容；否则取最后一个有内容的推理/计划步骤，再否则取最后一个工具结果
func finalOutput(steps []types.AgentStep) string {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Type == types.StepTerminate && steps[i].Content != "" {
			return steps[i].Content
		}
	}
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if (s.Type == types.StepReasoning || s.Type == types.StepPlan) && s.Content != "" {
			return s.Content
		}
	}
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if s.Type == types.StepToolCall && s.Result != nil && !s.Result.IsError() {
			return string(s.Result.Result)
		}
	}
	return ""
}

func (p *Pipeline) nextNode() string {
	for i := len(p.steps) - 1; i >= 0; i-- {
		s := p.steps[i]
		if s.Type != types.StepTerminate || s.HandoffTo == "" {
			continue
		}
		for _, h := range p.node.Handoffs {
			if h == s.HandoffTo {
				return h
			}
		}
		break
	}
	if len(p.node.Handoffs) > 0 {
		return p.node.Handoffs[0]
	}
	return workflow.EndNodeID
}

func (p *Pipeline) emit(typ observer.EventType, tool, message string, data map[string]any) {
	if p.opts.Observer == nil {
		return
	}
	e := observer.NewEvent(typ, p.node.ID)
	e.RunID = p.runID
	e.WorkflowID = p.workflowID
	e.InvocationID = p.opts.InvocationID
	e.Tool = tool
	e.Message = message
	e.Data = data
	p.opts.Observer.Emit(e)
}

// Run 依次执行 Prepare、Execute、Process。执行失败时仍返回已处理的结果。
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := p.Prepare(ctx); err != nil {
		return nil, err
	}
	execErr := p.Execute(ctx)
	res, err := p.Process(ctx)
	if err != nil {
		return nil, err
	}
	return res, execErr
}
