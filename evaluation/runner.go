package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/evoflow/pipeline"
	"github.com/BaSui01/evoflow/types"
	"github.com/BaSui01/evoflow/workflow"
)

// DefaultMaxHops 单个用例允许的最大节点跳数
const DefaultMaxHops = 16

// PipelineRecorder 接收每次节点调用的耗时
type PipelineRecorder interface {
	RecordPipeline(nodeID string, d time.Duration, failed bool)
}

// RunResult 一次工作流运行的结果
type RunResult struct {
	Output   string             `json:"output"`
	Hops     []string           `json:"hops"`
	Nodes    []*pipeline.Result `json:"nodes"`
	CostUSD  float64            `json:"cost_usd"`
	Duration time.Duration      `json:"duration"`
}

// Runner 从 entry 出发逐跳驱动工作流：每一跳是一条 WorkflowMessage
// 加一个新的 Pipeline 实例，而非递归遍历图。
type Runner struct {
	provider pipeline.ModelProvider
	tools    pipeline.ToolProvider
	maxHops  int
	opts     pipeline.Options
	recorder PipelineRecorder
	logger   *zap.Logger
}

// RunnerConfig 运行器配置
type RunnerConfig struct {
	Provider pipeline.ModelProvider
	Tools    pipeline.ToolProvider
	MaxHops  int
	// Pipeline 每个节点管道的选项模板
	Pipeline pipeline.Options
	Recorder PipelineRecorder
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = DefaultMaxHops
	}
	if cfg.Pipeline.Logger == nil {
		cfg.Pipeline.Logger = logger
	}
	return &Runner{
		provider: cfg.Provider,
		tools:    cfg.Tools,
		maxHops:  cfg.MaxHops,
		opts:     cfg.Pipeline,
		recorder: cfg.Recorder,
		logger:   logger.With(zap.String("component", "workflow_runner")),
	}
}

// Run 执行工作流。节点失败时返回已完成部分的结果和错误。
func (r *Runner) Run(ctx context.Context, cfg *workflow.Config, input string, obs pipeline.Observer) (result *RunResult, err error) {
	start := time.Now()
	result = &RunResult{}
	defer func() {
		if rec := recover(); rec != nil {
			err = types.NewWorkflowExecutionError(types.ErrWorkflowPanic,
				fmt.Sprintf("workflow %s panicked", cfg.ID), fmt.Errorf("%v", rec))
		}
		result.Duration = time.Since(start)
	}()

	current := cfg.Entry
	msg := types.NewWorkflowMessage(types.StartNodeID, current, 0, input)

	for hop := 0; hop < r.maxHops; hop++ {
		node, ok := cfg.Nodes.Get(current)
		if !ok {
			return result, types.NewWorkflowExecutionError(types.ErrNodeExecution,
				fmt.Sprintf("workflow %s: node %q not found", cfg.ID, current), nil)
		}

		opts := r.opts
		opts.Observer = obs
		opts.InvocationID = uuid.NewString()
		p := pipeline.New(node, cfg.ID, msg, r.provider, r.tools, opts)

		res, runErr := p.Run(ctx)
		if res != nil {
			result.Nodes = append(result.Nodes, res)
			result.CostUSD += res.CostUSD
			result.Hops = append(result.Hops, node.ID)
			if r.recorder != nil {
				r.recorder.RecordPipeline(node.ID, res.Duration, runErr != nil)
			}
		}
		if runErr != nil {
			return result, runErr
		}

		result.Output = res.Output
		if res.Next == workflow.EndNodeID {
			return result, nil
		}
		msg = types.NewWorkflowMessage(node.ID, res.Next, hop+1, res.Output)
		current = res.Next
	}

	return result, types.NewWorkflowExecutionError(types.ErrHopLimit,
		fmt.Sprintf("workflow %s exceeded %d hops", cfg.ID, r.maxHops), nil).
		WithDebug("hops", result.Hops)
}
