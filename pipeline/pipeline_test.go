package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/evoflow/observer"
	"github.com/BaSui01/evoflow/pipeline"
	"github.com/BaSui01/evoflow/testutil/mocks"
	"github.com/BaSui01/evoflow/tools"
	"github.com/BaSui01/evoflow/types"
	"github.com/BaSui01/evoflow/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testNode() workflow.Node {
	return workflow.Node{
		ID:           "solver",
		SystemPrompt: "Solve the task.",
		Tools:        []string{"calculator"},
		Handoffs:     []string{"reviewer", "summarizer"},
	}
}

func testResolver(t *testing.T) *tools.Resolver {
	calc := tools.NewFuncTool("calculator", "evaluates", nil,
		func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			if string(args) == `{"fail":true}` {
				return nil, errors.New("division by zero")
			}
			return json.RawMessage(`4`), nil
		})
	return tools.NewResolver(tools.ResolverConfig{Code: tools.NewCodeRegistry(calc)}, zaptest.NewLogger(t))
}

func newPipeline(t *testing.T, provider pipeline.ModelProvider, opts pipeline.Options) *pipeline.Pipeline {
	msg := types.NewWorkflowMessage(types.StartNodeID, "solver", 0, "what is 2+2?")
	opts.Logger = zaptest.NewLogger(t)
	return pipeline.New(testNode(), "wf-1", msg, provider, testResolver(t), opts)
}

func TestPipeline_HappyPath(t *testing.T) {
	ctx := context.Background()
	provider := mocks.NewMockProvider().WithRounds(
		[]types.AgentStep{
			{Type: types.StepReasoning, Content: "need to add"},
			mocks.ToolCallStep("c1", "calculator", `{"a":2,"b":2}`),
		},
		[]types.AgentStep{mocks.TerminateStep("4", "summarizer")},
	).WithCost(0.01)

	sink := observer.NewSink(0, nil)
	p := newPipeline(t, provider, pipeline.Options{Observer: sink})
	assert.Equal(t, pipeline.StateCreated, p.State())

	require.NoError(t, p.Prepare(ctx))
	assert.Equal(t, pipeline.StatePrepared, p.State())
	require.NoError(t, p.Execute(ctx))
	assert.Equal(t, pipeline.StateExecuted, p.State())

	res, err := p.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateCompleted, p.State())

	assert.Equal(t, "4", res.Output)
	assert.Equal(t, "summarizer", res.Next)
	require.Len(t, res.Steps, 3)
	require.NotNil(t, res.Steps[1].Result)
	assert.JSONEq(t, `4`, string(res.Steps[1].Result.Result))
	assert.InDelta(t, 0.02, res.CostUSD, 1e-9)
	assert.Equal(t, 2, provider.CallCount())

	// 第二轮的历史包含工具结果
	second := provider.Calls()[1]
	last := second.History[len(second.History)-1]
	assert.Equal(t, types.RoleTool, last.Role)

	var kinds []observer.EventType
	for _, e := range sink.Snapshot() {
		kinds = append(kinds, e.Type)
	}
	assert.Equal(t, []observer.EventType{
		observer.EventAgentStart,
		observer.EventAgentToolStart,
		observer.EventAgentToolEnd,
		observer.EventAgentEnd,
	}, kinds)
}

func TestPipeline_ProcessBeforeExecuteFails(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, mocks.NewMockProvider(), pipeline.Options{})

	_, err := p.Process(ctx)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindStateManagement))

	require.NoError(t, p.Prepare(ctx))
	_, err = p.Process(ctx)
	assert.True(t, types.IsKind(err, types.KindStateManagement))
}

func TestPipeline_ExecuteBeforePrepareFails(t *testing.T) {
	p := newPipeline(t, mocks.NewMockProvider(), pipeline.Options{})
	err := p.Execute(context.Background())
	assert.True(t, types.IsKind(err, types.KindStateManagement))
}

func TestPipeline_ConcurrentExecuteOneWins(t *testing.T) {
	ctx := context.Background()
	provider := mocks.NewMockProvider().WithDelay(30 * time.Millisecond)
	p := newPipeline(t, provider, pipeline.Options{})
	require.NoError(t, p.Prepare(ctx))

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = p.Execute(ctx)
		}(i)
	}
	wg.Wait()

	successes, races := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case types.IsKind(err, types.KindRaceCondition):
			races++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, races)
	assert.Equal(t, 1, provider.CallCount())
}

func TestPipeline_SingleUse(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, mocks.NewMockProvider(), pipeline.Options{})
	_, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Error(t, p.Prepare(ctx))
	assert.Error(t, p.Execute(ctx))
	_, err = p.Process(ctx)
	assert.Error(t, err)
}

func TestPipeline_ProviderErrorIsExecutionError(t *testing.T) {
	ctx := context.Background()
	sink := observer.NewSink(0, nil)
	p := newPipeline(t, mocks.NewMockProvider().WithError(errors.New("503")), pipeline.Options{Observer: sink})
	require.NoError(t, p.Prepare(ctx))

	err := p.Execute(ctx)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindWorkflowExecution))
	assert.Equal(t, types.ErrModelCall, types.GetErrorCode(err))
	assert.Equal(t, pipeline.StateExecuted, p.State())

	res, err := p.Process(ctx)
	require.NoError(t, err)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, types.StepError, res.Steps[0].Type)

	snap := sink.Snapshot()
	assert.Equal(t, observer.EventAgentError, snap[len(snap)-1].Type)
}

func TestPipeline_ToolErrorsAreNotFatal(t *testing.T) {
	provider := mocks.NewMockProvider().WithRounds(
		[]types.AgentStep{
			mocks.ToolCallStep("c1", "calculator", `{"fail":true}`),
			mocks.ToolCallStep("c2", "missing_tool", `{}`),
		},
		[]types.AgentStep{mocks.TerminateStep("gave up", "")},
	)
	p := newPipeline(t, provider, pipeline.Options{})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Steps, 3)
	assert.Equal(t, "division by zero", res.Steps[0].Result.Error)
	assert.Contains(t, res.Steps[1].Result.Error, "not available")
	assert.Equal(t, "reviewer", res.Next, "falls back to first handoff")
}

func TestPipeline_StopsWithoutToolCalls(t *testing.T) {
	provider := mocks.NewMockProvider().WithRounds(
		[]types.AgentStep{{Type: types.StepReasoning, Content: "the answer is 4"}},
	)
	p := newPipeline(t, provider, pipeline.Options{})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, provider.CallCount())
	assert.Equal(t, "the answer is 4", res.Output)
}

func TestPipeline_StepAndRoundLimits(t *testing.T) {
	looping := mocks.NewMockProvider().WithFunc(
		func(ctx context.Context, req *pipeline.GenerateRequest) ([]types.AgentStep, error) {
			return []types.AgentStep{mocks.ToolCallStep("c", "calculator", `{}`)}, nil
		})
	p := newPipeline(t, looping, pipeline.Options{MaxRounds: 3, MaxSteps: 100})
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, looping.CallCount())
	assert.Len(t, res.Steps, 3)

	looping.Reset()
	p = newPipeline(t, looping, pipeline.Options{MaxRounds: 10, MaxSteps: 2})
	res, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Steps, 2)
}

func TestPipeline_InvalidHandoffFallsBack(t *testing.T) {
	provider := mocks.NewMockProvider().WithRounds(
		[]types.AgentStep{mocks.TerminateStep("done", "nowhere")},
	)
	p := newPipeline(t, provider, pipeline.Options{})
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "reviewer", res.Next)
}

func TestPipeline_NoHandoffsEnds(t *testing.T) {
	node := workflow.Node{ID: "solo", SystemPrompt: "x", Memory: map[string]string{"tone": "formal"}}
	provider := mocks.NewMockProvider()
	p := pipeline.New(node, "wf", nil, provider, nil, pipeline.Options{})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, workflow.EndNodeID, res.Next)

	system := provider.Calls()[0].History[0]
	assert.Contains(t, system.Content, "tone: formal")
}

func TestPipeline_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := newPipeline(t, mocks.NewMockProvider(), pipeline.Options{})
	require.NoError(t, p.Prepare(ctx))
	cancel()

	err := p.Execute(ctx)
	assert.Equal(t, types.ErrWorkflowCancelled, types.GetErrorCode(err))
}
