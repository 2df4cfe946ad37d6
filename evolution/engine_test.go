package evolution

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/evoflow/evaluation"
	"github.com/BaSui01/evoflow/genome"
	"github.com/BaSui01/evoflow/observer"
	"github.com/BaSui01/evoflow/pipeline"
	"github.com/BaSui01/evoflow/testutil/mocks"
	"github.com/BaSui01/evoflow/tools"
	"github.com/BaSui01/evoflow/tracker"
	"github.com/BaSui01/evoflow/types"
	"github.com/BaSui01/evoflow/workflow"
)

// fakeEvaluator 按节点数打分，可注入延迟和费用
type fakeEvaluator struct {
	delay time.Duration
	cost  float64

	calls    atomic.Int32
	inflight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, g *genome.Genome, cases []evaluation.Case, obs pipeline.Observer) (*evaluation.Report, error) {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	score := float64(g.Workflow.Nodes.Len()) / 10
	return &evaluation.Report{
		GenomeID:  g.ID,
		Fitness:   genome.Fitness{Score: score, Accuracy: score},
		Feedback:  "1 of 1 cases below 0.5",
		TotalCost: f.cost,
		Cases:     []evaluation.CaseResult{{CaseID: "c1", Score: score, CostUSD: f.cost}},
	}, nil
}

type recorder struct {
	mu          sync.Mutex
	generations int
	outcomes    map[string]int
	cost        float64
}

func (r *recorder) RecordGeneration(generation int, best, mean float64, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations++
}

func (r *recorder) RecordGenome(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	r.outcomes[outcome]++
}

func (r *recorder) RecordCost(usd float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cost += usd
}

var testCases = []evaluation.Case{{ID: "c1", Input: "hello", Expected: "hello"}}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.PopulationSize = 4
	cfg.GenerationAmount = 2
	cfg.MinPopulationSize = 2
	cfg.InitialPopulationMethod = SeedRandom
	cfg.MaxDiscardRatio = 1
	cfg.Seed = 42
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, deps Deps) *Engine {
	t.Helper()
	if deps.Tracker == nil {
		deps.Tracker = tracker.NewMemoryTracker()
	}
	e, err := NewEngine(cfg, testCases, deps, zaptest.NewLogger(t))
	require.NoError(t, err)
	return e
}

func TestEngine_EndToEnd(t *testing.T) {
	tr := tracker.NewMemoryTracker()
	rec := &recorder{}
	e := newTestEngine(t, smallConfig(), Deps{Evaluator: &fakeEvaluator{}, Tracker: tr, Recorder: rec})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.RunStatusCompleted, summary.Status)
	assert.Equal(t, 2, summary.Generations)
	require.NotNil(t, summary.Best)
	assert.True(t, summary.Best.Evaluated())

	ctx := context.Background()
	gens, err := tr.ListGenerations(ctx, summary.RunID)
	require.NoError(t, err)
	require.Len(t, gens, 2)

	for gen := 0; gen < 2; gen++ {
		invs, err := tr.ListInvocations(ctx, summary.RunID, gen)
		require.NoError(t, err)
		assert.Len(t, invs, 4, "generation %d", gen)
		for _, inv := range invs {
			require.NotNil(t, inv.FitnessScore)
			require.NotNil(t, inv.Novelty)
		}
	}

	run, err := tr.GetRun(ctx, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, tracker.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.EndedAt)
	assert.Contains(t, run.Config, `"population_size":4`)

	assert.Equal(t, 2, rec.generations)
	assert.Equal(t, 8, rec.outcomes[OutcomeEvaluated])
}

func TestEngine_PresetRunID(t *testing.T) {
	tr := tracker.NewMemoryTracker()
	hub := observer.NewHub(64, time.Minute, nil)
	defer hub.Close()

	cfg := smallConfig()
	cfg.RunID = "preset-run"
	cfg.GenerationAmount = 1
	e := newTestEngine(t, cfg, Deps{Evaluator: &fakeEvaluator{}, Tracker: tr, Hub: hub})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "preset-run", summary.RunID)
	_, ok := hub.Lookup("preset-run")
	assert.True(t, ok, "sink stays available until disposeAfter")

	// 同一 ID 的第二次运行被追踪存储拒绝
	summary, err = e.Run(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindRunTracking))
	assert.Equal(t, tracker.RunStatusFailed, summary.Status)
}

func TestEngine_VersionsRecordLineage(t *testing.T) {
	tr := tracker.NewMemoryTracker()
	cfg := smallConfig()
	cfg.EliteCount = 1
	e := newTestEngine(t, cfg, Deps{Evaluator: &fakeEvaluator{}, Tracker: tr})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	ops := map[string]int{}
	for _, v := range tr.Versions() {
		assert.Equal(t, summary.RunID, v.RunID)
		assert.Equal(t, workflow.Hash(mustParse(t, v.DSL)), v.Hash)
		ops[v.Operation]++
		if v.Operation == OpSeed {
			assert.Empty(t, v.Parents())
		}
	}
	assert.Equal(t, 4, ops[OpSeed])
	assert.LessOrEqual(t, ops[OpCrossover]+ops[OpMutation], 3, "elite reuses its seed version")

	versions := make(map[string]bool)
	for _, v := range tr.Versions() {
		assert.Equal(t, v.Hash, v.ID)
		versions[v.ID] = true
	}
	invs, err := tr.ListInvocations(context.Background(), summary.RunID, -1)
	require.NoError(t, err)
	assert.Len(t, invs, 8)
	for _, inv := range invs {
		assert.True(t, versions[inv.VersionID], "invocation %s references a stored version", inv.ID)
	}
}

// cloneSeeder 产生结构完全相同的工作流
type cloneSeeder struct{ base *workflow.Config }

func (s cloneSeeder) Seed(ctx context.Context, rng *rand.Rand, n int) ([]*workflow.Config, error) {
	out := make([]*workflow.Config, n)
	for i := range out {
		out[i] = s.base.Clone()
		out[i].ID = ""
	}
	return out, nil
}

func TestEngine_IdenticalWorkflowsShareVersion(t *testing.T) {
	tr := tracker.NewMemoryTracker()
	cfg := smallConfig()
	cfg.GenerationAmount = 1
	e := newTestEngine(t, cfg, Deps{
		Evaluator: &fakeEvaluator{},
		Tracker:   tr,
		Seeder:    cloneSeeder{base: linear(t, "a", "b")},
	})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, tr.Versions(), 1)
	version := tr.Versions()[0]
	assert.Equal(t, workflow.Hash(linear(t, "a", "b")), version.ID)

	invs, err := tr.ListInvocations(context.Background(), summary.RunID, 0)
	require.NoError(t, err)
	require.Len(t, invs, 4)
	genomes := make(map[string]bool)
	for _, inv := range invs {
		assert.Equal(t, version.ID, inv.VersionID)
		genomes[inv.GenomeID] = true
	}
	assert.Len(t, genomes, 4, "each genome keeps its own invocation")
}

func mustParse(t *testing.T, dsl string) *workflow.Config {
	t.Helper()
	cfgs, err := workflow.Parse([]byte(dsl))
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	return cfgs[0]
}

func TestEngine_WithRealEvaluatorAndObserver(t *testing.T) {
	logger := zaptest.NewLogger(t)
	runner := evaluation.NewRunner(evaluation.RunnerConfig{Provider: pipeline.EchoProvider{}}, logger)
	ev := evaluation.NewEvaluator(runner, nil, evaluation.Config{Fitness: evaluation.DefaultFitnessConfig()}, logger)
	hub := observer.NewHub(100, time.Minute, logger)
	defer hub.Close()

	cfg := smallConfig()
	cfg.GenerationAmount = 1
	e := newTestEngine(t, cfg, Deps{Evaluator: ev, Hub: hub})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.RunStatusCompleted, summary.Status)
	assert.Equal(t, 4, summary.Population.Len())

	sink, ok := hub.Lookup(summary.RunID)
	require.True(t, ok, "sink is kept until disposal")
	assert.NotEmpty(t, sink.Snapshot())
}

func TestEngine_CancelInterrupts(t *testing.T) {
	tr := tracker.NewMemoryTracker()
	cfg := smallConfig()
	cfg.GenerationAmount = 5
	ev := &fakeEvaluator{delay: 200 * time.Millisecond}
	e := newTestEngine(t, cfg, Deps{Evaluator: ev, Tracker: tr})

	assert.False(t, e.Cancel("nothing running"))
	go func() {
		time.Sleep(50 * time.Millisecond)
		e.Cancel("operator request")
	}()

	summary, err := e.Run(context.Background())
	require.NoError(t, err, "interruption is not a hard failure")
	assert.Equal(t, tracker.RunStatusInterrupted, summary.Status)
	assert.Contains(t, summary.StopReason, "operator request")
	assert.Zero(t, summary.Generations, "in-flight results are excluded")

	run, err := tr.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, tracker.RunStatusInterrupted, run.Status)

	gens, err := tr.ListGenerations(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Empty(t, gens)
}

func TestEngine_StallInterrupts(t *testing.T) {
	cfg := smallConfig()
	cfg.StallThreshold = 40 * time.Millisecond
	e := newTestEngine(t, cfg, Deps{Evaluator: &fakeEvaluator{delay: 300 * time.Millisecond}})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.RunStatusInterrupted, summary.Status)
	assert.Contains(t, summary.StopReason, ErrStalled.Error())
}

func TestEngine_ParentContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	e := newTestEngine(t, smallConfig(), Deps{Evaluator: &fakeEvaluator{delay: 200 * time.Millisecond}})

	summary, err := e.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, tracker.RunStatusInterrupted, summary.Status)
}

func TestEngine_CostBudgetRefusesNewEvaluations(t *testing.T) {
	tr := tracker.NewMemoryTracker()
	rec := &recorder{}
	cfg := smallConfig()
	cfg.MaxCostUSDPerRun = 0.05
	cfg.MaxConcurrentWorkflows = 1
	e := newTestEngine(t, cfg, Deps{Evaluator: &fakeEvaluator{cost: 0.03}, Tracker: tr, Recorder: rec})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.RunStatusInterrupted, summary.Status)
	assert.Equal(t, "cost budget exceeded", summary.StopReason)
	assert.Equal(t, 1, summary.Generations)
	assert.InDelta(t, 0.06, summary.TotalCostUSD, 1e-9)

	invs, err := tr.ListInvocations(context.Background(), summary.RunID, 0)
	require.NoError(t, err)
	assert.Len(t, invs, 2, "admitted evaluations finish and are persisted")
	assert.Equal(t, 2, rec.outcomes[OutcomeRefused])
	assert.InDelta(t, 0.06, rec.cost, 1e-9)
}

func TestEngine_CostBudgetTripsOnLastEvaluation(t *testing.T) {
	tr := tracker.NewMemoryTracker()
	rec := &recorder{}
	cfg := smallConfig()
	cfg.GenerationAmount = 3
	cfg.MaxCostUSDPerRun = 1.0
	cfg.MaxConcurrentWorkflows = 1
	ev := &fakeEvaluator{cost: 0.25}
	e := newTestEngine(t, cfg, Deps{Evaluator: ev, Tracker: tr, Recorder: rec})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.RunStatusInterrupted, summary.Status)
	assert.Equal(t, "cost budget exceeded", summary.StopReason)
	assert.Equal(t, 1, summary.Generations)
	assert.EqualValues(t, 4, ev.calls.Load(), "no generation starts after the breaker trips")
	assert.Zero(t, rec.outcomes[OutcomeRefused])

	gens, err := tr.ListGenerations(context.Background(), summary.RunID)
	require.NoError(t, err)
	require.Len(t, gens, 1)
	assert.Equal(t, 0, gens[0].Number)

	invs, err := tr.ListInvocations(context.Background(), summary.RunID, -1)
	require.NoError(t, err)
	assert.Len(t, invs, 4)
}

// cancellingTracker 在写入代记录时取消运行，并像数据库驱动一样遵守 ctx
type cancellingTracker struct {
	*tracker.MemoryTracker
	engine *Engine
	once   sync.Once
}

func (c *cancellingTracker) CreateGeneration(ctx context.Context, gen *tracker.Generation) error {
	c.once.Do(func() { c.engine.Cancel("operator request") })
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MemoryTracker.CreateGeneration(ctx, gen)
}

func TestEngine_CancelDuringPersistence(t *testing.T) {
	tr := &cancellingTracker{MemoryTracker: tracker.NewMemoryTracker()}
	cfg := smallConfig()
	cfg.GenerationAmount = 3
	e := newTestEngine(t, cfg, Deps{Evaluator: &fakeEvaluator{}, Tracker: tr})
	tr.engine = e

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.RunStatusInterrupted, summary.Status)
	assert.Contains(t, summary.StopReason, "operator request")
	assert.Equal(t, 1, summary.Generations, "the evaluated generation is kept")

	ctx := context.Background()
	gens, err := tr.ListGenerations(ctx, summary.RunID)
	require.NoError(t, err)
	assert.Len(t, gens, 1)
	invs, err := tr.ListInvocations(ctx, summary.RunID, 0)
	require.NoError(t, err)
	assert.Len(t, invs, 4, "the generation is written completely")

	run, err := tr.GetRun(ctx, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, tracker.RunStatusInterrupted, run.Status)
}

// cancellingSeeder 在播种时取消运行并返回上下文错误
type cancellingSeeder struct{ engine *Engine }

func (s *cancellingSeeder) Seed(ctx context.Context, rng *rand.Rand, n int) ([]*workflow.Config, error) {
	s.engine.Cancel("operator request")
	return nil, ctx.Err()
}

func TestEngine_ErrorAfterCancelIsInterruption(t *testing.T) {
	seeder := &cancellingSeeder{}
	e := newTestEngine(t, smallConfig(), Deps{Evaluator: &fakeEvaluator{}, Seeder: seeder})
	seeder.engine = e

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.RunStatusInterrupted, summary.Status)
	assert.Contains(t, summary.StopReason, ErrCancelled.Error())
}

// toolEvaluator 评估前为工作流解析外部工具，模拟真实管道的客户端占用
type toolEvaluator struct {
	fakeEvaluator
	resolver *tools.Resolver
}

func (ev *toolEvaluator) Evaluate(ctx context.Context, g *genome.Genome, cases []evaluation.Case, obs pipeline.Observer) (*evaluation.Report, error) {
	ev.resolver.Resolve(ctx, []string{"browser"}, g.Workflow.ID)
	return ev.fakeEvaluator.Evaluate(ctx, g, cases, obs)
}

func TestEngine_ReleasesToolClients(t *testing.T) {
	factory := mocks.NewMockClientFactory(map[string][]string{"browser": {"navigate"}})
	resolver := tools.NewResolver(tools.ResolverConfig{
		Servers: []tools.MCPServerConfig{{Name: "browser", Command: "mock-browser"}},
		Factory: factory.Factory(),
	}, zaptest.NewLogger(t))

	var mu sync.Mutex
	released := make(map[string]int)
	cfg := smallConfig()
	cfg.GenerationAmount = 3
	cfg.EliteCount = 1
	ev := &toolEvaluator{resolver: resolver}
	e := newTestEngine(t, cfg, Deps{
		Evaluator: ev,
		ReleaseWorkflow: func(id string) {
			mu.Lock()
			released[id]++
			mu.Unlock()
			resolver.Clients().ClearFor(id)
		},
	})

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.RunStatusCompleted, summary.Status)

	assert.Zero(t, resolver.Clients().Len(), "no client outlives the run")
	for _, c := range factory.Created() {
		assert.True(t, c.Closed())
	}
	// 第 1、2 代的精英沿用上一代的客户端
	assert.Equal(t, int(ev.calls.Load())-2, factory.Count())
	for id, n := range released {
		assert.Equal(t, 1, n, "workflow %s released once", id)
	}
	assert.Len(t, released, factory.Count()+summary.Discarded)
}

func TestEngine_BoundsConcurrentWorkflows(t *testing.T) {
	cfg := smallConfig()
	cfg.PopulationSize = 6
	cfg.MaxConcurrentWorkflows = 2
	cfg.GenerationAmount = 1
	ev := &fakeEvaluator{delay: 20 * time.Millisecond}
	e := newTestEngine(t, cfg, Deps{Evaluator: ev})

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 6, ev.calls.Load())
	assert.LessOrEqual(t, ev.peak.Load(), int32(2))
}

func TestEngine_RejectsConcurrentRun(t *testing.T) {
	e := newTestEngine(t, smallConfig(), Deps{Evaluator: &fakeEvaluator{delay: 100 * time.Millisecond}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.Run(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)

	_, err := e.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.KindRaceCondition, types.KindOf(err))
	<-done
}

// brokenSeeder 产生没有 entry 的工作流
type brokenSeeder struct{}

func (brokenSeeder) Seed(ctx context.Context, rng *rand.Rand, n int) ([]*workflow.Config, error) {
	out := make([]*workflow.Config, n)
	for i := range out {
		out[i] = &workflow.Config{}
	}
	return out, nil
}

func TestEngine_TooManyDiscardsFailsRun(t *testing.T) {
	tr := tracker.NewMemoryTracker()
	cfg := smallConfig()
	cfg.MaxDiscardRatio = 0.5
	e := newTestEngine(t, cfg, Deps{Evaluator: &fakeEvaluator{}, Tracker: tr, Seeder: brokenSeeder{}})

	summary, err := e.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.KindPopulation, types.KindOf(err))
	assert.Equal(t, types.ErrTooManyDiscards, types.GetErrorCode(err))
	assert.Equal(t, tracker.RunStatusFailed, summary.Status)
	assert.Positive(t, summary.Discarded)

	run, err := tr.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, tracker.RunStatusFailed, run.Status)
}

func TestEngine_RepairWithinRetries(t *testing.T) {
	cfg := smallConfig()
	e := newTestEngine(t, cfg, Deps{Evaluator: &fakeEvaluator{}})

	c := linear(t, "a", "b")
	c.Entry = "ghost"
	g := genome.NewSeed(c)
	require.NoError(t, e.repair(g))
	assert.Equal(t, "a", g.Workflow.Entry)

	e.cfg.MaxRetriesForWorkflowRepair = 0
	bad := genome.NewSeed(&workflow.Config{Entry: "x"})
	err := e.repair(bad)
	require.Error(t, err)
	assert.Equal(t, types.KindWorkflowRepair, types.KindOf(err))
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(smallConfig(), testCases, Deps{}, nil)
	assert.Error(t, err, "evaluator is required")

	_, err = NewEngine(smallConfig(), nil, Deps{Evaluator: &fakeEvaluator{}}, nil)
	assert.Error(t, err, "cases are required")

	cfg := smallConfig()
	cfg.PopulationSize = 0
	_, err = NewEngine(cfg, testCases, Deps{Evaluator: &fakeEvaluator{}}, nil)
	require.Error(t, err)
	assert.Equal(t, types.KindWorkflowConfiguration, types.KindOf(err))

	cfg = smallConfig()
	cfg.Selection = "roulette"
	_, err = NewEngine(cfg, testCases, Deps{Evaluator: &fakeEvaluator{}}, nil)
	assert.Error(t, err)
}
