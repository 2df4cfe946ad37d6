package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/evoflow/evaluation"
	"github.com/BaSui01/evoflow/genome"
	"github.com/BaSui01/evoflow/observer"
	"github.com/BaSui01/evoflow/pipeline"
	"github.com/BaSui01/evoflow/tracker"
	"github.com/BaSui01/evoflow/types"
	"github.com/BaSui01/evoflow/workflow"
)

var tracer = otel.Tracer("github.com/BaSui01/evoflow/evolution")

var (
	// ErrStalled 看门狗检测到长时间没有完成新的一代
	ErrStalled = errors.New("run stalled")
	// ErrCancelled 外部通过 Engine.Cancel 取消运行
	ErrCancelled = errors.New("run cancelled")
)

// 基因组产生方式，写入 WorkflowVersion.Operation
const (
	OpSeed      = "seed"
	OpElite     = "elite"
	OpCrossover = "crossover"
	OpMutation  = "mutation"
)

// 每代单个基因组的结局，供指标使用
const (
	OutcomeEvaluated = "evaluated"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
	OutcomeRefused   = "refused"
)

// reproductionFactor 每代最多尝试产生 PopulationSize 倍数的子代
const reproductionFactor = 4

// GenomeEvaluator 适应度评估协作方
type GenomeEvaluator interface {
	Evaluate(ctx context.Context, g *genome.Genome, cases []evaluation.Case, obs pipeline.Observer) (*evaluation.Report, error)
}

// Recorder 接收演化过程的指标
type Recorder interface {
	RecordGeneration(generation int, best, mean float64, d time.Duration)
	RecordGenome(outcome string)
	RecordCost(usd float64)
}

// Deps 引擎协作方。Evaluator 必填，其余为空时使用默认实现。
type Deps struct {
	Evaluator GenomeEvaluator
	Tracker   tracker.Tracker
	Pool      *GenePool
	Seeder    Seeder
	Selector  Selector
	Operators *Operators
	Repairer  Repairer
	// KnownTool 校验工作流引用的工具是否可解析；nil 表示不校验
	KnownTool func(name string) bool
	Hub       *observer.Hub
	Recorder  Recorder
	// ReleaseWorkflow 释放工作流持有的外部资源（工具客户端子进程等）。
	// 工作流不再参与后续代时调用；nil 表示无需释放。
	ReleaseWorkflow func(workflowID string)
}

// RunSummary 一次运行的结果
type RunSummary struct {
	RunID        string             `json:"run_id"`
	Status       tracker.RunStatus  `json:"status"`
	StopReason   string             `json:"stop_reason,omitempty"`
	Generations  int                `json:"generations"`
	Best         *genome.Genome     `json:"best,omitempty"`
	Population   *genome.Population `json:"-"`
	TotalCostUSD float64            `json:"total_cost_usd"`
	Discarded    int                `json:"discarded"`
}

// Engine 演化主循环：播种、繁殖、修复、评估、持久化、选择，逐代进行，不做流水线化。
type Engine struct {
	cfg    Config
	cases  []evaluation.Case
	deps   Deps
	rng    *rand.Rand
	logger *zap.Logger

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelCauseFunc
}

// NewEngine validates the configuration and fills default collaborators.
func NewEngine(cfg Config, cases []evaluation.Case, deps Deps, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, types.NewError(types.KindWorkflowConfiguration, types.ErrConfigInvalid, err.Error()).WithCause(err)
	}
	if deps.Evaluator == nil {
		return nil, types.NewError(types.KindWorkflowConfiguration, types.ErrConfigInvalid, "evaluator is required")
	}
	if len(cases) == 0 {
		return nil, types.NewError(types.KindWorkflowConfiguration, types.ErrConfigInvalid, "at least one evaluation case is required")
	}

	pool := DefaultGenePool(nil)
	if deps.Pool != nil {
		pool = *deps.Pool
	}
	if deps.Tracker == nil {
		deps.Tracker = tracker.NewMemoryTracker()
	}
	if deps.Seeder == nil {
		seeder, err := NewSeeder(cfg, pool)
		if err != nil {
			return nil, err
		}
		deps.Seeder = seeder
	}
	if deps.Selector == nil {
		selector, err := NewSelector(cfg.Selection, cfg.TournamentSize, cfg.EliteCount)
		if err != nil {
			return nil, types.NewError(types.KindWorkflowConfiguration, types.ErrConfigInvalid, err.Error())
		}
		deps.Selector = selector
	}
	if deps.Operators == nil {
		deps.Operators = NewOperators(cfg, pool)
	}
	if deps.Repairer == nil {
		deps.Repairer = StructuralRepairer{AllowCycles: cfg.AllowCycles, KnownTool: deps.KnownTool}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		cfg:    cfg,
		cases:  cases,
		deps:   deps,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger.With(zap.String("component", "evolution_engine")),
	}, nil
}

// Cancel 请求停止当前运行；已派发的评估会跑完但结果不再使用。
// 没有运行中的任务时返回 false。
func (e *Engine) Cancel(reason string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return false
	}
	e.cancel(fmt.Errorf("%w: %s", ErrCancelled, reason))
	return true
}

// candidate 待评估的基因组及其产生方式
type candidate struct {
	g         *genome.Genome
	operation string
	costUSD   float64
}

// runState 单次运行的可变状态，只在主循环 goroutine 中访问
type runState struct {
	runID     string
	summary   *RunSummary
	breaker   *CostBreaker
	watchdog  *stallWatchdog
	observer  pipeline.Observer
	survivors *genome.Population
	// held 已评估且可能仍持有外部资源的工作流 ID
	held map[string]bool
}

// Run 执行一次完整的演化运行。停滞和 Cancel 以 interrupted 结束并返回 nil 错误；
// 结构性失败（种群过小、丢弃过多、持久化失败）以 failed 结束并返回错误。
func (e *Engine) Run(ctx context.Context) (*RunSummary, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, types.NewError(types.KindRaceCondition, types.ErrConcurrentExecute, "engine run already in progress").
			WithDebug("operation", "run")
	}
	defer e.running.Store(false)

	runCtx, cancel := context.WithCancelCause(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
		cancel(nil)
	}()

	runID := e.cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	st := &runState{
		runID:    runID,
		breaker:  NewCostBreaker(e.cfg.MaxCostUSDPerRun),
		watchdog: newStallWatchdog(e.cfg.StallThreshold),
		held:     make(map[string]bool),
	}
	st.summary = &RunSummary{RunID: st.runID, Status: tracker.RunStatusRunning}
	runCtx = types.WithRunID(runCtx, st.runID)
	logger := e.logger.With(zap.String("run_id", st.runID))

	snapshot, _ := json.Marshal(e.cfg)
	run := &tracker.EvolutionRun{
		ID:        st.runID,
		Goal:      e.cfg.Goal,
		Status:    tracker.RunStatusRunning,
		Mode:      e.cfg.Mode,
		StartedAt: time.Now(),
		Config:    string(snapshot),
	}
	if err := e.deps.Tracker.CreateEvolutionRun(runCtx, run); err != nil {
		st.summary.Status = tracker.RunStatusFailed
		return st.summary, err
	}

	if e.deps.Hub != nil {
		st.observer = e.deps.Hub.Sink(st.runID)
		defer e.deps.Hub.Release(st.runID)
	}

	go st.watchdog.Run(runCtx, func(idle time.Duration) {
		logger.Warn("no generation completed within stall threshold",
			zap.Duration("idle", idle), zap.Duration("threshold", e.cfg.StallThreshold))
		cancel(ErrStalled)
	})

	logger.Info("evolution run started",
		zap.String("mode", string(e.cfg.Mode)),
		zap.Int("generations", e.cfg.GenerationAmount),
		zap.Int("population_size", e.cfg.PopulationSize))

	status, reason, err := e.loop(runCtx, st, logger)
	e.releaseAll(st)
	st.summary.Status = status
	st.summary.StopReason = reason
	st.summary.TotalCostUSD = st.breaker.Spent()

	if uerr := e.deps.Tracker.UpdateRunStatus(context.WithoutCancel(runCtx), st.runID, status); uerr != nil {
		logger.Error("failed to record final run status", zap.String("status", string(status)), zap.Error(uerr))
		if err == nil {
			err = uerr
		}
	}

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Int("generations", st.summary.Generations),
		zap.Float64("cost_usd", st.summary.TotalCostUSD),
	}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	if st.summary.Best != nil {
		fields = append(fields, zap.String("best_genome", st.summary.Best.ID), zap.Float64("best_score", st.summary.Best.Score()))
	}
	if err != nil {
		logger.Error("evolution run ended", append(fields, zap.Error(err))...)
	} else {
		logger.Info("evolution run ended", fields...)
	}
	return st.summary, err
}

// loop 逐代执行，返回最终状态、停止原因和错误
func (e *Engine) loop(ctx context.Context, st *runState, logger *zap.Logger) (tracker.RunStatus, string, error) {
	for gen := 0; gen < e.cfg.GenerationAmount; gen++ {
		if status, reason, stop, err := e.interrupted(ctx); stop {
			return status, reason, err
		}
		if !st.breaker.Allow() {
			return tracker.RunStatusInterrupted, "cost budget exceeded", nil
		}

		refused, err := e.generation(ctx, st, gen, logger)
		if err != nil {
			// 取消或停滞后出现的错误按中断处理
			if status, reason, stop, ierr := e.interrupted(ctx); stop {
				logger.Warn("generation aborted by interruption", zap.Int("generation", gen), zap.Error(err))
				return status, reason, ierr
			}
			return tracker.RunStatusFailed, err.Error(), err
		}
		if status, reason, stop, err := e.interrupted(ctx); stop {
			return status, reason, err
		}
		if refused {
			return tracker.RunStatusInterrupted, "cost budget exceeded", nil
		}
		st.watchdog.Touch()
	}
	return tracker.RunStatusCompleted, "", nil
}

// interrupted 把运行上下文的取消原因映射为 interrupted 状态
func (e *Engine) interrupted(ctx context.Context) (tracker.RunStatus, string, bool, error) {
	if ctx.Err() == nil {
		return "", "", false, nil
	}
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrStalled) || errors.Is(cause, ErrCancelled) {
		return tracker.RunStatusInterrupted, cause.Error(), true, nil
	}
	return tracker.RunStatusInterrupted, cause.Error(), true, cause
}

// generation 执行一代。refused 为 true 表示成本熔断拒绝了部分评估。
func (e *Engine) generation(ctx context.Context, st *runState, gen int, logger *zap.Logger) (refused bool, err error) {
	ctx, span := tracer.Start(ctx, "evolution.generation")
	span.SetAttributes(attribute.String("run.id", st.runID), attribute.Int("generation", gen))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	logger = logger.With(zap.Int("generation", gen))

	cands, err := e.produce(ctx, st, gen, logger)
	if err != nil {
		return false, err
	}

	evaluated, refusedCount := e.evaluate(ctx, st, cands, logger)
	for _, c := range cands {
		st.held[c.g.Workflow.ID] = true
	}
	if ctx.Err() != nil {
		logger.Info("run interrupted during evaluation; generation results excluded",
			zap.Int("evaluated", len(evaluated)))
		return false, nil
	}
	if len(evaluated) == 0 && refusedCount > 0 {
		logger.Warn("cost budget exceeded before any evaluation; generation not recorded",
			zap.Int("refused", refusedCount))
		return true, nil
	}

	if len(evaluated) == 0 {
		// 空代不写入追踪存储
		return false, types.NewPopulationError("evaluation", 0, e.cfg.MinPopulationSize)
	}

	genomes := make([]*genome.Genome, len(evaluated))
	for i, c := range evaluated {
		genomes[i] = c.g
	}
	assignNovelty(genomes)

	// 已评估的代完整写入，不受运行取消影响
	if err := e.persist(context.WithoutCancel(ctx), st, gen, start, evaluated); err != nil {
		return false, err
	}

	pop := genome.NewPopulation(gen, e.cfg.MinPopulationSize)
	for _, c := range evaluated {
		pop.Add(c.g)
	}
	st.summary.Generations = gen + 1
	st.summary.Population = pop
	if best, ok := pop.Best(); ok && best.Evaluated() {
		if st.summary.Best == nil || best.Score() > st.summary.Best.Score() {
			st.summary.Best = best
		}
	}

	mean := pop.MeanScore()
	var bestScore float64
	if best, ok := pop.Best(); ok {
		bestScore = best.Score()
	}
	if e.deps.Recorder != nil {
		e.deps.Recorder.RecordGeneration(gen, bestScore, mean, time.Since(start))
	}
	span.SetAttributes(
		attribute.Int("population.size", pop.Len()),
		attribute.Float64("fitness.best", bestScore),
		attribute.Float64("fitness.mean", mean))
	logger.Info("generation completed",
		zap.Int("evaluated", pop.Len()),
		zap.Float64("best", bestScore),
		zap.Float64("mean", mean),
		zap.Duration("duration", time.Since(start)))

	if refusedCount > 0 {
		logger.Warn("cost budget exceeded; remaining evaluations refused",
			zap.Int("refused", refusedCount),
			zap.Float64("spent_usd", st.breaker.Spent()),
			zap.Float64("limit_usd", e.cfg.MaxCostUSDPerRun))
		return true, nil
	}

	if err := pop.CheckMinSize("evaluation"); err != nil {
		return false, err
	}
	if gen == e.cfg.GenerationAmount-1 {
		return false, nil
	}
	survivors, err := e.deps.Selector.Survivors(e.rng, pop, e.cfg.survivors())
	if err != nil {
		return false, err
	}
	st.survivors = survivors
	e.releaseExcept(st, survivors)
	return false, nil
}

// produce 产生本代候选：第 0 代播种，之后由精英加交叉/变异子代组成，均经过修复
func (e *Engine) produce(ctx context.Context, st *runState, gen int, logger *zap.Logger) ([]candidate, error) {
	var (
		out       []candidate
		attempts  int
		discarded int
	)
	target := e.cfg.PopulationSize
	limit := target * reproductionFactor

	admit := func(c candidate) {
		attempts++
		if err := e.repair(c.g); err != nil {
			discarded++
			st.summary.Discarded++
			e.recordGenome(OutcomeDiscarded)
			logger.Warn("genome discarded after repair attempts",
				zap.String("genome_id", c.g.ID),
				zap.String("operation", c.operation),
				zap.Error(err))
			if c.g.Workflow != nil && !st.held[c.g.Workflow.ID] {
				e.release(c.g.Workflow.ID)
			}
			return
		}
		out = append(out, c)
	}

	if gen == 0 {
		for len(out) < target && attempts < limit {
			configs, err := e.deps.Seeder.Seed(ctx, e.rng, target-len(out))
			if err != nil {
				return nil, err
			}
			if len(configs) == 0 {
				break
			}
			for _, cfg := range configs {
				admit(candidate{g: genome.NewSeed(cfg), operation: OpSeed})
			}
		}
	} else {
		if st.survivors == nil || st.survivors.Len() == 0 {
			return nil, types.NewPopulationError("reproduction", 0, e.cfg.MinPopulationSize)
		}
		ranked := st.survivors.Ranked()
		for _, elite := range st.survivors.Top(e.cfg.EliteCount) {
			if len(out) == target {
				break
			}
			admit(candidate{g: elite.CarryOver(gen), operation: OpElite})
		}
		for len(out) < target && attempts < limit {
			child, op, err := e.reproduce(ctx, gen, ranked)
			if err != nil {
				if types.IsKind(err, types.KindGeneticOperation) {
					attempts++
					logger.Debug("reproduction attempt failed; retrying", zap.Error(err))
					continue
				}
				return nil, err
			}
			admit(candidate{g: child, operation: op})
		}
	}

	if attempts > 0 && float64(discarded)/float64(attempts) > e.cfg.MaxDiscardRatio {
		return nil, types.NewError(types.KindPopulation, types.ErrTooManyDiscards,
			fmt.Sprintf("%d of %d genomes in generation %d were discarded by repair", discarded, attempts, gen)).
			WithDebug("generation", gen).
			WithDebug("discarded", discarded).
			WithDebug("attempts", attempts).
			WithDebug("maxDiscardRatio", e.cfg.MaxDiscardRatio).
			WithAction("raise max_retries_for_workflow_repair or lower structural mutation rates")
	}
	if len(out) < e.cfg.MinPopulationSize {
		return nil, types.NewPopulationError("reproduction", len(out), e.cfg.MinPopulationSize)
	}
	return out, nil
}

// reproduce 按 CrossoverRate 选择交叉或变异并挑选父代
func (e *Engine) reproduce(ctx context.Context, gen int, ranked []*genome.Genome) (*genome.Genome, string, error) {
	if len(ranked) >= 2 && e.rng.Float64() < e.cfg.CrossoverRate {
		parents, err := e.deps.Selector.PickParents(e.rng, ranked, 2)
		if err != nil {
			return nil, OpCrossover, err
		}
		child, err := e.deps.Operators.Crossover(ctx, e.rng, gen, parents...)
		return child, OpCrossover, err
	}
	parents, err := e.deps.Selector.PickParents(e.rng, ranked, 1)
	if err != nil {
		return nil, OpMutation, err
	}
	child, err := e.deps.Operators.Mutate(ctx, e.rng, gen, parents...)
	return child, OpMutation, err
}

// repair 校验基因组的工作流，不合法时最多修复 MaxRetriesForWorkflowRepair 次
func (e *Engine) repair(g *genome.Genome) error {
	opts := workflow.Options{AllowCycles: e.cfg.AllowCycles, KnownTool: e.deps.KnownTool}
	lastErr := workflow.ValidateErr(g.Workflow, opts)
	if lastErr == nil {
		return nil
	}
	if g.Workflow == nil {
		return types.NewWorkflowRepairError(g.ID, 0, lastErr)
	}

	cfg := g.Workflow
	attempts := 0
	for attempts < e.cfg.MaxRetriesForWorkflowRepair {
		attempts++
		repaired, err := e.deps.Repairer.Repair(cfg)
		if err != nil {
			lastErr = err
			break
		}
		cfg = repaired
		if lastErr = workflow.ValidateErr(cfg, opts); lastErr == nil {
			g.Workflow = cfg
			return nil
		}
	}
	return types.NewWorkflowRepairError(g.ID, attempts, lastErr)
}

// evaluate 在 MaxConcurrentWorkflows 的准入控制下并发评估候选。
// 已派发的评估不受运行取消影响；熔断后不再派发。结果保持候选顺序。
func (e *Engine) evaluate(ctx context.Context, st *runState, cands []candidate, logger *zap.Logger) ([]candidate, int) {
	sem := semaphore.NewWeighted(int64(e.cfg.MaxConcurrentWorkflows))
	costs := make([]float64, len(cands))
	ok := make([]bool, len(cands))
	dispatched := 0
	var wg sync.WaitGroup

	for i, c := range cands {
		if !st.breaker.Allow() {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if !st.breaker.Allow() {
			sem.Release(1)
			break
		}
		dispatched++
		wg.Add(1)
		go func(i int, c candidate) {
			defer wg.Done()
			defer sem.Release(1)
			costs[i], ok[i] = e.evaluateOne(context.WithoutCancel(ctx), st, c, logger)
		}(i, c)
	}
	wg.Wait()

	refused := 0
	if ctx.Err() == nil {
		refused = len(cands) - dispatched
		for i := 0; i < refused; i++ {
			e.recordGenome(OutcomeRefused)
		}
	}

	var out []candidate
	for i, c := range cands {
		if ok[i] {
			c.costUSD = costs[i]
			out = append(out, c)
		}
	}
	return out, refused
}

// evaluateOne 评估单个基因组，返回其费用以及是否得到适应度
func (e *Engine) evaluateOne(ctx context.Context, st *runState, c candidate, logger *zap.Logger) (float64, bool) {
	report, err := e.deps.Evaluator.Evaluate(ctx, c.g, e.cases, st.observer)
	if err != nil {
		e.recordGenome(OutcomeFailed)
		logger.Warn("genome evaluation failed", zap.String("genome_id", c.g.ID), zap.Error(err))
		return 0, false
	}

	var spent float64
	for _, r := range report.Cases {
		if !r.Cached {
			spent += r.CostUSD
		}
	}
	if spent > 0 && e.deps.Recorder != nil {
		e.deps.Recorder.RecordCost(spent)
	}
	if st.breaker.Add(spent) {
		logger.Warn("cost breaker tripped",
			zap.Float64("spent_usd", st.breaker.Spent()),
			zap.Float64("limit_usd", e.cfg.MaxCostUSDPerRun))
	}

	c.g.SetFitnessAndFeedback(report.Fitness, report.Feedback)
	e.recordGenome(OutcomeEvaluated)
	return report.TotalCost, true
}

// persist 写入代记录以及每个基因组的工作流、版本、调用和分数
func (e *Engine) persist(ctx context.Context, st *runState, gen int, start time.Time, evaluated []candidate) error {
	tr := e.deps.Tracker
	if err := tr.CreateGeneration(ctx, &tracker.Generation{
		RunID:     st.runID,
		Number:    gen,
		StartedAt: start,
		Comment:   fmt.Sprintf("%d genomes evaluated", len(evaluated)),
	}); err != nil {
		return err
	}

	for _, c := range evaluated {
		g := c.g
		wf := g.Workflow
		if err := tr.EnsureWorkflowExists(ctx, wf.ID, describe(wf, e.cfg.Goal)); err != nil {
			return err
		}

		dsl, err := workflow.Marshal(wf)
		if err != nil {
			return types.NewRunTrackingError(types.ErrTrackerWrite, "marshal workflow", err)
		}
		// 版本按内容寻址，相同结构的后代共用第一次写入的记录
		hash := workflow.Hash(wf)
		version := &tracker.WorkflowVersion{
			ID:         hash,
			WorkflowID: wf.ID,
			RunID:      st.runID,
			Generation: gen,
			GenomeID:   g.ID,
			ParentIDs:  strings.Join(g.ParentIDs, ","),
			Hash:       hash,
			DSL:        string(dsl),
			Operation:  c.operation,
		}
		if err := tr.CreateWorkflowVersion(ctx, version); err != nil {
			return err
		}

		inv := &tracker.WorkflowInvocation{
			ID:         uuid.NewString(),
			RunID:      st.runID,
			Generation: gen,
			VersionID:  version.ID,
			GenomeID:   g.ID,
		}
		if err := tr.CreateWorkflowInvocation(ctx, inv); err != nil {
			return err
		}

		f, _ := g.Fitness()
		if err := tr.UpdateInvocationScores(ctx, inv.ID, tracker.Scores{
			Accuracy:     f.Accuracy,
			FitnessScore: f.Score,
			Novelty:      f.Novelty,
			CostUSD:      c.costUSD,
			Feedback:     g.Feedback(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// releaseExcept 释放未进入父代池的工作流资源
func (e *Engine) releaseExcept(st *runState, survivors *genome.Population) {
	keep := make(map[string]bool, survivors.Len())
	for _, g := range survivors.Genomes() {
		keep[g.Workflow.ID] = true
	}
	for id := range st.held {
		if !keep[id] {
			e.release(id)
			delete(st.held, id)
		}
	}
}

// releaseAll 运行结束时释放全部工作流资源
func (e *Engine) releaseAll(st *runState) {
	for id := range st.held {
		e.release(id)
	}
	clear(st.held)
}

func (e *Engine) release(workflowID string) {
	if e.deps.ReleaseWorkflow != nil && workflowID != "" {
		e.deps.ReleaseWorkflow(workflowID)
	}
}

func (e *Engine) recordGenome(outcome string) {
	if e.deps.Recorder != nil {
		e.deps.Recorder.RecordGenome(outcome)
	}
}

func describe(wf *workflow.Config, goal string) string {
	switch {
	case wf.Description != "":
		return wf.Description
	case wf.Name != "":
		return wf.Name
	default:
		return goal
	}
}
