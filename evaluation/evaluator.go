package evaluation

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/evoflow/genome"
	"github.com/BaSui01/evoflow/pipeline"
	"github.com/BaSui01/evoflow/types"
	"github.com/BaSui01/evoflow/workflow"
)

var tracer = otel.Tracer("github.com/BaSui01/evoflow/evaluation")

// maxFeedbackCases 反馈文本中最多列出的失败用例数
const maxFeedbackCases = 5

// CaseRecorder 接收用例级别的指标
type CaseRecorder interface {
	RecordCase(failed bool, d time.Duration)
}

// Config 评估器配置
type Config struct {
	Fitness FitnessConfig
	// MaxConcurrentCases 单个基因组内并发执行的用例数，<=0 表示不限制
	MaxConcurrentCases int
	// DefaultTimeout 用例未指定超时时使用
	DefaultTimeout time.Duration
}

// Report 一个基因组的评估报告
type Report struct {
	GenomeID  string         `json:"genome_id"`
	Fitness   genome.Fitness `json:"fitness"`
	Cases     []CaseResult   `json:"cases"`
	Feedback  string         `json:"feedback"`
	TotalCost float64        `json:"total_cost"`
	Duration  time.Duration  `json:"duration"`
	Passed    int            `json:"passed"`
	Failed    int            `json:"failed"`
}

// Evaluator 在一组用例上运行基因组的工作流并聚合适应度
type Evaluator struct {
	runner   *Runner
	scorer   Scorer
	scorers  map[string]Scorer
	config   Config
	cache    ResultCache
	recorder CaseRecorder
	logger   *zap.Logger
}

// NewEvaluator creates an evaluator. A nil scorer uses ExactMatchScorer.
func NewEvaluator(runner *Runner, scorer Scorer, config Config, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scorer == nil {
		scorer = &ExactMatchScorer{}
	}
	return &Evaluator{
		runner:  runner,
		scorer:  scorer,
		scorers: make(map[string]Scorer),
		config:  config,
		logger:  logger.With(zap.String("component", "evaluator")),
	}
}

// RegisterScorer binds a scorer to cases whose metadata "scorer" equals name.
func (e *Evaluator) RegisterScorer(name string, s Scorer) {
	e.scorers[name] = s
}

// SetCache installs a result cache.
func (e *Evaluator) SetCache(c ResultCache) {
	e.cache = c
}

// SetRecorder installs a case metrics recorder.
func (e *Evaluator) SetRecorder(r CaseRecorder) {
	e.recorder = r
}

func (e *Evaluator) scorerFor(c *Case) Scorer {
	if name, ok := c.Metadata["scorer"]; ok {
		if s, ok := e.scorers[name]; ok {
			return s
		}
	}
	return e.scorer
}

// Evaluate 在所有用例上运行基因组。单个用例失败只贡献失败哨兵，不会中止其余用例。
// 返回的适应度尚不包含新颖度，也不会写回基因组。
func (e *Evaluator) Evaluate(ctx context.Context, g *genome.Genome, cases []Case, obs pipeline.Observer) (*Report, error) {
	if g == nil || g.Workflow == nil {
		return nil, types.NewWorkflowConfigurationError("genome has no workflow", nil)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("no evaluation cases")
	}

	ctx, span := tracer.Start(ctx, "evaluation.evaluate")
	span.SetAttributes(
		attribute.String("genome.id", g.ID),
		attribute.Int("cases", len(cases)))
	defer span.End()

	ctx = types.WithGenomeID(types.WithWorkflowID(ctx, g.Workflow.ID), g.ID)
	start := time.Now()
	hash := workflow.Hash(g.Workflow)
	results := make([]CaseResult, len(cases))

	// 用例之间互不取消：函数始终返回 nil
	var eg errgroup.Group
	if e.config.MaxConcurrentCases > 0 {
		eg.SetLimit(e.config.MaxConcurrentCases)
	}
	for i := range cases {
		eg.Go(func() error {
			results[i] = e.evaluateCase(ctx, g, hash, &cases[i], obs)
			return nil
		})
	}
	_ = eg.Wait()

	report := &Report{
		GenomeID: g.ID,
		Cases:    results,
		Fitness:  Aggregate(results, e.config.Fitness),
		Duration: time.Since(start),
	}
	for _, r := range results {
		report.TotalCost += r.CostUSD
		if !r.Failed && r.Score >= e.config.Fitness.PassThreshold {
			report.Passed++
		} else {
			report.Failed++
		}
	}
	report.Feedback = buildFeedback(cases, results, e.config.Fitness.PassThreshold)

	span.SetAttributes(
		attribute.Float64("fitness.score", report.Fitness.Score),
		attribute.Int("cases.failed", report.Failed))
	e.logger.Debug("genome evaluated",
		zap.String("genome_id", g.ID),
		zap.Float64("score", report.Fitness.Score),
		zap.Float64("accuracy", report.Fitness.Accuracy),
		zap.Int("passed", report.Passed),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (e *Evaluator) evaluateCase(ctx context.Context, g *genome.Genome, hash string, c *Case, obs pipeline.Observer) CaseResult {
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, hash, c.ID); ok {
			return *cached
		}
	}

	timeout := e.config.DefaultTimeout
	if c.Timeout > 0 {
		timeout = c.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	run, err := e.runner.Run(ctx, g.Workflow, c.Input, obs)
	elapsed := time.Since(start)
	result := e.score(ctx, c, run, err, elapsed)

	if e.recorder != nil {
		e.recorder.RecordCase(result.Failed, elapsed)
	}
	if e.cache != nil && !result.Failed {
		e.cache.Put(ctx, hash, c.ID, result)
	}
	return result
}

func (e *Evaluator) score(ctx context.Context, c *Case, run *RunResult, runErr error, elapsed time.Duration) CaseResult {
	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			runErr = types.NewWorkflowExecutionError(types.ErrCaseTimeout,
				fmt.Sprintf("case %s timed out", c.ID), runErr)
		}
		e.logger.Debug("case failed", zap.String("case_id", c.ID), zap.Error(runErr))
		r := FailedCaseResult(c.ID, runErr, elapsed)
		if run != nil {
			r.Hops = run.Hops
			r.CostUSD = run.CostUSD
		}
		return r
	}

	score, metrics, err := e.scorerFor(c).Score(ctx, c, run.Output)
	if err != nil {
		r := FailedCaseResult(c.ID, fmt.Errorf("scoring failed: %w", err), elapsed)
		r.Output = run.Output
		r.CostUSD = run.CostUSD
		return r
	}

	return CaseResult{
		CaseID:     c.ID,
		Output:     run.Output,
		Score:      score,
		Metrics:    metrics,
		Duration:   elapsed,
		CostUSD:    run.CostUSD,
		TimeFactor: TimeFactor(elapsed, e.config.Fitness),
		CostFactor: CostFactor(run.CostUSD, e.config.Fitness),
		Hops:       run.Hops,
	}
}

// buildFeedback 汇总未通过的用例，供反馈驱动的变异使用
func buildFeedback(cases []Case, results []CaseResult, passThreshold float64) string {
	var b strings.Builder
	listed := 0
	failing := 0
	for i, r := range results {
		if !r.Failed && r.Score >= passThreshold {
			continue
		}
		failing++
		if listed >= maxFeedbackCases {
			continue
		}
		listed++
		if r.Failed {
			fmt.Fprintf(&b, "- case %s errored: %s\n", r.CaseID, r.Error)
			continue
		}
		fmt.Fprintf(&b, "- case %s scored %.2f: expected %q, got %q\n",
			r.CaseID, r.Score, truncate(cases[i].Expected, 120), truncate(r.Output, 120))
	}
	if failing == 0 {
		return fmt.Sprintf("all %d cases passed", len(results))
	}
	header := fmt.Sprintf("%d of %d cases below %.2f:\n", failing, len(results), passThreshold)
	return header + strings.TrimRight(b.String(), "\n")
}

// truncate 按字符截断，保证结果仍是合法 UTF-8
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
