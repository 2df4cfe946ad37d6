package evaluation_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/evoflow/evaluation"
	"github.com/BaSui01/evoflow/genome"
	"github.com/BaSui01/evoflow/pipeline"
	"github.com/BaSui01/evoflow/testutil/mocks"
	"github.com/BaSui01/evoflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

// upperProvider 把输入转为大写；输入为 "explode" 时报错
func upperProvider() *mocks.MockProvider {
	return mocks.NewMockProvider().WithFunc(
		func(ctx context.Context, req *pipeline.GenerateRequest) ([]types.AgentStep, error) {
			input := req.History[len(req.History)-1].Content
			if input == "explode" {
				return nil, errors.New("model exploded")
			}
			return []types.AgentStep{mocks.TerminateStep(strings.ToUpper(input), "")}, nil
		})
}

func newEvaluator(t *testing.T, provider pipeline.ModelProvider, cfg evaluation.Config) *evaluation.Evaluator {
	logger := zaptest.NewLogger(t)
	runner := evaluation.NewRunner(evaluation.RunnerConfig{Provider: provider}, logger)
	return evaluation.NewEvaluator(runner, nil, cfg, logger)
}

func scoreOnly() evaluation.Config {
	fc := evaluation.DefaultFitnessConfig()
	fc.ScoreWeight, fc.TimeWeight, fc.CostWeight = 1, 0, 0
	return evaluation.Config{Fitness: fc, MaxConcurrentCases: 2}
}

type caseRecorder struct {
	mu     sync.Mutex
	failed int
	total  int
}

func (r *caseRecorder) RecordCase(failed bool, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	if failed {
		r.failed++
	}
}

func TestEvaluator_AllCasesPass(t *testing.T) {
	ev := newEvaluator(t, upperProvider(), scoreOnly())
	g := genome.NewSeed(chain(t, "solver"))
	cases := []evaluation.Case{
		{ID: "1", Input: "abc", Expected: "ABC"},
		{ID: "2", Input: "xyz", Expected: "XYZ"},
	}

	report, err := ev.Evaluate(context.Background(), g, cases, nil)
	require.NoError(t, err)
	assert.Equal(t, g.ID, report.GenomeID)
	assert.InDelta(t, 1.0, report.Fitness.Score, 1e-9)
	assert.InDelta(t, 1.0, report.Fitness.Accuracy, 1e-9)
	assert.Equal(t, 2, report.Passed)
	assert.Equal(t, "all 2 cases passed", report.Feedback)

	// 评估器不写回基因组
	assert.False(t, g.Evaluated())
}

func TestEvaluator_FailingCaseIsSentinel(t *testing.T) {
	rec := &caseRecorder{}
	ev := newEvaluator(t, upperProvider(), scoreOnly())
	ev.SetRecorder(rec)
	g := genome.NewSeed(chain(t, "solver"))
	cases := []evaluation.Case{
		{ID: "ok-1", Input: "abc", Expected: "ABC"},
		{ID: "boom", Input: "explode", Expected: "EXPLODE"},
		{ID: "ok-2", Input: "def", Expected: "DEF"},
		{ID: "ok-3", Input: "ghi", Expected: "GHI"},
	}

	report, err := ev.Evaluate(context.Background(), g, cases, nil)
	require.NoError(t, err)
	require.Len(t, report.Cases, 4)

	failed := report.Cases[1]
	assert.True(t, failed.Failed)
	assert.Zero(t, failed.Score)
	assert.Zero(t, failed.TimeFactor)
	assert.Zero(t, failed.CostFactor)
	assert.Contains(t, failed.Error, "model exploded")

	assert.InDelta(t, 0.75, report.Fitness.Score, 1e-9)
	assert.Equal(t, 3, report.Passed)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Feedback, "case boom errored")
	assert.Equal(t, 4, rec.total)
	assert.Equal(t, 1, rec.failed)
}

func TestEvaluator_CaseTimeout(t *testing.T) {
	provider := mocks.NewMockProvider().WithDelay(time.Second)
	ev := newEvaluator(t, provider, scoreOnly())
	g := genome.NewSeed(chain(t, "solver"))

	report, err := ev.Evaluate(context.Background(), g,
		[]evaluation.Case{{ID: "slow", Input: "x", Expected: "y", Timeout: 20 * time.Millisecond}}, nil)
	require.NoError(t, err)
	assert.True(t, report.Cases[0].Failed)
	assert.Zero(t, report.Fitness.Score)
}

func TestEvaluator_PerCaseScorer(t *testing.T) {
	ev := newEvaluator(t, upperProvider(), scoreOnly())
	ev.RegisterScorer("contains", &evaluation.ContainsScorer{})
	g := genome.NewSeed(chain(t, "solver"))

	report, err := ev.Evaluate(context.Background(), g, []evaluation.Case{
		{ID: "c", Input: "hello world", Expected: "world", Metadata: map[string]string{"scorer": "contains"}},
	}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, report.Cases[0].Score, 1e-9)
}

func TestEvaluator_RejectsEmptyInput(t *testing.T) {
	ev := newEvaluator(t, upperProvider(), scoreOnly())
	_, err := ev.Evaluate(context.Background(), genome.NewSeed(chain(t, "a")), nil, nil)
	assert.Error(t, err)

	_, err = ev.Evaluate(context.Background(), &genome.Genome{}, []evaluation.Case{{ID: "1"}}, nil)
	assert.True(t, types.IsKind(err, types.KindWorkflowConfiguration))
}

func TestFactors(t *testing.T) {
	cfg := evaluation.DefaultFitnessConfig()

	assert.Equal(t, 1.0, evaluation.TimeFactor(time.Second, cfg))
	assert.Equal(t, 0.0, evaluation.TimeFactor(2*time.Minute, cfg))
	assert.InDelta(t, 0.5, evaluation.TimeFactor(32500*time.Millisecond, cfg), 1e-9)

	assert.Equal(t, 1.0, evaluation.CostFactor(0, cfg))
	assert.Equal(t, 0.0, evaluation.CostFactor(0.05, cfg))
	assert.InDelta(t, 0.5, evaluation.CostFactor(0.0255, cfg), 1e-9)
}

func TestProperty_AggregateMatchesFormula(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := evaluation.FitnessConfig{
			ScoreWeight: rapid.Float64Range(0, 2).Draw(rt, "ws"),
			TimeWeight:  rapid.Float64Range(0, 2).Draw(rt, "wt"),
			CostWeight:  rapid.Float64Range(0, 2).Draw(rt, "wc"),
		}
		n := rapid.IntRange(1, 20).Draw(rt, "n")
		results := make([]evaluation.CaseResult, n)
		var sumS, sumT, sumC float64
		for i := range results {
			r := evaluation.CaseResult{
				Score:      rapid.Float64Range(0, 1).Draw(rt, "s"),
				TimeFactor: rapid.Float64Range(0, 1).Draw(rt, "t"),
				CostFactor: rapid.Float64Range(0, 1).Draw(rt, "c"),
				Failed:     rapid.Bool().Draw(rt, "failed"),
			}
			if !r.Failed {
				sumS += r.Score
				sumT += r.TimeFactor
				sumC += r.CostFactor
			}
			results[i] = r
		}

		f := evaluation.Aggregate(results, cfg)
		fn := float64(n)
		want := cfg.ScoreWeight*sumS/fn + cfg.TimeWeight*sumT/fn + cfg.CostWeight*sumC/fn
		if d := f.Score - want; d > 1e-6 || d < -1e-6 {
			rt.Fatalf("score %v, want %v", f.Score, want)
		}
		if d := f.Accuracy - sumS/fn; d > 1e-6 || d < -1e-6 {
			rt.Fatalf("accuracy %v, want %v", f.Accuracy, sumS/fn)
		}
	})
}
