package api

import (
	"github.com/BaSui01/evoflow/observer"
	"github.com/BaSui01/evoflow/tracker"
)

// =============================================================================
// 📦 运行视图
// =============================================================================

// RunDetail 运行记录及其代际摘要
type RunDetail struct {
	Run             *tracker.EvolutionRun `json:"run"`
	Generations     []tracker.Generation  `json:"generations"`
	InvocationCount int                   `json:"invocation_count"`
	BestFitness     *float64              `json:"best_fitness,omitempty"`
	BestGenomeID    string                `json:"best_genome_id,omitempty"`
}

// NewRunDetail builds the view; the best genome is the highest scored invocation.
func NewRunDetail(run *tracker.EvolutionRun, gens []tracker.Generation, invs []tracker.WorkflowInvocation) RunDetail {
	d := RunDetail{Run: run, Generations: gens, InvocationCount: len(invs)}
	if d.Generations == nil {
		d.Generations = []tracker.Generation{}
	}
	for i := range invs {
		score := invs[i].FitnessScore
		if score == nil {
			continue
		}
		if d.BestFitness == nil || *score > *d.BestFitness {
			v := *score
			d.BestFitness = &v
			d.BestGenomeID = invs[i].GenomeID
		}
	}
	return d
}

// InvocationList 调用记录列表
type InvocationList struct {
	RunID       string                       `json:"run_id"`
	Generation  *int                         `json:"generation,omitempty"`
	Invocations []tracker.WorkflowInvocation `json:"invocations"`
}

// EventSnapshot 事件缓冲快照
type EventSnapshot struct {
	RunID   string           `json:"run_id"`
	Events  []observer.Event `json:"events"`
	Dropped int64            `json:"dropped"`
}
