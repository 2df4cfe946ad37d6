package genome

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/evoflow/workflow"
)

// Origin 基因组来源，由父代数量决定
type Origin string

const (
	OriginSeed      Origin = "seed"
	OriginMutation  Origin = "mutation"
	OriginCrossover Origin = "crossover"
)

// Fitness 一次评估的适应度。整体替换，从不逐字段合并。
type Fitness struct {
	Score    float64 `json:"score"`
	Accuracy float64 `json:"accuracy"`
	Novelty  float64 `json:"novelty"`
}

// Genome 一个候选工作流及其谱系和适应度
type Genome struct {
	ID         string           `json:"id"`
	ParentIDs  []string         `json:"parent_ids,omitempty"`
	Workflow   *workflow.Config `json:"workflow"`
	Generation int              `json:"generation"`
	CreatedAt  time.Time        `json:"created_at"`

	mu       sync.RWMutex
	fitness  *Fitness
	feedback string
}

// NewSeed creates a generation-0 genome without parents.
func NewSeed(cfg *workflow.Config) *Genome {
	return newGenome(cfg, 0, nil)
}

// NewOffspring creates a genome for generation from one (mutation) or two (crossover) parents.
func NewOffspring(cfg *workflow.Config, generation int, parents ...*Genome) *Genome {
	ids := make([]string, 0, len(parents))
	for _, p := range parents {
		ids = append(ids, p.ID)
	}
	return newGenome(cfg, generation, ids)
}

func newGenome(cfg *workflow.Config, generation int, parentIDs []string) *Genome {
	g := &Genome{
		ID:         uuid.NewString(),
		ParentIDs:  parentIDs,
		Workflow:   cfg,
		Generation: generation,
		CreatedAt:  time.Now(),
	}
	if g.Workflow != nil && g.Workflow.ID == "" {
		g.Workflow.ID = g.ID
	}
	return g
}

// Origin derives the genome's origin from its parent count.
func (g *Genome) Origin() Origin {
	switch len(g.ParentIDs) {
	case 0:
		return OriginSeed
	case 1:
		return OriginMutation
	default:
		return OriginCrossover
	}
}

// SetFitnessAndFeedback 原子地替换全部适应度字段和反馈
func (g *Genome) SetFitnessAndFeedback(f Fitness, feedback string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fitness = &f
	g.feedback = feedback
}

// ClearEvaluationState 清空适应度和反馈；跨代复用的基因组重新评估前必须调用
func (g *Genome) ClearEvaluationState() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fitness = nil
	g.feedback = ""
}

// Fitness returns a copy of the fitness and whether it is set.
func (g *Genome) Fitness() (Fitness, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.fitness == nil {
		return Fitness{}, false
	}
	return *g.fitness, true
}

// Feedback returns the evaluation feedback text.
func (g *Genome) Feedback() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.feedback
}

// Evaluated reports whether fitness is set.
func (g *Genome) Evaluated() bool {
	_, ok := g.Fitness()
	return ok
}

// Score returns the fitness score, or 0 when unevaluated.
func (g *Genome) Score() float64 {
	f, _ := g.Fitness()
	return f.Score
}

// CarryOver 复制到下一代：同一 ID 与谱系，清空评估状态
func (g *Genome) CarryOver(generation int) *Genome {
	out := &Genome{
		ID:         g.ID,
		ParentIDs:  append([]string(nil), g.ParentIDs...),
		Workflow:   g.Workflow.Clone(),
		Generation: generation,
		CreatedAt:  g.CreatedAt,
	}
	return out
}
