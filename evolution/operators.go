package evolution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/BaSui01/evoflow/genome"
	"github.com/BaSui01/evoflow/tracker"
	"github.com/BaSui01/evoflow/types"
	"github.com/BaSui01/evoflow/workflow"
)

// MutationKind 变异位点类型
type MutationKind string

const (
	MutateAddNode     MutationKind = "add_node"
	MutateRemoveNode  MutationKind = "remove_node"
	MutateEditNode    MutationKind = "edit_node"
	MutateAddTool     MutationKind = "add_tool"
	MutateRemoveTool  MutationKind = "remove_tool"
	MutateSelfImprove MutationKind = "self_improve"
	MutateRewire      MutationKind = "rewire"
	MutatePerturb     MutationKind = "perturb"
)

var errNoMutationChoice = errors.New("no mutation choice available")

// MutationPolicy 在可用的变异类型中做出选择
type MutationPolicy interface {
	Choose(rng *rand.Rand, candidates []MutationKind) MutationKind
}

// UniformPolicy chooses uniformly.
type UniformPolicy struct{}

func (UniformPolicy) Choose(rng *rand.Rand, candidates []MutationKind) MutationKind {
	return candidates[rng.Intn(len(candidates))]
}

// WeightedPolicy 按权重选择；未列出的类型权重为 0，全部为 0 时退化为均匀选择
type WeightedPolicy map[MutationKind]float64

func (w WeightedPolicy) Choose(rng *rand.Rand, candidates []MutationKind) MutationKind {
	var total float64
	for _, k := range candidates {
		total += math.Max(0, w[k])
	}
	if total == 0 {
		return UniformPolicy{}.Choose(rng, candidates)
	}
	r := rng.Float64() * total
	for _, k := range candidates {
		r -= math.Max(0, w[k])
		if r < 0 {
			return k
		}
	}
	return candidates[len(candidates)-1]
}

// NodeImprover 根据评估反馈改写单个节点
type NodeImprover interface {
	Improve(ctx context.Context, node workflow.Node, feedback string) (workflow.Node, error)
}

const feedbackMarker = "\n\nKnown failure modes to avoid:\n"

// FeedbackImprover 把最近一次评估反馈附加到系统提示词，替换上一次附加的内容
type FeedbackImprover struct{}

func (FeedbackImprover) Improve(ctx context.Context, node workflow.Node, feedback string) (workflow.Node, error) {
	if strings.TrimSpace(feedback) == "" {
		return node, errNoMutationChoice
	}
	prompt := node.SystemPrompt
	if i := strings.Index(prompt, feedbackMarker); i >= 0 {
		prompt = prompt[:i]
	}
	node.SystemPrompt = prompt + feedbackMarker + feedback
	return node, nil
}

// Operators 遗传算子
type Operators struct {
	Pool     GenePool
	Policy   MutationPolicy
	Improver NodeImprover
	Features Features
	// NewNodeProbability 子代引入新节点的概率
	NewNodeProbability float64
	// Structural 为 false 时（cultural 模式）只做节点内容编辑
	Structural bool
}

// NewOperators builds operators from the engine configuration.
func NewOperators(cfg Config, pool GenePool) *Operators {
	return &Operators{
		Pool:               pool,
		Policy:             UniformPolicy{},
		Improver:           FeedbackImprover{},
		Features:           cfg.Features,
		NewNodeProbability: cfg.NewNodeProbability,
		Structural:         cfg.Mode != tracker.ModeCultural,
	}
}

// Crossover 均匀交叉：共有节点随机取自任一父代，第二父代独有的节点按
// NewNodeProbability 引入。悬空的 handoff 留给修复阶段处理。
func (o *Operators) Crossover(ctx context.Context, rng *rand.Rand, generation int, parents ...*genome.Genome) (*genome.Genome, error) {
	if len(parents) < 2 {
		return nil, types.NewGeneticOperationError("crossover", 2, len(parents))
	}
	a, b := parents[0].Workflow, parents[1].Workflow
	if a == nil || b == nil {
		return nil, types.NewError(types.KindGeneticOperation, types.ErrOperatorFailed, "crossover parent has no workflow")
	}

	child := a.Clone()
	child.ID = ""
	for _, node := range b.Nodes.List() {
		switch {
		case child.Nodes.Has(node.ID):
			if rng.Float64() < 0.5 {
				child.Nodes.Set(node)
			}
		case o.Structural && rng.Float64() < o.NewNodeProbability:
			child.Nodes.Set(node)
		}
	}
	return genome.NewOffspring(child, generation, parents[0], parents[1]), nil
}

// Mutate 对单个父代应用一次变异；不可用的变异类型会被跳过
func (o *Operators) Mutate(ctx context.Context, rng *rand.Rand, generation int, parents ...*genome.Genome) (*genome.Genome, error) {
	if len(parents) < 1 {
		return nil, types.NewGeneticOperationError("mutation", 1, len(parents))
	}
	parent := parents[0]
	if parent.Workflow == nil {
		return nil, types.NewError(types.KindGeneticOperation, types.ErrOperatorFailed, "mutation parent has no workflow")
	}

	cfg := parent.Workflow.Clone()
	cfg.ID = ""
	feedback := parent.Feedback()
	candidates := o.candidates(rng, feedback)
	policy := o.Policy
	if policy == nil {
		policy = UniformPolicy{}
	}

	for len(candidates) > 0 {
		kind := policy.Choose(rng, candidates)
		err := o.apply(ctx, rng, kind, cfg, feedback)
		if err == nil {
			return genome.NewOffspring(cfg, generation, parent), nil
		}
		if !errors.Is(err, errNoMutationChoice) {
			return nil, types.NewError(types.KindGeneticOperation, types.ErrOperatorFailed,
				fmt.Sprintf("mutation %s failed", kind)).WithCause(err).WithDebug("mutation", string(kind))
		}
		candidates = without(candidates, kind)
	}
	return nil, types.NewError(types.KindGeneticOperation, types.ErrOperatorFailed, "no applicable mutation").
		WithDebug("genomeId", parent.ID)
}

// candidates 反馈驱动的编辑只有在父代带有评估反馈且对应开关打开时才可用
func (o *Operators) candidates(rng *rand.Rand, feedback string) []MutationKind {
	hasFeedback := strings.TrimSpace(feedback) != ""
	out := []MutationKind{MutatePerturb}
	if o.Structural {
		out = append(out, MutateRewire, MutateRemoveTool)
		if rng.Float64() < o.NewNodeProbability {
			out = append(out, MutateAddNode)
		}
		if hasFeedback && o.Features.RemoveNodes {
			out = append(out, MutateRemoveNode)
		}
	}
	if hasFeedback && o.Features.AddTools {
		out = append(out, MutateAddTool)
	}
	if hasFeedback && o.Features.EditNodes {
		out = append(out, MutateEditNode)
	}
	if hasFeedback && o.Features.SelfImproveNodes && o.Improver != nil {
		out = append(out, MutateSelfImprove)
	}
	return out
}

func without(kinds []MutationKind, k MutationKind) []MutationKind {
	out := kinds[:0:0]
	for _, x := range kinds {
		if x != k {
			out = append(out, x)
		}
	}
	return out
}

func (o *Operators) apply(ctx context.Context, rng *rand.Rand, kind MutationKind, cfg *workflow.Config, feedback string) error {
	ids := cfg.Nodes.IDs()
	if len(ids) == 0 {
		return errNoMutationChoice
	}
	target, _ := cfg.Nodes.Get(ids[rng.Intn(len(ids))])

	switch kind {
	case MutateAddNode:
		// 插入到 target 与其第一个后继之间，保持原有可达性
		node := o.Pool.randomNode(rng, newNodeID())
		if len(target.Handoffs) > 0 {
			node.Handoffs = []string{target.Handoffs[0]}
			target.Handoffs[0] = node.ID
		} else {
			node.Handoffs = []string{workflow.EndNodeID}
			target.Handoffs = []string{node.ID}
		}
		cfg.Nodes.Set(target)
		cfg.Nodes.Set(node)

	case MutateRemoveNode:
		var removable []string
		for _, id := range ids {
			if id != cfg.Entry {
				removable = append(removable, id)
			}
		}
		if len(removable) == 0 {
			return errNoMutationChoice
		}
		victim, _ := cfg.Nodes.Get(removable[rng.Intn(len(removable))])
		cfg.Nodes.Remove(victim.ID)
		for _, n := range cfg.Nodes.List() {
			if bypassed, changed := bypass(n.Handoffs, victim); changed {
				n.Handoffs = bypassed
				cfg.Nodes.Set(n)
			}
		}

	case MutateEditNode:
		prompt := o.Pool.prompt(rng)
		if prompt == target.SystemPrompt && len(o.Pool.Prompts) < 2 {
			return errNoMutationChoice
		}
		target.SystemPrompt = prompt
		if m := o.Pool.model(rng); m != "" {
			target.Model = m
		}
		cfg.Nodes.Set(target)

	case MutateAddTool:
		var missing []string
		for _, t := range o.Pool.Tools {
			if !target.HasTool(t) {
				missing = append(missing, t)
			}
		}
		if len(missing) == 0 {
			return errNoMutationChoice
		}
		target.Tools = append(target.Tools, missing[rng.Intn(len(missing))])
		cfg.Nodes.Set(target)

	case MutateRemoveTool:
		if len(target.Tools) == 0 {
			return errNoMutationChoice
		}
		i := rng.Intn(len(target.Tools))
		target.Tools = append(target.Tools[:i], target.Tools[i+1:]...)
		cfg.Nodes.Set(target)

	case MutateSelfImprove:
		improved, err := o.Improver.Improve(ctx, target, feedback)
		if err != nil {
			return err
		}
		improved.ID = target.ID
		cfg.Nodes.Set(improved)

	case MutateRewire:
		if len(target.Handoffs) == 0 {
			return errNoMutationChoice
		}
		choices := []string{workflow.EndNodeID}
		for _, id := range ids {
			if id != target.ID {
				choices = append(choices, id)
			}
		}
		i := rng.Intn(len(target.Handoffs))
		next := choices[rng.Intn(len(choices))]
		if next == target.Handoffs[i] {
			return errNoMutationChoice
		}
		target.Handoffs[i] = next
		cfg.Nodes.Set(target)

	case MutatePerturb:
		t := target.Temperature + rng.NormFloat64()*0.2
		target.Temperature = math.Round(math.Min(1.5, math.Max(0, t))*100) / 100
		cfg.Nodes.Set(target)

	default:
		return fmt.Errorf("unknown mutation %q", kind)
	}
	return nil
}

// bypass 把指向 victim 的 handoff 替换为 victim 自己的后继
func bypass(handoffs []string, victim workflow.Node) ([]string, bool) {
	changed := false
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, h := range handoffs {
		if h != victim.ID {
			add(h)
			continue
		}
		changed = true
		for _, next := range victim.Handoffs {
			if next != victim.ID {
				add(next)
			}
		}
	}
	return out, changed
}
