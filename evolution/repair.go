package evolution

import (
	"github.com/BaSui01/evoflow/types"
	"github.com/BaSui01/evoflow/workflow"
)

// defaultRepairPrompt 填充空提示词
const defaultRepairPrompt = "Complete the task described in the input."

// Repairer 尝试把结构不合法的工作流修成合法的
type Repairer interface {
	Repair(cfg *workflow.Config) (*workflow.Config, error)
}

// StructuralRepairer 逐项修复结构问题并返回新的副本：
// 移除非法节点、修正 entry、补提示词、去掉悬空 handoff 与未知工具、
// 在不允许环时断开回边、删除不可达节点。
type StructuralRepairer struct {
	AllowCycles bool
	KnownTool   func(name string) bool
}

func (r StructuralRepairer) Repair(cfg *workflow.Config) (*workflow.Config, error) {
	out := cfg.Clone()

	for _, id := range out.Nodes.IDs() {
		if id == "" || id == workflow.EndNodeID {
			out.Nodes.Remove(id)
		}
	}
	if out.Nodes.Len() == 0 {
		return nil, types.NewWorkflowConfigurationError("workflow has no usable nodes", nil)
	}
	if !out.Nodes.Has(out.Entry) {
		out.Entry = out.Nodes.IDs()[0]
	}

	for _, node := range out.Nodes.List() {
		if node.SystemPrompt == "" {
			node.SystemPrompt = defaultRepairPrompt
		}
		if node.MaxSteps < 0 {
			node.MaxSteps = 0
		}
		node.Handoffs = r.handoffs(out, node.Handoffs)
		if r.KnownTool != nil {
			var known []string
			for _, t := range node.Tools {
				if r.KnownTool(t) {
					known = append(known, t)
				}
			}
			node.Tools = known
		}
		out.Nodes.Set(node)
	}

	if !r.AllowCycles {
		for cycle := workflow.FindCycle(out); len(cycle) > 1; cycle = workflow.FindCycle(out) {
			from, to := cycle[len(cycle)-2], cycle[len(cycle)-1]
			node, _ := out.Nodes.Get(from)
			var kept []string
			for _, h := range node.Handoffs {
				if h != to {
					kept = append(kept, h)
				}
			}
			if len(kept) == 0 {
				kept = []string{workflow.EndNodeID}
			}
			node.Handoffs = kept
			out.Nodes.Set(node)
		}
	}

	reachable := workflow.Reachable(out)
	for _, id := range out.Nodes.IDs() {
		if !reachable[id] {
			out.Nodes.Remove(id)
		}
	}
	return out, nil
}

func (r StructuralRepairer) handoffs(cfg *workflow.Config, in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, h := range in {
		if seen[h] || (h != workflow.EndNodeID && !cfg.Nodes.Has(h)) {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}
