package evolution

import (
	"github.com/BaSui01/evoflow/genome"
	"github.com/BaSui01/evoflow/workflow"
)

// features 工作流的特征集合：节点、节点使用的工具、handoff 边
func features(cfg *workflow.Config) map[string]bool {
	out := make(map[string]bool)
	for _, n := range cfg.Nodes.List() {
		out["node:"+n.ID] = true
		for _, t := range n.Tools {
			out["tool:"+n.ID+"/"+t] = true
		}
		for _, h := range n.Handoffs {
			out["edge:"+n.ID+">"+h] = true
		}
	}
	return out
}

// jaccardDistance returns 1 - |a∩b| / |a∪b|.
func jaccardDistance(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return 1 - float64(inter)/float64(union)
}

// Novelty 目标工作流与其余工作流的平均 Jaccard 距离
func Novelty(target *workflow.Config, others []*workflow.Config) float64 {
	if len(others) == 0 {
		return 0
	}
	ft := features(target)
	var sum float64
	for _, o := range others {
		sum += jaccardDistance(ft, features(o))
	}
	return sum / float64(len(others))
}

// assignNovelty 为同一代已评估的基因组写入新颖度，整体替换适应度
func assignNovelty(genomes []*genome.Genome) {
	feats := make([]map[string]bool, len(genomes))
	for i, g := range genomes {
		feats[i] = features(g.Workflow)
	}
	for i, g := range genomes {
		f, ok := g.Fitness()
		if !ok {
			continue
		}
		if len(genomes) > 1 {
			var sum float64
			for j := range genomes {
				if i != j {
					sum += jaccardDistance(feats[i], feats[j])
				}
			}
			f.Novelty = sum / float64(len(genomes)-1)
		}
		g.SetFitnessAndFeedback(f, g.Feedback())
	}
}
