package evolution

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/BaSui01/evoflow/workflow"
)

// defaultPrompts 随机生成节点时使用的提示词
var defaultPrompts = []string{
	"Solve the task step by step and answer concisely.",
	"Break the request into parts, solve each part, then combine the answers.",
	"Review the previous answer for mistakes and return a corrected final answer.",
	"Use the available tools to gather facts before answering.",
	"Summarize the input into the shortest correct answer.",
}

// GenePool 随机生成与变异时可选的基因材料
type GenePool struct {
	Tools   []string `yaml:"tools" json:"tools"`
	Prompts []string `yaml:"prompts" json:"prompts"`
	Models  []string `yaml:"models" json:"models"`
	// MaxNodes 随机工作流的最大节点数
	MaxNodes int `yaml:"max_nodes" json:"max_nodes"`
	// MaxToolsPerNode 随机节点最多携带的工具数
	MaxToolsPerNode int `yaml:"max_tools_per_node" json:"max_tools_per_node"`
}

// DefaultGenePool returns a pool over the given tool names.
func DefaultGenePool(tools []string) GenePool {
	return GenePool{
		Tools:           append([]string(nil), tools...),
		Prompts:         append([]string(nil), defaultPrompts...),
		MaxNodes:        3,
		MaxToolsPerNode: 2,
	}
}

func (p GenePool) prompt(rng *rand.Rand) string {
	if len(p.Prompts) == 0 {
		return defaultPrompts[rng.Intn(len(defaultPrompts))]
	}
	return p.Prompts[rng.Intn(len(p.Prompts))]
}

func (p GenePool) model(rng *rand.Rand) string {
	if len(p.Models) == 0 {
		return ""
	}
	return p.Models[rng.Intn(len(p.Models))]
}

func (p GenePool) tools(rng *rand.Rand) []string {
	limit := p.MaxToolsPerNode
	if limit <= 0 || len(p.Tools) == 0 {
		return nil
	}
	if limit > len(p.Tools) {
		limit = len(p.Tools)
	}
	n := rng.Intn(limit + 1)
	perm := rng.Perm(len(p.Tools))
	out := make([]string, 0, n)
	for _, i := range perm[:n] {
		out = append(out, p.Tools[i])
	}
	return out
}

// newNodeID returns a node id that is unique with high probability.
func newNodeID() string {
	return "node-" + uuid.NewString()[:8]
}

func (p GenePool) randomNode(rng *rand.Rand, id string) workflow.Node {
	return workflow.Node{
		ID:           id,
		SystemPrompt: p.prompt(rng),
		Model:        p.model(rng),
		Tools:        p.tools(rng),
		Temperature:  float64(rng.Intn(8)) / 10,
	}
}

// RandomWorkflow 生成一个无环、全部可达的随机工作流：
// 节点按顺序串联，偶尔附加指向更靠后节点或 end 的分支。
func (p GenePool) RandomWorkflow(rng *rand.Rand) *workflow.Config {
	limit := p.MaxNodes
	if limit <= 0 {
		limit = 3
	}
	n := 1 + rng.Intn(limit)

	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("node-%d", i+1)
	}
	var nodes workflow.NodeMap
	for i, id := range ids {
		node := p.randomNode(rng, id)
		next := workflow.EndNodeID
		if i+1 < n {
			next = ids[i+1]
		}
		node.Handoffs = []string{next}
		if i+2 < n && rng.Float64() < 0.3 {
			node.Handoffs = append(node.Handoffs, ids[i+2+rng.Intn(n-i-2)])
		}
		nodes.Set(node)
	}
	return &workflow.Config{
		Name:    "random",
		Version: "1",
		Entry:   ids[0],
		Nodes:   nodes,
	}
}
