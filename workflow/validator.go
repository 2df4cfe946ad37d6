package workflow

import (
	"fmt"
	"strings"

	"github.com/BaSui01/evoflow/types"
)

// Options 结构校验选项
type Options struct {
	// AllowCycles 是否允许 handoff 形成环
	AllowCycles bool
	// KnownTool 判断工具名是否可解析；nil 表示不校验工具
	KnownTool func(name string) bool
}

// Validate 返回工作流的全部结构问题，空切片表示合法
func Validate(c *Config, opts Options) []string {
	if c == nil {
		return []string{"workflow is nil"}
	}

	var problems []string
	if c.Nodes.Len() == 0 {
		problems = append(problems, "workflow must have at least one node")
	}
	if c.Entry == "" {
		problems = append(problems, "entry is required")
	} else if !c.Nodes.Has(c.Entry) {
		problems = append(problems, fmt.Sprintf("entry node %q does not exist", c.Entry))
	}

	for _, node := range c.Nodes.List() {
		problems = append(problems, validateNode(c, node, opts)...)
	}

	if c.Nodes.Has(c.Entry) {
		reachable := Reachable(c)
		for _, id := range c.Nodes.IDs() {
			if !reachable[id] {
				problems = append(problems, fmt.Sprintf("node %s is unreachable from entry", id))
			}
		}
	}

	if !opts.AllowCycles {
		if cycle := FindCycle(c); len(cycle) > 0 {
			problems = append(problems, fmt.Sprintf("cycle detected: %s", strings.Join(cycle, " -> ")))
		}
	}
	return problems
}

func validateNode(c *Config, node Node, opts Options) []string {
	var problems []string
	if node.ID == "" {
		return append(problems, "node ID is required")
	}
	if node.ID == EndNodeID {
		problems = append(problems, fmt.Sprintf("node ID %q is reserved", EndNodeID))
	}
	if strings.TrimSpace(node.SystemPrompt) == "" {
		problems = append(problems, fmt.Sprintf("node %s: system prompt is empty", node.ID))
	}
	if node.MaxSteps < 0 {
		problems = append(problems, fmt.Sprintf("node %s: max_steps must not be negative", node.ID))
	}

	seen := make(map[string]bool)
	for _, target := range node.Handoffs {
		if seen[target] {
			problems = append(problems, fmt.Sprintf("node %s: duplicate handoff to %q", node.ID, target))
			continue
		}
		seen[target] = true
		if target != EndNodeID && !c.Nodes.Has(target) {
			problems = append(problems, fmt.Sprintf("node %s: handoff to unknown node %q", node.ID, target))
		}
	}

	if opts.KnownTool != nil {
		for _, tool := range node.Tools {
			if !opts.KnownTool(tool) {
				problems = append(problems, fmt.Sprintf("node %s: unknown tool %q", node.ID, tool))
			}
		}
	}
	return problems
}

// ValidateErr folds Validate's problems into a WorkflowConfigurationError.
func ValidateErr(c *Config, opts Options) error {
	problems := Validate(c, opts)
	if len(problems) == 0 {
		return nil
	}
	id := ""
	if c != nil {
		id = c.ID
	}
	return types.NewWorkflowConfigurationError(
		fmt.Sprintf("workflow %s has %d structural problems", id, len(problems)), problems)
}

// Reachable 从 entry 出发可达的节点集合
func Reachable(c *Config) map[string]bool {
	seen := make(map[string]bool)
	if !c.Nodes.Has(c.Entry) {
		return seen
	}
	queue := []string{c.Entry}
	seen[c.Entry] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		node, _ := c.Nodes.Get(id)
		for _, next := range node.Handoffs {
			if next == EndNodeID || seen[next] || !c.Nodes.Has(next) {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return seen
}

// FindCycle returns the node ids of one handoff cycle, or nil.
func FindCycle(c *Config) []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int)
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		node, _ := c.Nodes.Get(id)
		for _, next := range node.Handoffs {
			if !c.Nodes.Has(next) {
				continue
			}
			switch color[next] {
			case grey:
				for i, sid := range stack {
					if sid == next {
						cycle = append(append([]string(nil), stack[i:]...), next)
						break
					}
				}
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range c.Nodes.IDs() {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}
