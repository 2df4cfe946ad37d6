package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// EndNodeID 保留的 handoff 目标，表示工作流结束
const EndNodeID = "end"

// Node 工作流中的一个 Agent 节点
type Node struct {
	ID           string   `yaml:"id" json:"id"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	SystemPrompt string   `yaml:"system_prompt" json:"system_prompt"`
	Model        string   `yaml:"model,omitempty" json:"model,omitempty"`
	Tools        []string `yaml:"tools,omitempty" json:"tools,omitempty"`
	Handoffs     []string `yaml:"handoffs,omitempty" json:"handoffs,omitempty"`
	MaxSteps     int      `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`
	Temperature  float64  `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	// Memory 节点级别的静态上下文，追加到 system prompt 之后
	Memory map[string]string `yaml:"memory,omitempty" json:"memory,omitempty"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n
	out.Tools = append([]string(nil), n.Tools...)
	out.Handoffs = append([]string(nil), n.Handoffs...)
	if n.Memory != nil {
		out.Memory = make(map[string]string, len(n.Memory))
		for k, v := range n.Memory {
			out.Memory[k] = v
		}
	}
	return out
}

// HasTool reports whether the node declares the tool.
func (n Node) HasTool(name string) bool {
	for _, t := range n.Tools {
		if t == name {
			return true
		}
	}
	return false
}

// NodeMap 按插入顺序保存节点，以节点 ID 为键。
// handoff 只是 ID 引用，节点之间不互相持有。
type NodeMap struct {
	order []string
	nodes map[string]Node
}

// NewNodeMap builds a map from nodes, failing on duplicate ids.
func NewNodeMap(nodes ...Node) (NodeMap, error) {
	var m NodeMap
	for _, n := range nodes {
		if err := m.Add(n); err != nil {
			return NodeMap{}, err
		}
	}
	return m, nil
}

// Add appends a node; duplicate ids are rejected.
func (m *NodeMap) Add(n Node) error {
	if m.nodes == nil {
		m.nodes = make(map[string]Node)
	}
	if _, exists := m.nodes[n.ID]; exists {
		return fmt.Errorf("duplicate node ID: %s", n.ID)
	}
	m.nodes[n.ID] = n
	m.order = append(m.order, n.ID)
	return nil
}

// Set replaces an existing node in place or appends a new one.
func (m *NodeMap) Set(n Node) {
	if m.nodes == nil {
		m.nodes = make(map[string]Node)
	}
	if _, exists := m.nodes[n.ID]; !exists {
		m.order = append(m.order, n.ID)
	}
	m.nodes[n.ID] = n
}

// Get returns a copy of the node.
func (m NodeMap) Get(id string) (Node, bool) {
	n, ok := m.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.Clone(), true
}

// Has reports whether the node exists.
func (m NodeMap) Has(id string) bool {
	_, ok := m.nodes[id]
	return ok
}

// Remove deletes a node and reports whether it existed.
func (m *NodeMap) Remove(id string) bool {
	if _, ok := m.nodes[id]; !ok {
		return false
	}
	delete(m.nodes, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of nodes.
func (m NodeMap) Len() int {
	return len(m.order)
}

// IDs returns node ids in insertion order.
func (m NodeMap) IDs() []string {
	return append([]string(nil), m.order...)
}

// List returns copies of all nodes in insertion order.
func (m NodeMap) List() []Node {
	out := make([]Node, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.nodes[id].Clone())
	}
	return out
}

// Clone returns a deep copy.
func (m NodeMap) Clone() NodeMap {
	out := NodeMap{order: append([]string(nil), m.order...)}
	if m.nodes != nil {
		out.nodes = make(map[string]Node, len(m.nodes))
		for id, n := range m.nodes {
			out.nodes[id] = n.Clone()
		}
	}
	return out
}

// MarshalJSON encodes the map as an ordered list.
func (m NodeMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.List())
}

// UnmarshalJSON decodes an ordered list.
func (m *NodeMap) UnmarshalJSON(data []byte) error {
	var nodes []Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return err
	}
	built, err := NewNodeMap(nodes...)
	if err != nil {
		return err
	}
	*m = built
	return nil
}

// MarshalYAML encodes the map as an ordered list.
func (m NodeMap) MarshalYAML() (interface{}, error) {
	return m.List(), nil
}

// UnmarshalYAML decodes an ordered list.
func (m *NodeMap) UnmarshalYAML(value *yaml.Node) error {
	var nodes []Node
	if err := value.Decode(&nodes); err != nil {
		return err
	}
	built, err := NewNodeMap(nodes...)
	if err != nil {
		return err
	}
	*m = built
	return nil
}

// Config 一个候选工作流：节点图 + handoff
type Config struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name,omitempty" json:"name,omitempty"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string  `yaml:"version,omitempty" json:"version,omitempty"`
	Entry       string  `yaml:"entry" json:"entry"`
	Nodes       NodeMap `yaml:"nodes" json:"nodes"`
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Nodes = c.Nodes.Clone()
	return &out
}

// EntryNode returns the entry node.
func (c *Config) EntryNode() (Node, bool) {
	return c.Nodes.Get(c.Entry)
}

// ToolNames returns the distinct tools declared across all nodes, in first-seen order.
func (c *Config) ToolNames() []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range c.Nodes.List() {
		for _, t := range n.Tools {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// Hash 结构哈希（entry + 节点），与 ID/名称无关，用作版本号和缓存键。
func Hash(c *Config) string {
	payload := struct {
		Entry string `json:"entry"`
		Nodes []Node `json:"nodes"`
	}{Entry: c.Entry, Nodes: c.Nodes.List()}
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
