package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/BaSui01/evoflow/types"
)

// ToolFunc defines the tool function signature.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Tool 可被节点调用的工具句柄
type Tool interface {
	Name() string
	Schema() types.ToolSchema
	Call(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}

// FuncTool 将普通函数适配为 Tool
type FuncTool struct {
	ToolSchema types.ToolSchema
	Fn         ToolFunc
}

// NewFuncTool creates a code tool with an object parameter schema when none is given.
func NewFuncTool(name, description string, params json.RawMessage, fn ToolFunc) *FuncTool {
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object"}`)
	}
	return &FuncTool{
		ToolSchema: types.ToolSchema{Name: name, Description: description, Parameters: params},
		Fn:         fn,
	}
}

func (t *FuncTool) Name() string             { return t.ToolSchema.Name }
func (t *FuncTool) Schema() types.ToolSchema { return t.ToolSchema }

func (t *FuncTool) Call(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	if t.Fn == nil {
		return nil, fmt.Errorf("tool %s has no implementation", t.ToolSchema.Name)
	}
	return t.Fn(ctx, args)
}

// ToolSet 按插入顺序排列的工具集合，同名工具保留先加入者
type ToolSet struct {
	order []string
	tools map[string]Tool
}

// NewToolSet creates a set from tools.
func NewToolSet(tools ...Tool) *ToolSet {
	s := &ToolSet{tools: make(map[string]Tool)}
	for _, t := range tools {
		s.Add(t)
	}
	return s
}

// Add inserts a tool and reports whether it was new.
func (s *ToolSet) Add(t Tool) bool {
	if s.tools == nil {
		s.tools = make(map[string]Tool)
	}
	if _, exists := s.tools[t.Name()]; exists {
		return false
	}
	s.tools[t.Name()] = t
	s.order = append(s.order, t.Name())
	return true
}

// Merge adds every tool of other; returns the names that collided.
func (s *ToolSet) Merge(other *ToolSet) []string {
	if other == nil {
		return nil
	}
	var collisions []string
	for _, name := range other.order {
		if !s.Add(other.tools[name]) {
			collisions = append(collisions, name)
		}
	}
	return collisions
}

// Get returns a tool by name.
func (s *ToolSet) Get(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.tools[name]
	return t, ok
}

// Names returns tool names in insertion order.
func (s *ToolSet) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Schemas returns the schemas handed to the model provider.
func (s *ToolSet) Schemas() []types.ToolSchema {
	if s == nil {
		return nil
	}
	out := make([]types.ToolSchema, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name].Schema())
	}
	return out
}

// Len returns the number of tools.
func (s *ToolSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// CodeRegistry 静态代码工具注册表，名称同步解析
type CodeRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewCodeRegistry creates a registry preloaded with tools.
func NewCodeRegistry(tools ...Tool) *CodeRegistry {
	r := &CodeRegistry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Register adds a tool; duplicate names are rejected.
func (r *CodeRegistry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.Name() == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %s already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Get returns a registered tool.
func (r *CodeRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether a tool is registered.
func (r *CodeRegistry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the registered names sorted.
func (r *CodeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
