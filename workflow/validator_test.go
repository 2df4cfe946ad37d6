package workflow

import (
	"strings"
	"testing"

	"github.com/BaSui01/evoflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidChain(t *testing.T) {
	assert.Empty(t, Validate(chain("a", "b", "c"), Options{}))
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		opts    Options
		contain string
	}{
		{
			name:    "missing entry",
			mutate:  func(c *Config) { c.Entry = "" },
			contain: "entry is required",
		},
		{
			name:    "unknown entry",
			mutate:  func(c *Config) { c.Entry = "ghost" },
			contain: `entry node "ghost" does not exist`,
		},
		{
			name: "dangling handoff",
			mutate: func(c *Config) {
				n, _ := c.Nodes.Get("b")
				n.Handoffs = []string{"ghost"}
				c.Nodes.Set(n)
			},
			contain: `handoff to unknown node "ghost"`,
		},
		{
			name: "empty prompt",
			mutate: func(c *Config) {
				n, _ := c.Nodes.Get("a")
				n.SystemPrompt = "  "
				c.Nodes.Set(n)
			},
			contain: "node a: system prompt is empty",
		},
		{
			name: "unreachable node",
			mutate: func(c *Config) {
				c.Nodes.Set(Node{ID: "island", SystemPrompt: "alone", Handoffs: []string{EndNodeID}})
			},
			contain: "node island is unreachable from entry",
		},
		{
			name: "reserved id",
			mutate: func(c *Config) {
				c.Nodes.Set(Node{ID: EndNodeID, SystemPrompt: "x"})
			},
			contain: `node ID "end" is reserved`,
		},
		{
			name: "cycle",
			mutate: func(c *Config) {
				n, _ := c.Nodes.Get("b")
				n.Handoffs = []string{"a"}
				c.Nodes.Set(n)
			},
			contain: "cycle detected: a -> b -> a",
		},
		{
			name: "unknown tool",
			mutate: func(c *Config) {
				n, _ := c.Nodes.Get("a")
				n.Tools = []string{"search", "nope"}
				c.Nodes.Set(n)
			},
			opts:    Options{KnownTool: func(name string) bool { return name == "search" }},
			contain: `node a: unknown tool "nope"`,
		},
		{
			name: "duplicate handoff",
			mutate: func(c *Config) {
				n, _ := c.Nodes.Get("a")
				n.Handoffs = []string{"b", "b"}
				c.Nodes.Set(n)
			},
			contain: `duplicate handoff to "b"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := chain("a", "b")
			tt.mutate(cfg)
			problems := Validate(cfg, tt.opts)
			require.NotEmpty(t, problems)
			assert.Contains(t, problems, findContaining(problems, tt.contain))
		})
	}
}

func findContaining(problems []string, sub string) string {
	for _, p := range problems {
		if strings.Contains(p, sub) {
			return p
		}
	}
	return "<missing: " + sub + ">"
}

func TestValidate_AllowCycles(t *testing.T) {
	cfg := chain("a", "b")
	n, _ := cfg.Nodes.Get("b")
	n.Handoffs = []string{"a", EndNodeID}
	cfg.Nodes.Set(n)

	assert.NotEmpty(t, Validate(cfg, Options{}))
	assert.Empty(t, Validate(cfg, Options{AllowCycles: true}))
}

func TestValidate_SelfLoopIsCycle(t *testing.T) {
	cfg := chain("a")
	n, _ := cfg.Nodes.Get("a")
	n.Handoffs = []string{"a"}
	cfg.Nodes.Set(n)

	assert.Equal(t, []string{"a", "a"}, FindCycle(cfg))
}

func TestValidateErr_ReturnsConfigurationError(t *testing.T) {
	require.NoError(t, ValidateErr(chain("a"), Options{}))

	cfg := chain("a")
	cfg.Entry = "ghost"
	err := ValidateErr(cfg, Options{})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindWorkflowConfiguration))

	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.NotEmpty(t, e.Debug["problems"])
}
