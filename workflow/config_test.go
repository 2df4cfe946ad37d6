package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// chain builds a linear workflow a -> b -> ... -> end.
func chain(ids ...string) *Config {
	cfg := &Config{ID: "wf-test", Entry: ids[0]}
	for i, id := range ids {
		next := EndNodeID
		if i+1 < len(ids) {
			next = ids[i+1]
		}
		cfg.Nodes.Set(Node{ID: id, SystemPrompt: "you are " + id, Handoffs: []string{next}})
	}
	return cfg
}

func TestNodeMap_PreservesInsertionOrder(t *testing.T) {
	m, err := NewNodeMap(Node{ID: "c"}, Node{ID: "a"}, Node{ID: "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, m.IDs())

	m.Set(Node{ID: "a", SystemPrompt: "updated"})
	assert.Equal(t, []string{"c", "a", "b"}, m.IDs(), "Set on existing id keeps position")

	assert.True(t, m.Remove("a"))
	assert.False(t, m.Remove("a"))
	assert.Equal(t, []string{"c", "b"}, m.IDs())
}

func TestNodeMap_RejectsDuplicates(t *testing.T) {
	_, err := NewNodeMap(Node{ID: "a"}, Node{ID: "a"})
	require.Error(t, err)

	var m NodeMap
	err = json.Unmarshal([]byte(`[{"id":"a"},{"id":"a"}]`), &m)
	require.Error(t, err)
}

func TestNodeMap_GetReturnsCopy(t *testing.T) {
	cfg := chain("a", "b")
	n, ok := cfg.Nodes.Get("a")
	require.True(t, ok)
	n.Handoffs[0] = "mutated"

	again, _ := cfg.Nodes.Get("a")
	assert.Equal(t, "b", again.Handoffs[0])
}

func TestConfig_JSONRoundTripKeepsOrder(t *testing.T) {
	cfg := chain("z", "y", "x")
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"z", "y", "x"}, decoded.Nodes.IDs())
	assert.Equal(t, Hash(cfg), Hash(&decoded))
}

func TestConfig_YAMLRoundTripKeepsOrder(t *testing.T) {
	cfg := chain("z", "y", "x")
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"z", "y", "x"}, decoded.Nodes.IDs())
	assert.Equal(t, "z", decoded.Entry)
}

func TestConfig_CloneIsDeep(t *testing.T) {
	cfg := chain("a", "b")
	n, _ := cfg.Nodes.Get("a")
	n.Memory = map[string]string{"k": "v"}
	cfg.Nodes.Set(n)

	clone := cfg.Clone()
	cn, _ := clone.Nodes.Get("a")
	cn.Memory["k"] = "changed"
	cn.Tools = append(cn.Tools, "search")
	clone.Nodes.Set(cn)
	clone.Nodes.Remove("b")

	orig, _ := cfg.Nodes.Get("a")
	assert.Equal(t, "v", orig.Memory["k"])
	assert.Empty(t, orig.Tools)
	assert.Equal(t, 2, cfg.Nodes.Len())
}

func TestHash_IgnoresIdentity(t *testing.T) {
	a := chain("a", "b")
	b := chain("a", "b")
	b.ID = "other"
	b.Name = "renamed"
	assert.Equal(t, Hash(a), Hash(b))

	n, _ := b.Nodes.Get("b")
	n.SystemPrompt = "different"
	b.Nodes.Set(n)
	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestConfig_ToolNames(t *testing.T) {
	cfg := chain("a", "b")
	a, _ := cfg.Nodes.Get("a")
	a.Tools = []string{"search", "calc"}
	cfg.Nodes.Set(a)
	b, _ := cfg.Nodes.Get("b")
	b.Tools = []string{"calc", "browser"}
	cfg.Nodes.Set(b)

	assert.Equal(t, []string{"search", "calc", "browser"}, cfg.ToolNames())
}
