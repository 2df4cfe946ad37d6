package types

import (
	"time"
)

// StepType AgentStep 的种类
type StepType string

const (
	StepReasoning StepType = "reasoning"
	StepPlan      StepType = "plan"
	StepToolCall  StepType = "tool-call"
	StepTerminate StepType = "terminate"
	StepError     StepType = "error"
)

// Usage 单次模型调用的用量
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

// Add accumulates another usage record.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		CostUSD:          u.CostUSD + other.CostUSD,
	}
}

// AgentStep 执行轨迹中的一个单元，按追加顺序排列。
type AgentStep struct {
	Type      StepType    `json:"type"`
	Content   string      `json:"content,omitempty"`
	Tool      *ToolCall   `json:"tool,omitempty"`
	Result    *ToolResult `json:"result,omitempty"`
	HandoffTo string      `json:"handoff_to,omitempty"`
	Usage     Usage       `json:"usage,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// IsTerminal reports whether the step ends the agent loop.
func (s AgentStep) IsTerminal() bool {
	return s.Type == StepTerminate
}

// ToMessages converts a step into history messages for the next model round.
func (s AgentStep) ToMessages() []Message {
	switch s.Type {
	case StepToolCall:
		if s.Tool == nil {
			return nil
		}
		call := Message{Role: RoleAssistant, ToolCalls: []ToolCall{*s.Tool}, Timestamp: s.Timestamp}
		if s.Result == nil {
			return []Message{call}
		}
		return []Message{call, s.Result.ToMessage()}
	case StepError:
		return []Message{{Role: RoleUser, Content: "Error: " + s.Content, Timestamp: s.Timestamp}}
	default:
		if s.Content == "" {
			return nil
		}
		return []Message{{Role: RoleAssistant, Content: s.Content, Timestamp: s.Timestamp}}
	}
}
