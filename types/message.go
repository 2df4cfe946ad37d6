// Package types provides core types used across the evoflow packages.
// This package has ZERO dependencies on other evoflow packages to avoid circular imports.
package types

import (
	"strings"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents one entry of the model-facing conversation history.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp,omitempty"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewToolMessage creates a new tool result message.
func NewToolMessage(toolCallID, name, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		Name:       name,
		ToolCallID: toolCallID,
		Timestamp:  time.Now(),
	}
}

// ContentType 消息内容项类型
type ContentType string

const (
	ContentText ContentType = "text"
	ContentData ContentType = "data"
)

// ContentItem 有序负载中的一项
type ContentItem struct {
	Type ContentType    `json:"type"`
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// TextItem creates a text content item.
func TextItem(text string) ContentItem {
	return ContentItem{Type: ContentText, Text: text}
}

// WorkflowMessage 节点之间的一跳消息，由消费它的 pipeline 独占。
type WorkflowMessage struct {
	FromNodeID string        `json:"from_node_id"`
	ToNodeID   string        `json:"to_node_id"`
	Sequence   int           `json:"sequence"`
	Payload    []ContentItem `json:"payload"`
	SentAt     time.Time     `json:"sent_at"`
}

// StartNodeID marks the synthetic origin of the first hop.
const StartNodeID = "start"

// NewWorkflowMessage creates a hop message carrying one text item.
func NewWorkflowMessage(from, to string, seq int, text string) *WorkflowMessage {
	return &WorkflowMessage{
		FromNodeID: from,
		ToNodeID:   to,
		Sequence:   seq,
		Payload:    []ContentItem{TextItem(text)},
		SentAt:     time.Now(),
	}
}

// Text joins the text items of the payload in order.
func (m *WorkflowMessage) Text() string {
	if m == nil {
		return ""
	}
	parts := make([]string, 0, len(m.Payload))
	for _, item := range m.Payload {
		if item.Type == ContentText && item.Text != "" {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n")
}
