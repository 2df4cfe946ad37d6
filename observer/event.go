// Package observer 提供有界环形缓冲事件接收器与按运行划分的 Hub。
//
// 管道和评估器通过显式传入的 Observer 句柄发送事件；实时流端点订阅 Sink。
package observer

import (
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型
type EventType string

const (
	EventAgentStart     EventType = "agent.start"
	EventAgentEnd       EventType = "agent.end"
	EventAgentError     EventType = "agent.error"
	EventAgentToolStart EventType = "agent.tool.start"
	EventAgentToolEnd   EventType = "agent.tool.end"
)

// Event 一条观测事件
type Event struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	RunID        string         `json:"run_id,omitempty"`
	WorkflowID   string         `json:"workflow_id,omitempty"`
	NodeID       string         `json:"node_id,omitempty"`
	InvocationID string         `json:"invocation_id,omitempty"`
	Tool         string         `json:"tool,omitempty"`
	Message      string         `json:"message,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// NewEvent creates an event with a fresh id and timestamp.
func NewEvent(typ EventType, nodeID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		NodeID:    nodeID,
		Timestamp: time.Now(),
	}
}
