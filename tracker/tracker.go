package tracker

import (
	"context"
	"errors"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// Tracker 运行与代际记录的持久化契约。实现返回的错误均为 RunTrackingError。
type Tracker interface {
	CreateEvolutionRun(ctx context.Context, run *EvolutionRun) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error
	GetRun(ctx context.Context, runID string) (*EvolutionRun, error)

	CreateGeneration(ctx context.Context, gen *Generation) error
	ListGenerations(ctx context.Context, runID string) ([]Generation, error)

	EnsureWorkflowExists(ctx context.Context, id, description string) error
	CreateWorkflowVersion(ctx context.Context, v *WorkflowVersion) error

	CreateWorkflowInvocation(ctx context.Context, inv *WorkflowInvocation) error
	UpdateInvocationScores(ctx context.Context, invocationID string, scores Scores) error
	// ListInvocations 返回某一代的调用记录；generation < 0 返回全部
	ListInvocations(ctx context.Context, runID string, generation int) ([]WorkflowInvocation, error)
}
