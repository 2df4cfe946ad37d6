package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/evoflow/types"
)

// MemoryTracker 进程内实现，用于测试和无数据库的试运行
type MemoryTracker struct {
	mu          sync.RWMutex
	runs        map[string]*EvolutionRun
	generations map[string][]Generation
	workflows   map[string]Workflow
	versions    map[string]WorkflowVersion
	invocations map[string]*WorkflowInvocation
	nextGenID   uint
}

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		runs:        make(map[string]*EvolutionRun),
		generations: make(map[string][]Generation),
		workflows:   make(map[string]Workflow),
		versions:    make(map[string]WorkflowVersion),
		invocations: make(map[string]*WorkflowInvocation),
	}
}

func (m *MemoryTracker) CreateEvolutionRun(ctx context.Context, run *EvolutionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[run.ID]; exists {
		return types.NewRunTrackingError(types.ErrTrackerWrite, "createEvolutionRun",
			fmt.Errorf("run %s already exists", run.ID))
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *MemoryTracker) UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return types.NewRunTrackingError(types.ErrTrackerWrite, "updateRunStatus", ErrNotFound)
	}
	if !CanTransition(run.Status, status) {
		return invalidTransition(run.Status, status)
	}
	run.Status = status
	now := time.Now()
	run.EndedAt = &now
	return nil
}

func (m *MemoryTracker) GetRun(ctx context.Context, runID string) (*EvolutionRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, types.NewRunTrackingError(types.ErrTrackerRead, "getRun", ErrNotFound)
	}
	cp := *run
	return &cp, nil
}

func (m *MemoryTracker) CreateGeneration(ctx context.Context, gen *Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[gen.RunID]; !ok {
		return types.NewRunTrackingError(types.ErrTrackerWrite, "createGeneration",
			fmt.Errorf("run %s: %w", gen.RunID, ErrNotFound))
	}
	for _, g := range m.generations[gen.RunID] {
		if g.Number == gen.Number {
			return types.NewRunTrackingError(types.ErrTrackerWrite, "createGeneration",
				fmt.Errorf("generation %d of run %s already exists", gen.Number, gen.RunID))
		}
	}
	m.nextGenID++
	gen.ID = m.nextGenID
	m.generations[gen.RunID] = append(m.generations[gen.RunID], *gen)
	return nil
}

func (m *MemoryTracker) ListGenerations(ctx context.Context, runID string) ([]Generation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]Generation(nil), m.generations[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *MemoryTracker) EnsureWorkflowExists(ctx context.Context, id, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[id]; !ok {
		m.workflows[id] = Workflow{ID: id, Description: description, CreatedAt: time.Now()}
	}
	return nil
}

func (m *MemoryTracker) CreateWorkflowVersion(ctx context.Context, v *WorkflowVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[v.WorkflowID]; !ok {
		return types.NewRunTrackingError(types.ErrTrackerWrite, "createWorkflowVersion",
			fmt.Errorf("workflow %s: %w", v.WorkflowID, ErrNotFound))
	}
	// 版本是内容寻址的，重复写入保留第一次的记录
	if _, exists := m.versions[v.ID]; exists {
		return nil
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	m.versions[v.ID] = *v
	return nil
}

func (m *MemoryTracker) CreateWorkflowInvocation(ctx context.Context, inv *WorkflowInvocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.invocations[inv.ID]; exists {
		return types.NewRunTrackingError(types.ErrTrackerWrite, "createWorkflowInvocation",
			fmt.Errorf("invocation %s already exists", inv.ID))
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	cp := *inv
	m.invocations[inv.ID] = &cp
	return nil
}

func (m *MemoryTracker) UpdateInvocationScores(ctx context.Context, invocationID string, scores Scores) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invocations[invocationID]
	if !ok {
		return types.NewRunTrackingError(types.ErrTrackerWrite, "updateInvocationScores", ErrNotFound)
	}
	applyScores(inv, scores)
	return nil
}

func (m *MemoryTracker) ListInvocations(ctx context.Context, runID string, generation int) ([]WorkflowInvocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []WorkflowInvocation
	for _, inv := range m.invocations {
		if inv.RunID == runID && (generation < 0 || inv.Generation == generation) {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Generation != out[j].Generation {
			return out[i].Generation < out[j].Generation
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Versions returns every stored workflow version.
func (m *MemoryTracker) Versions() []WorkflowVersion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]WorkflowVersion, 0, len(m.versions))
	for _, v := range m.versions {
		out = append(out, v)
	}
	return out
}

func applyScores(inv *WorkflowInvocation, s Scores) {
	acc, fit, nov := s.Accuracy, s.FitnessScore, s.Novelty
	inv.Accuracy = &acc
	inv.FitnessScore = &fit
	inv.Novelty = &nov
	inv.CostUSD = s.CostUSD
	inv.Feedback = s.Feedback
}

func invalidTransition(from, to RunStatus) error {
	return types.NewError(types.KindRunTracking, types.ErrInvalidStatusChange,
		fmt.Sprintf("run status cannot change from %s to %s", from, to)).
		WithDebug("from", string(from)).
		WithDebug("to", string(to))
}

var _ Tracker = (*MemoryTracker)(nil)
