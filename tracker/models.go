package tracker

import (
	"strings"
	"time"
)

// RunStatus 演化运行状态。running 之后只能进入一个终止状态。
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusFailed      RunStatus = "failed"
	RunStatusInterrupted RunStatus = "interrupted"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusInterrupted
}

// CanTransition 状态只能单调推进；显式中断也只允许从 running 发出
func CanTransition(from, to RunStatus) bool {
	if from == to {
		return false
	}
	return from == RunStatusRunning && to.Terminal()
}

// Mode 演化模式
type Mode string

const (
	ModeGP       Mode = "gp"
	ModeCultural Mode = "cultural"
)

// EvolutionRun 一次演化运行
type EvolutionRun struct {
	ID        string     `gorm:"primaryKey;size:64" json:"id"`
	Goal      string     `gorm:"type:text" json:"goal"`
	Status    RunStatus  `gorm:"size:16;index;not null" json:"status"`
	Mode      Mode       `gorm:"size:16" json:"mode"`
	StartedAt time.Time  `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	// Config 运行配置快照（JSON）
	Config string `gorm:"type:text" json:"config,omitempty"`
}

func (EvolutionRun) TableName() string { return "evolution_runs" }

// Generation 一代的记录，写入后不可修改
type Generation struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID     string    `gorm:"size:64;not null;uniqueIndex:idx_generation_run_number" json:"run_id"`
	Number    int       `gorm:"not null;uniqueIndex:idx_generation_run_number" json:"number"`
	StartedAt time.Time `gorm:"not null" json:"started_at"`
	Comment   string    `gorm:"type:text" json:"comment,omitempty"`
}

func (Generation) TableName() string { return "generations" }

// Workflow 工作流身份，版本挂在其下
type Workflow struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Workflow) TableName() string { return "workflows" }

// WorkflowVersion 某个基因组在某一代的工作流快照。ID 为结构哈希加基因组 ID。
type WorkflowVersion struct {
	ID         string    `gorm:"primaryKey;size:160" json:"id"`
	WorkflowID string    `gorm:"size:64;index;not null" json:"workflow_id"`
	RunID      string    `gorm:"size:64;index;not null" json:"run_id"`
	Generation int       `gorm:"not null" json:"generation"`
	GenomeID   string    `gorm:"size:64;index;not null" json:"genome_id"`
	ParentIDs  string    `gorm:"size:160" json:"parent_ids,omitempty"`
	Hash       string    `gorm:"size:64;index" json:"hash"`
	DSL        string    `gorm:"type:text" json:"dsl"`
	Operation  string    `gorm:"size:16" json:"operation"`
	CreatedAt  time.Time `json:"created_at"`
}

func (WorkflowVersion) TableName() string { return "workflow_versions" }

// Parents splits ParentIDs.
func (v WorkflowVersion) Parents() []string {
	if v.ParentIDs == "" {
		return nil
	}
	return strings.Split(v.ParentIDs, ",")
}

// WorkflowInvocation 一次基因组评估
type WorkflowInvocation struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	RunID        string    `gorm:"size:64;index:idx_invocation_run_generation;not null" json:"run_id"`
	Generation   int       `gorm:"index:idx_invocation_run_generation" json:"generation"`
	VersionID    string    `gorm:"size:160;index" json:"version_id"`
	GenomeID     string    `gorm:"size:64;index;not null" json:"genome_id"`
	Accuracy     *float64  `json:"accuracy,omitempty"`
	FitnessScore *float64  `json:"fitness_score,omitempty"`
	Novelty      *float64  `json:"novelty,omitempty"`
	CostUSD      float64   `json:"cost_usd"`
	Feedback     string    `gorm:"type:text" json:"feedback,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (WorkflowInvocation) TableName() string { return "workflow_invocations" }

// Scores 评估完成后写回调用记录的分数
type Scores struct {
	Accuracy     float64 `json:"accuracy"`
	FitnessScore float64 `json:"fitness_score"`
	Novelty      float64 `json:"novelty"`
	CostUSD      float64 `json:"cost_usd"`
	Feedback     string  `json:"feedback,omitempty"`
}

// AllModels lists the tables managed by the tracker.
func AllModels() []any {
	return []any{&EvolutionRun{}, &Generation{}, &Workflow{}, &WorkflowVersion{}, &WorkflowInvocation{}}
}
