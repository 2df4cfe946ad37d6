package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/evoflow/internal/database"
	"github.com/BaSui01/evoflow/types"
)

// defaultWriteRetries 瞬时数据库错误的事务重试次数
const defaultWriteRetries = 3

// GormTracker 基于 GORM 的追踪器，支持 postgres、mysql 与 sqlite
type GormTracker struct {
	pool    *database.PoolManager
	retries int
	logger  *zap.Logger
}

// NewGormTracker creates a tracker on top of a pool manager.
func NewGormTracker(pool *database.PoolManager, logger *zap.Logger) *GormTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormTracker{
		pool:    pool,
		retries: defaultWriteRetries,
		logger:  logger.With(zap.String("component", "gorm_tracker")),
	}
}

// AutoMigrate 创建或更新追踪表，供不使用 SQL 迁移的部署（如 sqlite 试运行）使用
func (t *GormTracker) AutoMigrate(ctx context.Context) error {
	if err := t.pool.DB().WithContext(ctx).AutoMigrate(AllModels()...); err != nil {
		return types.NewRunTrackingError(types.ErrTrackerWrite, "autoMigrate", err)
	}
	return nil
}

func (t *GormTracker) write(ctx context.Context, op string, fn database.TransactionFunc) error {
	err := t.pool.WithTransactionRetry(ctx, t.retries, fn)
	if err == nil {
		return nil
	}
	if types.IsKind(err, types.KindRunTracking) {
		return err
	}
	t.logger.Error("tracker write failed", zap.String("operation", op), zap.Error(err))
	return types.NewRunTrackingError(types.ErrTrackerWrite, op, err)
}

func (t *GormTracker) read(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrNotFound
	}
	return types.NewRunTrackingError(types.ErrTrackerRead, op, err)
}

func (t *GormTracker) CreateEvolutionRun(ctx context.Context, run *EvolutionRun) error {
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	return t.write(ctx, "createEvolutionRun", func(tx *gorm.DB) error {
		return tx.Create(run).Error
	})
}

func (t *GormTracker) UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error {
	return t.write(ctx, "updateRunStatus", func(tx *gorm.DB) error {
		var run EvolutionRun
		if err := tx.First(&run, "id = ?", runID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.NewRunTrackingError(types.ErrTrackerWrite, "updateRunStatus", ErrNotFound)
			}
			return err
		}
		if !CanTransition(run.Status, status) {
			return invalidTransition(run.Status, status)
		}
		// 以旧状态为条件更新，避免并发的两个终止状态互相覆盖
		res := tx.Model(&EvolutionRun{}).
			Where("id = ? AND status = ?", runID, run.Status).
			Updates(map[string]any{"status": status, "ended_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return invalidTransition(run.Status, status)
		}
		return nil
	})
}

func (t *GormTracker) GetRun(ctx context.Context, runID string) (*EvolutionRun, error) {
	var run EvolutionRun
	if err := t.pool.DB().WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
		return nil, t.read("getRun", err)
	}
	return &run, nil
}

func (t *GormTracker) CreateGeneration(ctx context.Context, gen *Generation) error {
	return t.write(ctx, "createGeneration", func(tx *gorm.DB) error {
		return tx.Create(gen).Error
	})
}

func (t *GormTracker) ListGenerations(ctx context.Context, runID string) ([]Generation, error) {
	var gens []Generation
	err := t.pool.DB().WithContext(ctx).
		Where("run_id = ?", runID).
		Order("number ASC").
		Find(&gens).Error
	if err != nil {
		return nil, t.read("listGenerations", err)
	}
	return gens, nil
}

func (t *GormTracker) EnsureWorkflowExists(ctx context.Context, id, description string) error {
	return t.write(ctx, "ensureWorkflowExists", func(tx *gorm.DB) error {
		wf := Workflow{ID: id, Description: description, CreatedAt: time.Now()}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&wf).Error
	})
}

func (t *GormTracker) CreateWorkflowVersion(ctx context.Context, v *WorkflowVersion) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	return t.write(ctx, "createWorkflowVersion", func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(v).Error
	})
}

func (t *GormTracker) CreateWorkflowInvocation(ctx context.Context, inv *WorkflowInvocation) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	return t.write(ctx, "createWorkflowInvocation", func(tx *gorm.DB) error {
		return tx.Create(inv).Error
	})
}

func (t *GormTracker) UpdateInvocationScores(ctx context.Context, invocationID string, scores Scores) error {
	return t.write(ctx, "updateInvocationScores", func(tx *gorm.DB) error {
		res := tx.Model(&WorkflowInvocation{}).
			Where("id = ?", invocationID).
			Updates(map[string]any{
				"accuracy":      scores.Accuracy,
				"fitness_score": scores.FitnessScore,
				"novelty":       scores.Novelty,
				"cost_usd":      scores.CostUSD,
				"feedback":      scores.Feedback,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.NewRunTrackingError(types.ErrTrackerWrite, "updateInvocationScores",
				fmt.Errorf("invocation %s: %w", invocationID, ErrNotFound))
		}
		return nil
	})
}

func (t *GormTracker) ListInvocations(ctx context.Context, runID string, generation int) ([]WorkflowInvocation, error) {
	q := t.pool.DB().WithContext(ctx).Where("run_id = ?", runID)
	if generation >= 0 {
		q = q.Where("generation = ?", generation)
	}
	var out []WorkflowInvocation
	if err := q.Order("generation ASC, created_at ASC").Find(&out).Error; err != nil {
		return nil, t.read("listInvocations", err)
	}
	return out, nil
}

var _ Tracker = (*GormTracker)(nil)
