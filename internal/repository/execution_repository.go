package repository

import (
	"time"

	"github.com/mautops/routine-gin/internal/model"
	"gorm.io/gorm"
)

// ExecutionRepository 执行记录仓储接口
type ExecutionRepository interface {
	Save(execution *model.ExecutionModel) error
	FindByID(id string) (*model.ExecutionModel, error)
	FindOpen(routineID string, executorID string, day string) (*model.ExecutionModel, error)
	FindByFilter(filter *ExecutionFilter) ([]*model.ExecutionModel, error)
	FindStartedInWindow(windowStart time.Time, windowEnd time.Time) ([]*model.ExecutionModel, error)
	SaveAnswer(answer *model.ChecklistAnswerModel) error
	FindAnswer(executionID string, itemID string) (*model.ChecklistAnswerModel, error)
	FindAnswers(executionID string) ([]*model.ChecklistAnswerModel, error)
}

// ExecutionFilter 执行记录查询过滤器
type ExecutionFilter struct {
	RoutineID  *string
	ExecutorID *string
	Day        *string
	State      *string
}

// executionRepository 执行记录仓储实现
type executionRepository struct {
	db *gorm.DB
}

// NewExecutionRepository 创建执行记录仓储
func NewExecutionRepository(db *gorm.DB) ExecutionRepository {
	return &executionRepository{db: db}
}

// Save 保存执行记录
func (r *executionRepository) Save(execution *model.ExecutionModel) error {
	return r.db.Save(execution).Error
}

// FindByID 根据 ID 查找执行记录
func (r *executionRepository) FindByID(id string) (*model.ExecutionModel, error) {
	var execution model.ExecutionModel
	if err := r.db.Where("id = ?", id).First(&execution).Error; err != nil {
		return nil, err
	}
	return &execution, nil
}

// FindOpen 查找某 (任务, 执行人, 日期) 当前未完成的执行记录
// 唯一性约束保证最多存在一条;不存在时返回 gorm.ErrRecordNotFound
func (r *executionRepository) FindOpen(routineID string, executorID string, day string) (*model.ExecutionModel, error) {
	var execution model.ExecutionModel
	err := r.db.Where("routine_id = ? AND executor_id = ? AND day = ? AND finished_at IS NULL",
		routineID, executorID, day).
		First(&execution).Error
	if err != nil {
		return nil, err
	}
	return &execution, nil
}

// FindByFilter 根据过滤器查找执行记录
func (r *executionRepository) FindByFilter(filter *ExecutionFilter) ([]*model.ExecutionModel, error) {
	var executions []*model.ExecutionModel
	query := r.db.Model(&model.ExecutionModel{})

	if filter != nil {
		if filter.RoutineID != nil {
			query = query.Where("routine_id = ?", *filter.RoutineID)
		}
		if filter.ExecutorID != nil {
			query = query.Where("executor_id = ?", *filter.ExecutorID)
		}
		if filter.Day != nil {
			query = query.Where("day = ?", *filter.Day)
		}
		if filter.State != nil {
			query = query.Where("state = ?", *filter.State)
		}
	}

	err := query.Order("created_at DESC").Find(&executions).Error
	return executions, err
}

// FindStartedInWindow 查找启动时间落在 [windowStart, windowEnd] 内的执行记录
// 已完成与未完成的都计入: 只要启动过即视为有产出
func (r *executionRepository) FindStartedInWindow(windowStart time.Time, windowEnd time.Time) ([]*model.ExecutionModel, error) {
	var executions []*model.ExecutionModel
	err := r.db.Where("started_at IS NOT NULL AND started_at >= ? AND started_at <= ?",
		windowStart, windowEnd).
		Find(&executions).Error
	return executions, err
}

// SaveAnswer 保存检查项作答
func (r *executionRepository) SaveAnswer(answer *model.ChecklistAnswerModel) error {
	return r.db.Save(answer).Error
}

// FindAnswer 查找执行记录中某检查项的作答
func (r *executionRepository) FindAnswer(executionID string, itemID string) (*model.ChecklistAnswerModel, error) {
	var answer model.ChecklistAnswerModel
	err := r.db.Where("execution_id = ? AND item_id = ?", executionID, itemID).First(&answer).Error
	if err != nil {
		return nil, err
	}
	return &answer, nil
}

// FindAnswers 查找执行记录的全部作答
func (r *executionRepository) FindAnswers(executionID string) ([]*model.ChecklistAnswerModel, error) {
	var answers []*model.ChecklistAnswerModel
	err := r.db.Where("execution_id = ?", executionID).Find(&answers).Error
	return answers, err
}
