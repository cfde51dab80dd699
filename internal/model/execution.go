package model

import (
	"errors"
	"time"
)

// 执行记录状态
// 状态完全由时间戳字段决定: StartedAt 非空且 PausedAt/FinishedAt 为空 => running,
// PausedAt 非空 => paused, FinishedAt 非空 => finished (终态,不可变更)
const (
	ExecutionStateRunning  = "running"
	ExecutionStatePaused   = "paused"
	ExecutionStateFinished = "finished"
)

// ExecutionModel 执行记录数据模型
// 一条记录对应一人在某一天对某个例行任务的一次执行
// 唯一性约束: 同一 (routine_id, executor_id, day) 最多存在一条未完成的执行记录,
// 由 idx_executions_open 部分唯一索引 (WHERE finished_at IS NULL) 保证
type ExecutionModel struct {
	ID             string     `gorm:"primaryKey;type:varchar(64)"`
	RoutineID      string     `gorm:"type:varchar(64);not null;index:idx_executions_routine_executor_day,priority:1"`
	ExecutorID     string     `gorm:"type:varchar(64);not null;index:idx_executions_routine_executor_day,priority:2"`
	Day            string     `gorm:"type:varchar(10);not null;index:idx_executions_routine_executor_day,priority:3"` // YYYY-MM-DD
	State          string     `gorm:"type:varchar(16);not null;index"` // running/paused/finished
	StartedAt      *time.Time `gorm:"index"`
	PausedAt       *time.Time
	FinishedAt     *time.Time `gorm:"index"`
	ElapsedSeconds int64      `gorm:"not null;default:0"` // 持久化的累计执行秒数,单调不减
	Notes          string     `gorm:"type:text"`
	CreatedAt      time.Time  `gorm:"not null;index"`
	UpdatedAt      time.Time  `gorm:"not null"`
}

// TableName 指定表名
func (ExecutionModel) TableName() string {
	return "executions"
}

// IsFinished 是否已完成 (终态)
func (em *ExecutionModel) IsFinished() bool {
	return em.FinishedAt != nil
}

// IsRunning 是否正在执行
func (em *ExecutionModel) IsRunning() bool {
	return em.StartedAt != nil && em.PausedAt == nil && em.FinishedAt == nil
}

// IsPaused 是否处于暂停中
func (em *ExecutionModel) IsPaused() bool {
	return em.StartedAt != nil && em.PausedAt != nil && em.FinishedAt == nil
}

// CurrentState 根据时间戳推导当前状态
func (em *ExecutionModel) CurrentState() string {
	switch {
	case em.IsFinished():
		return ExecutionStateFinished
	case em.IsPaused():
		return ExecutionStatePaused
	default:
		return ExecutionStateRunning
	}
}

// Validate 验证执行记录模型
func (em *ExecutionModel) Validate() error {
	if em.ID == "" {
		return errors.New("execution ID is required")
	}
	if em.RoutineID == "" {
		return errors.New("routine ID is required")
	}
	if em.ExecutorID == "" {
		return errors.New("executor ID is required")
	}
	if _, err := time.ParseInLocation("2006-01-02", em.Day, time.UTC); err != nil {
		return errors.New("day must be in YYYY-MM-DD format")
	}
	if em.ElapsedSeconds < 0 {
		return errors.New("elapsed seconds must be >= 0")
	}
	return nil
}
