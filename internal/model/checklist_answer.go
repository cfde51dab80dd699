package model

import (
	"errors"
	"time"
)

// ChecklistAnswerModel 检查项作答数据模型
// 执行记录创建时按检查项模板逐条实例化,执行完成前可反复修改
type ChecklistAnswerModel struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)"`
	ExecutionID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_answers_execution_item,priority:1"`
	ItemID       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_answers_execution_item,priority:2"`
	Completed    bool      `gorm:"not null;default:false"`
	NumericValue *float64
	TextValue    *string   `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName 指定表名
func (ChecklistAnswerModel) TableName() string {
	return "checklist_answers"
}

// Validate 验证作答模型
func (cam *ChecklistAnswerModel) Validate() error {
	if cam.ID == "" {
		return errors.New("checklist answer ID is required")
	}
	if cam.ExecutionID == "" {
		return errors.New("execution ID is required")
	}
	if cam.ItemID == "" {
		return errors.New("item ID is required")
	}
	return nil
}
