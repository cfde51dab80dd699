package model

import (
	"errors"
	"time"
)

// 检查项值类型
const (
	ValueTypeNone    = "none"
	ValueTypeNumeric = "numeric"
	ValueTypeText    = "text"
)

// ChecklistItemModel 检查项模板数据模型
// 属于唯一一个例行任务,SortOrder 在同一任务内唯一
type ChecklistItemModel struct {
	ID                 string    `gorm:"primaryKey;type:varchar(64)"`
	RoutineID          string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_checklist_routine_order,priority:1"`
	SortOrder          int       `gorm:"not null;uniqueIndex:idx_checklist_routine_order,priority:2"` // 展示与校验顺序,正整数
	Description        string    `gorm:"type:text;not null"`
	Required           bool      `gorm:"not null;default:false"`
	RequiresAttachment bool      `gorm:"not null;default:false"` // 检查项级别的附件要求
	ValueType          string    `gorm:"type:varchar(16);not null;default:'none'"` // none/numeric/text
	MinValue           *float64  // 仅 ValueType = numeric 时有效
	MaxValue           *float64
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

// TableName 指定表名
func (ChecklistItemModel) TableName() string {
	return "checklist_items"
}

// Validate 验证检查项模板模型
func (cim *ChecklistItemModel) Validate() error {
	if cim.ID == "" {
		return errors.New("checklist item ID is required")
	}
	if cim.RoutineID == "" {
		return errors.New("routine ID is required")
	}
	if cim.SortOrder <= 0 {
		return errors.New("sort order must be a positive integer")
	}
	if cim.Description == "" {
		return errors.New("checklist item description is required")
	}
	switch cim.ValueType {
	case ValueTypeNone, ValueTypeNumeric, ValueTypeText:
	default:
		return errors.New("value type must be none, numeric or text")
	}
	if cim.ValueType == ValueTypeNumeric && cim.MinValue != nil && cim.MaxValue != nil && *cim.MinValue > *cim.MaxValue {
		return errors.New("min value must not exceed max value")
	}
	return nil
}
