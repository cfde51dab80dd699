package model

import (
	"errors"
	"time"
)

// 例行任务类型
const (
	RoutineTypeNormal = "normal" // 周期性任务
	RoutineTypeAdHoc  = "adhoc"  // 单次任务,仅在 start_date 当天发生
)

// 周期类型 (仅 normal 类型任务有效)
const (
	PeriodicityDaily   = "daily"
	PeriodicityWeekly  = "weekly"
	PeriodicityMonthly = "monthly"
)

// 紧急程度
const (
	UrgencyHigh   = "high"
	UrgencyMedium = "medium"
	UrgencyLow    = "low"
)

// RoutineModel 例行任务定义数据模型
type RoutineModel struct {
	ID                 string     `gorm:"primaryKey;type:varchar(64)"`
	Title              string     `gorm:"type:varchar(255);not null"`
	Description        string     `gorm:"type:text"`
	Type               string     `gorm:"type:varchar(16);not null;index"` // normal/adhoc
	Periodicity        string     `gorm:"type:varchar(16);index"`          // daily/weekly/monthly
	StartDate          string     `gorm:"type:varchar(10);not null"`       // YYYY-MM-DD,首次生效日期
	Weekday            *string    `gorm:"type:varchar(32)"`                // 周期为 weekly 时必填
	StartTime          *string    `gorm:"type:varchar(5)"`                 // HH:MM,可为空
	DurationMinutes    int        `gorm:"not null;default:0"`
	Urgency            string     `gorm:"type:varchar(16);not null"` // high/medium/low
	HasChecklist       bool       `gorm:"not null;default:false"`
	RequiresAttachment bool       `gorm:"not null;default:false"`
	ResponsibleUserID  string     `gorm:"type:varchar(64);not null;index"` // 负责人 ID
	DepartmentID       *string    `gorm:"type:varchar(64);index"`
	SectorID           *string    `gorm:"type:varchar(64);index"`
	RegionID           *string    `gorm:"type:varchar(64);index"`
	CreatedBy          string     `gorm:"type:varchar(64);index"`
	CreatedAt          time.Time  `gorm:"not null;index"`
	UpdatedAt          time.Time  `gorm:"not null"`
}

// TableName 指定表名
func (RoutineModel) TableName() string {
	return "routines"
}

// StartDateValue 解析首次生效日期
func (rm *RoutineModel) StartDateValue() (time.Time, error) {
	return time.ParseInLocation("2006-01-02", rm.StartDate, time.UTC)
}

// IsDailyNormal 是否为周期为 daily 的 normal 任务 (冲突检测仅针对此类任务)
func (rm *RoutineModel) IsDailyNormal() bool {
	return rm.Type == RoutineTypeNormal && rm.Periodicity == PeriodicityDaily
}

// Validate 验证例行任务模型
func (rm *RoutineModel) Validate() error {
	if rm.ID == "" {
		return errors.New("routine ID is required")
	}
	if rm.Title == "" {
		return errors.New("routine title is required")
	}
	if rm.Type != RoutineTypeNormal && rm.Type != RoutineTypeAdHoc {
		return errors.New("routine type must be normal or adhoc")
	}
	if rm.Type == RoutineTypeNormal {
		switch rm.Periodicity {
		case PeriodicityDaily, PeriodicityWeekly, PeriodicityMonthly:
		default:
			return errors.New("periodicity must be daily, weekly or monthly")
		}
		// weekly 任务必须指定星期几
		if rm.Periodicity == PeriodicityWeekly && (rm.Weekday == nil || *rm.Weekday == "") {
			return errors.New("weekly routine requires a weekday")
		}
	}
	if _, err := rm.StartDateValue(); err != nil {
		return errors.New("start date must be in YYYY-MM-DD format")
	}
	if rm.DurationMinutes < 0 {
		return errors.New("duration minutes must be >= 0")
	}
	switch rm.Urgency {
	case UrgencyHigh, UrgencyMedium, UrgencyLow:
	default:
		return errors.New("urgency must be high, medium or low")
	}
	if rm.ResponsibleUserID == "" {
		return errors.New("responsible user ID is required")
	}
	return nil
}
