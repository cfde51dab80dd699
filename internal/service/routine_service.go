package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/routine-gin/internal/engine"
	"github.com/mautops/routine-gin/internal/model"
	"github.com/mautops/routine-gin/internal/recurrence"
	"github.com/mautops/routine-gin/internal/repository"
	"gorm.io/gorm"
)

// RoutineService 例行任务服务接口
// 面向计划员 (N1/N2 角色) 的任务与检查项模板管理
type RoutineService interface {
	Create(ctx context.Context, req *CreateRoutineRequest) (*RoutineDetail, error)
	Get(id string) (*RoutineDetail, error)
	List(filter *repository.RoutineFilter) ([]*model.RoutineModel, error)
	Occurrences(id string, from time.Time, to time.Time) (int, error)
}

// ChecklistItemRequest 检查项模板定义
// @Description 创建例行任务时的检查项定义
type ChecklistItemRequest struct {
	SortOrder          int      `json:"sort_order" example:"1" binding:"required"` // 顺序,任务内唯一正整数
	Description        string   `json:"description" example:"检查设备温度" binding:"required"` // 描述
	Required           bool     `json:"required" example:"true"` // 是否必填
	RequiresAttachment bool     `json:"requires_attachment" example:"false"` // 是否要求附件
	ValueType          string   `json:"value_type" example:"numeric"` // none/numeric/text
	MinValue           *float64 `json:"min_value" example:"0"` // 数值下界
	MaxValue           *float64 `json:"max_value" example:"100"` // 数值上界
}

// CreateRoutineRequest 创建例行任务请求
// @Description 创建例行任务的请求参数
type CreateRoutineRequest struct {
	Title              string                 `json:"title" example:"机房巡检" binding:"required"` // 标题
	Description        string                 `json:"description" example:"每日例行机房巡检"` // 描述
	Type               string                 `json:"type" example:"normal" binding:"required"` // normal/adhoc
	Periodicity        string                 `json:"periodicity" example:"daily"` // daily/weekly/monthly
	StartDate          string                 `json:"start_date" example:"2025-06-01" binding:"required"` // 首次生效日期
	Weekday            *string                `json:"weekday" example:"segunda-feira"` // weekly 任务的星期几
	StartTime          *string                `json:"start_time" example:"08:00"` // 计划开始时间 HH:MM
	DurationMinutes    int                    `json:"duration_minutes" example:"30"` // 预计时长 (分钟)
	Urgency            string                 `json:"urgency" example:"medium" binding:"required"` // high/medium/low
	RequiresAttachment bool                   `json:"requires_attachment" example:"false"` // 任务级附件要求
	ResponsibleUserID  string                 `json:"responsible_user_id" example:"user-001" binding:"required"` // 负责人
	DepartmentID       *string                `json:"department_id" example:"dep-001"` // 部门
	SectorID           *string                `json:"sector_id" example:"sec-001"` // 分区
	RegionID           *string                `json:"region_id" example:"reg-001"` // 大区
	Checklist          []ChecklistItemRequest `json:"checklist"` // 检查项模板
}

// RoutineDetail 例行任务详情 (含检查项模板)
type RoutineDetail struct {
	Routine   *model.RoutineModel         `json:"routine"`
	Checklist []*model.ChecklistItemModel `json:"checklist"`
}

// routineService 例行任务服务实现
type routineService struct {
	db          *gorm.DB
	routineRepo repository.RoutineRepository
	auditLogSvc AuditLogService
}

// NewRoutineService 创建例行任务服务
func NewRoutineService(db *gorm.DB, auditLogSvc AuditLogService) RoutineService {
	return &routineService{
		db:          db,
		routineRepo: repository.NewRoutineRepository(db),
		auditLogSvc: auditLogSvc,
	}
}

// Create 创建例行任务及其检查项模板 (同一事务,全有或全无)
// 星期名称在此边界归一化校验: weekly 任务的星期名无法识别时直接拒绝,
// 避免把永不匹配的规则写入存储
func (s *routineService) Create(ctx context.Context, req *CreateRoutineRequest) (*RoutineDetail, error) {
	now := time.Now().UTC()

	routine := &model.RoutineModel{
		ID:                 uuid.New().String(),
		Title:              req.Title,
		Description:        req.Description,
		Type:               req.Type,
		Periodicity:        req.Periodicity,
		StartDate:          req.StartDate,
		Weekday:            req.Weekday,
		StartTime:          req.StartTime,
		DurationMinutes:    req.DurationMinutes,
		Urgency:            req.Urgency,
		HasChecklist:       len(req.Checklist) > 0,
		RequiresAttachment: req.RequiresAttachment,
		ResponsibleUserID:  req.ResponsibleUserID,
		DepartmentID:       req.DepartmentID,
		SectorID:           req.SectorID,
		RegionID:           req.RegionID,
		CreatedBy:          getUserIDFromContext(ctx),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if routine.Type == model.RoutineTypeAdHoc {
		// adhoc 任务等价于仅在 start_date 当天的单次发生,周期字段无意义
		routine.Periodicity = ""
	}
	if err := routine.Validate(); err != nil {
		return nil, fmt.Errorf("invalid routine: %w", err)
	}
	if routine.Type == model.RoutineTypeNormal && routine.Periodicity == model.PeriodicityWeekly {
		if _, ok := recurrence.ParseWeekday(*routine.Weekday); !ok {
			return nil, fmt.Errorf("invalid routine: unrecognized weekday %q", *routine.Weekday)
		}
	}

	items := make([]*model.ChecklistItemModel, 0, len(req.Checklist))
	for _, ir := range req.Checklist {
		valueType := ir.ValueType
		if valueType == "" {
			valueType = model.ValueTypeNone
		}
		item := &model.ChecklistItemModel{
			ID:                 uuid.New().String(),
			RoutineID:          routine.ID,
			SortOrder:          ir.SortOrder,
			Description:        ir.Description,
			Required:           ir.Required,
			RequiresAttachment: ir.RequiresAttachment,
			ValueType:          valueType,
			MinValue:           ir.MinValue,
			MaxValue:           ir.MaxValue,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("invalid checklist item (order %d): %w", ir.SortOrder, err)
		}
		items = append(items, item)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(routine).Error; err != nil {
			return err
		}
		for _, item := range items {
			if err := tx.Create(item).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create routine: %w", err)
	}

	if s.auditLogSvc != nil {
		userID := getUserIDFromContext(ctx)
		if userID == "" {
			userID = routine.ResponsibleUserID
		}
		details := fmt.Sprintf(`{"routine_id":"%s","title":"%s","type":"%s"}`, routine.ID, routine.Title, routine.Type)
		_ = s.auditLogSvc.RecordAction(ctx, userID, "create", "routine", routine.ID, details)
	}

	return &RoutineDetail{Routine: routine, Checklist: items}, nil
}

// Get 获取例行任务详情
func (s *routineService) Get(id string) (*RoutineDetail, error) {
	routine, err := s.routineRepo.FindByID(id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, &engine.NotFoundError{Resource: "routine", ID: id}
		}
		return nil, err
	}

	items, err := s.routineRepo.FindChecklistItems(id)
	if err != nil {
		return nil, err
	}

	return &RoutineDetail{Routine: routine, Checklist: items}, nil
}

// List 按过滤器列出例行任务
func (s *routineService) List(filter *repository.RoutineFilter) ([]*model.RoutineModel, error) {
	return s.routineRepo.FindByFilter(filter)
}

// Occurrences 统计任务在闭区间内的计划发生次数
func (s *routineService) Occurrences(id string, from time.Time, to time.Time) (int, error) {
	routine, err := s.routineRepo.FindByID(id)
	if err != nil {
		if repository.IsNotFound(err) {
			return 0, &engine.NotFoundError{Resource: "routine", ID: id}
		}
		return 0, err
	}
	return recurrence.CountOccurrences(routine, from, to), nil
}
