package repository

import (
	"errors"
	"strings"

	"github.com/mautops/routine-gin/internal/model"
	"gorm.io/gorm"
)

// RoutineRepository 例行任务仓储接口
type RoutineRepository interface {
	Save(routine *model.RoutineModel) error
	FindByID(id string) (*model.RoutineModel, error)
	FindByIDs(ids []string) ([]*model.RoutineModel, error)
	FindByFilter(filter *RoutineFilter) ([]*model.RoutineModel, error)
	FindDailyNormalByUser(responsibleUserID string) ([]*model.RoutineModel, error)
	SaveChecklistItem(item *model.ChecklistItemModel) error
	FindChecklistItems(routineID string) ([]*model.ChecklistItemModel, error)
}

// RoutineFilter 例行任务查询过滤器
// 组织范围维度 (负责人/部门/分区/大区) 每次查询只应使用其中一个
type RoutineFilter struct {
	ResponsibleUserID *string
	DepartmentID      *string
	SectorID          *string
	RegionID          *string
	Type              *string
	Periodicity       *string
}

// routineRepository 例行任务仓储实现
type routineRepository struct {
	db *gorm.DB
}

// NewRoutineRepository 创建例行任务仓储
func NewRoutineRepository(db *gorm.DB) RoutineRepository {
	return &routineRepository{db: db}
}

// Save 保存例行任务
func (r *routineRepository) Save(routine *model.RoutineModel) error {
	return r.db.Save(routine).Error
}

// FindByID 根据 ID 查找例行任务
func (r *routineRepository) FindByID(id string) (*model.RoutineModel, error) {
	var routine model.RoutineModel
	if err := r.db.Where("id = ?", id).First(&routine).Error; err != nil {
		return nil, err
	}
	return &routine, nil
}

// FindByIDs 批量查找例行任务,不存在的 ID 直接跳过
func (r *routineRepository) FindByIDs(ids []string) ([]*model.RoutineModel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var routines []*model.RoutineModel
	err := r.db.Where("id IN ?", ids).Find(&routines).Error
	return routines, err
}

// FindByFilter 根据过滤器查找例行任务
func (r *routineRepository) FindByFilter(filter *RoutineFilter) ([]*model.RoutineModel, error) {
	var routines []*model.RoutineModel
	query := r.db.Model(&model.RoutineModel{})

	if filter != nil {
		if filter.ResponsibleUserID != nil {
			query = query.Where("responsible_user_id = ?", *filter.ResponsibleUserID)
		}
		if filter.DepartmentID != nil {
			query = query.Where("department_id = ?", *filter.DepartmentID)
		}
		if filter.SectorID != nil {
			query = query.Where("sector_id = ?", *filter.SectorID)
		}
		if filter.RegionID != nil {
			query = query.Where("region_id = ?", *filter.RegionID)
		}
		if filter.Type != nil {
			query = query.Where("type = ?", *filter.Type)
		}
		if filter.Periodicity != nil {
			query = query.Where("periodicity = ?", *filter.Periodicity)
		}
	}

	err := query.Order("created_at DESC").Find(&routines).Error
	return routines, err
}

// FindDailyNormalByUser 查找某负责人的全部 daily normal 任务 (冲突检测用)
func (r *routineRepository) FindDailyNormalByUser(responsibleUserID string) ([]*model.RoutineModel, error) {
	var routines []*model.RoutineModel
	err := r.db.Where("responsible_user_id = ? AND type = ? AND periodicity = ?",
		responsibleUserID, model.RoutineTypeNormal, model.PeriodicityDaily).
		Find(&routines).Error
	return routines, err
}

// SaveChecklistItem 保存检查项模板
func (r *routineRepository) SaveChecklistItem(item *model.ChecklistItemModel) error {
	return r.db.Save(item).Error
}

// FindChecklistItems 查找例行任务的检查项模板,按 sort_order 升序
func (r *routineRepository) FindChecklistItems(routineID string) ([]*model.ChecklistItemModel, error) {
	var items []*model.ChecklistItemModel
	err := r.db.Where("routine_id = ?", routineID).Order("sort_order ASC").Find(&items).Error
	return items, err
}

// IsNotFound 判断是否为记录不存在错误
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicate 判断是否为唯一约束冲突错误
// SQLite 报 "UNIQUE constraint failed",PostgreSQL 报
// "duplicate key value violates unique constraint",按两种方言的报文判断
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
