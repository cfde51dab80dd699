package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/mautops/routine-gin/internal/model"
	"github.com/mautops/routine-gin/internal/recurrence"
	"github.com/mautops/routine-gin/internal/repository"
	"gorm.io/gorm"
)

// 聚合维度: 每次查询只按一个组织维度分组
const (
	ScopeExecutor = "executor" // 按负责人
	ScopeSector   = "sector"   // 按分区
	ScopeRegion   = "region"   // 按大区
)

// ScopeFilter 聚合范围过滤器
// Dimension 必填;ID 可选,用于只看某一个范围键
type ScopeFilter struct {
	Dimension string  `json:"dimension"`
	ID        *string `json:"id,omitempty"`
}

// AggregateRow 计划/实际对比结果行
// @Description 某组织范围在统计窗口内的计划与实际执行对比
type AggregateRow struct {
	ScopeKey       string  `json:"scope_key"`       // 范围键 (负责人/分区/大区 ID)
	Planned        int     `json:"planned"`         // 计划发生次数
	Executed       int     `json:"executed"`        // 实际启动的执行次数
	CompletionRate float64 `json:"completion_rate"` // 完成率 (%)
}

// ReportService 计划/实际聚合服务接口
type ReportService interface {
	PlannedVsExecuted(filter *ScopeFilter, windowStart time.Time, windowEnd time.Time) ([]*AggregateRow, error)
}

// reportService 计划/实际聚合服务实现
type reportService struct {
	routineRepo repository.RoutineRepository
	execRepo    repository.ExecutionRepository
}

// NewReportService 创建聚合服务
func NewReportService(db *gorm.DB) ReportService {
	return &reportService{
		routineRepo: repository.NewRoutineRepository(db),
		execRepo:    repository.NewExecutionRepository(db),
	}
}

// PlannedVsExecuted 汇总窗口内各范围键的计划次数、实际执行次数与完成率
// 计划数来自周期求值器,实际数按启动时间统计 (启动即计入,不论是否完成);
// planned = 0 时完成率定义为 0;只出现在执行侧的范围键也保留成行,
// 便于发现计划外/补录的执行;结果按完成率降序稳定排序
func (s *reportService) PlannedVsExecuted(filter *ScopeFilter, windowStart time.Time, windowEnd time.Time) ([]*AggregateRow, error) {
	if filter == nil {
		return nil, fmt.Errorf("scope filter is required")
	}
	switch filter.Dimension {
	case ScopeExecutor, ScopeSector, ScopeRegion:
	default:
		return nil, fmt.Errorf("unknown scope dimension %q", filter.Dimension)
	}

	start := recurrence.DateOnly(windowStart)
	end := recurrence.DateOnly(windowEnd)

	// 1. 选出该维度下的全部例行任务
	routines, err := s.findRoutines(filter)
	if err != nil {
		return nil, err
	}
	routineByID := make(map[string]*model.RoutineModel, len(routines))
	for _, r := range routines {
		routineByID[r.ID] = r
	}

	// 2. 按范围键累加计划次数,保留首次出现顺序以保证排序稳定
	planned := make(map[string]int)
	var keyOrder []string
	seen := make(map[string]bool)
	for _, r := range routines {
		key, ok := scopeKey(r, filter.Dimension)
		if !ok {
			continue
		}
		if !seen[key] {
			seen[key] = true
			keyOrder = append(keyOrder, key)
		}

		from := start
		if sd, err := r.StartDateValue(); err == nil && sd.After(from) {
			from = sd
		}
		planned[key] += recurrence.CountOccurrences(r, from, end)
	}

	// 3. 统计窗口内启动的执行次数
	executed, err := s.countExecuted(filter, routineByID, start, end)
	if err != nil {
		return nil, err
	}
	for key := range executed {
		if !seen[key] {
			seen[key] = true
			keyOrder = append(keyOrder, key)
		}
	}

	// 4. 合成结果并按完成率降序稳定排序
	rows := make([]*AggregateRow, 0, len(keyOrder))
	for _, key := range keyOrder {
		p := planned[key]
		e := executed[key]
		rate := 0.0
		if p > 0 {
			rate = float64(e) / float64(p) * 100
		}
		rows = append(rows, &AggregateRow{
			ScopeKey:       key,
			Planned:        p,
			Executed:       e,
			CompletionRate: rate,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CompletionRate > rows[j].CompletionRate
	})

	return rows, nil
}

// findRoutines 查询该维度下的例行任务;ID 给定时只取该范围键
// 不限定 ID 时取全量,维度字段为空的任务由 scopeKey 过滤掉
func (s *reportService) findRoutines(filter *ScopeFilter) ([]*model.RoutineModel, error) {
	routineFilter := &repository.RoutineFilter{}
	if filter.ID != nil {
		switch filter.Dimension {
		case ScopeSector:
			routineFilter.SectorID = filter.ID
		case ScopeRegion:
			routineFilter.RegionID = filter.ID
		default:
			routineFilter.ResponsibleUserID = filter.ID
		}
	}

	routines, err := s.routineRepo.FindByFilter(routineFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to select routines for scope: %w", err)
	}
	return routines, nil
}

// countExecuted 统计启动时间落在窗口内、且所属任务命中该维度的执行次数
// 窗口右边界取当天最后一刻,保证日期闭区间语义
func (s *reportService) countExecuted(filter *ScopeFilter, routineByID map[string]*model.RoutineModel, start, end time.Time) (map[string]int, error) {
	windowEnd := end.AddDate(0, 0, 1).Add(-time.Nanosecond)

	executions, err := s.execRepo.FindStartedInWindow(start, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to select executions for window: %w", err)
	}

	// 补齐不在 routineByID 中的任务 (范围键只出现在执行侧的情形)
	var missing []string
	for _, e := range executions {
		if _, ok := routineByID[e.RoutineID]; !ok {
			missing = append(missing, e.RoutineID)
		}
	}
	if len(missing) > 0 {
		extra, err := s.routineRepo.FindByIDs(missing)
		if err != nil {
			return nil, err
		}
		for _, r := range extra {
			routineByID[r.ID] = r
		}
	}

	executed := make(map[string]int)
	for _, e := range executions {
		r := routineByID[e.RoutineID]
		if r == nil {
			continue
		}
		key, ok := scopeKey(r, filter.Dimension)
		if !ok {
			continue
		}
		if filter.ID != nil && key != *filter.ID {
			continue
		}
		executed[key]++
	}
	return executed, nil
}

// scopeKey 从任务中提取维度对应的范围键
func scopeKey(r *model.RoutineModel, dimension string) (string, bool) {
	switch dimension {
	case ScopeExecutor:
		if r.ResponsibleUserID == "" {
			return "", false
		}
		return r.ResponsibleUserID, true
	case ScopeSector:
		if r.SectorID == nil || *r.SectorID == "" {
			return "", false
		}
		return *r.SectorID, true
	case ScopeRegion:
		if r.RegionID == nil || *r.RegionID == "" {
			return "", false
		}
		return *r.RegionID, true
	default:
		return "", false
	}
}
