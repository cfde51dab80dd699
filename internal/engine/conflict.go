package engine

import (
	"time"

	"github.com/mautops/routine-gin/internal/model"
)

// 冲突检测仅覆盖同一负责人的 daily + normal 任务:
// 只有日常重复的排程密度才需要防止重叠占用
// weekly/monthly/adhoc 任务不参与此项检查,创建后也不再重复校验

// parseClock 解析 HH:MM 为当天分钟数
// 未设置或格式非法的开始时间视为无时间窗,不可能冲突
func parseClock(clock *string) (int, bool) {
	if clock == nil || *clock == "" {
		return 0, false
	}
	t, err := time.Parse("15:04", *clock)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// overlaps 标准半开区间重叠判定: [s1, s1+d1) 与 [s2, s2+d2)
func overlaps(s1, d1, s2, d2 int) bool {
	return s1 < s2+d2 && s2 < s1+d1
}

// FindConflict 在同一负责人的既有 daily normal 任务中查找与候选时间窗重叠的任务
// 返回第一个冲突的任务,无冲突返回 nil
func FindConflict(responsibleUserID string, startTime *string, durationMinutes int, existing []*model.RoutineModel) *model.RoutineModel {
	s1, ok := parseClock(startTime)
	if !ok {
		return nil
	}

	for _, r := range existing {
		if !r.IsDailyNormal() || r.ResponsibleUserID != responsibleUserID {
			continue
		}
		s2, ok := parseClock(r.StartTime)
		if !ok {
			continue
		}
		if overlaps(s1, durationMinutes, s2, r.DurationMinutes) {
			return r
		}
	}
	return nil
}

// HasConflict 判断候选时间窗是否与同一负责人的既有 daily normal 任务重叠
func HasConflict(responsibleUserID string, startTime *string, durationMinutes int, existing []*model.RoutineModel) bool {
	return FindConflict(responsibleUserID, startTime, durationMinutes, existing) != nil
}
