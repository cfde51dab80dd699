package recurrence

import (
	"time"

	"github.com/mautops/routine-gin/internal/model"
)

// DateOnly 将时间截断为 UTC 日期 (零点)
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OccursOn 判断例行任务在指定日期是否发生
// 规则按类型/周期匹配,首个命中者生效:
//   - adhoc: 仅在 start_date 当天发生
//   - daily: start_date 起每天发生
//   - weekly: start_date 起每逢指定星期几发生;星期名无法识别则永不发生
//   - monthly: start_date 起每月同一天发生;短月没有该日则该月不发生 (不顺延)
func OccursOn(r *model.RoutineModel, date time.Time) bool {
	start, err := r.StartDateValue()
	if err != nil {
		return false
	}
	day := DateOnly(date)

	if r.Type == model.RoutineTypeAdHoc {
		return day.Equal(start)
	}

	if day.Before(start) {
		return false
	}

	switch r.Periodicity {
	case model.PeriodicityDaily:
		return true
	case model.PeriodicityWeekly:
		if r.Weekday == nil {
			return false
		}
		wd, ok := ParseWeekday(*r.Weekday)
		if !ok {
			return false
		}
		return day.Weekday() == wd
	case model.PeriodicityMonthly:
		return day.Day() == start.Day()
	default:
		return false
	}
}

// CountOccurrences 统计 [from, to] 闭区间内的发生次数
// 按天迭代累加,范围不超过一年时线性开销可接受
func CountOccurrences(r *model.RoutineModel, from, to time.Time) int {
	start := DateOnly(from)
	end := DateOnly(to)
	if end.Before(start) {
		return 0
	}

	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if OccursOn(r, d) {
			count++
		}
	}
	return count
}
