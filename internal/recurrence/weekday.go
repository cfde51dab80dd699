package recurrence

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// 星期名称在数据录入边界统一归一化为 time.Weekday,
// 求值器内部只做枚举比较,不再处理本地化问题
var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"domingo":   time.Sunday,
	"monday":    time.Monday,
	"segunda":   time.Monday,
	"tuesday":   time.Tuesday,
	"terca":     time.Tuesday,
	"wednesday": time.Wednesday,
	"quarta":    time.Wednesday,
	"thursday":  time.Thursday,
	"quinta":    time.Thursday,
	"friday":    time.Friday,
	"sexta":     time.Friday,
	"saturday":  time.Saturday,
	"sabado":    time.Saturday,
}

// stripAccents 移除变音符号 (NFD 分解后去掉 Mn 类字符)
var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeWeekdayName 归一化星期名称: 去重音、转小写、去空白、去 "-feira" 后缀
func normalizeWeekdayName(name string) string {
	stripped, _, err := transform.String(stripAccents, name)
	if err != nil {
		stripped = name
	}
	s := strings.ToLower(strings.TrimSpace(stripped))
	s = strings.TrimSuffix(s, "-feira")
	s = strings.TrimSuffix(s, " feira")
	return s
}

// ParseWeekday 将自由文本的星期名称解析为 time.Weekday
// 大小写与重音不敏感;无法识别的名称返回 ok = false,永不 panic
func ParseWeekday(name string) (time.Weekday, bool) {
	wd, ok := weekdayNames[normalizeWeekdayName(name)]
	return wd, ok
}
