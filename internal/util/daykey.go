package util

import "time"

// DayKeyLayout UTC日历日键的格式，作为每日活动和连续天数统计的连接键
const DayKeyLayout = "2006-01-02"

// ToUTCDayKey 将任意时间戳归一化为UTC日历日键
func ToUTCDayKey(t time.Time) string {
	return t.UTC().Format(DayKeyLayout)
}

// DayKeyTime 将日键还原为UTC零点时刻，非法日键返回零值
func DayKeyTime(key string) time.Time {
	t, err := time.ParseInLocation(DayKeyLayout, key, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// PrevDayKey 前一天的日键
func PrevDayKey(key string) string {
	return ToUTCDayKey(DayKeyTime(key).AddDate(0, 0, -1))
}

// NextDayKey 后一天的日键
func NextDayKey(key string) string {
	return ToUTCDayKey(DayKeyTime(key).AddDate(0, 0, 1))
}
