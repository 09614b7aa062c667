package model

import (
	"interview_prep_backend/internal/util"
	"math"
	"time"
)

type SkillLevel string

const (
	LevelBeginner     SkillLevel = "beginner"
	LevelIntermediate SkillLevel = "intermediate"
	LevelAdvanced     SkillLevel = "advanced"
	LevelExpert       SkillLevel = "expert"
)

// SkillLevelFor 由0-100分值推导技能等级
func SkillLevelFor(score int) SkillLevel {
	switch {
	case score >= 90:
		return LevelExpert
	case score >= 70:
		return LevelAdvanced
	case score >= 40:
		return LevelIntermediate
	default:
		return LevelBeginner
	}
}

// OverallStats 用户的终身统计与连续活跃天数
type OverallStats struct {
	ItemsAttempted    int       `json:"itemsAttempted"`
	ItemsCorrect      int       `json:"itemsCorrect"`
	SessionsCompleted int       `json:"sessionsCompleted"`
	BestScore         int       `json:"bestScore"`
	AverageScore      int       `json:"averageScore"`
	TimeSpentMinutes  int       `json:"timeSpentMinutes"`
	CurrentStreak     int       `json:"currentStreak"`
	LongestStreak     int       `json:"longestStreak"`
	LastActivityDate  time.Time `json:"lastActivityDate"`
}

// DailyActivity 一个UTC日历日的活动桶，每用户每日至多一个
type DailyActivity struct {
	Date              string `json:"date"` // UTC日键，2006-01-02
	Logins            int    `json:"logins"`
	SessionsCompleted int    `json:"sessionsCompleted"`
	ItemsAttempted    int    `json:"itemsAttempted"`
	TimeSpentMinutes  int    `json:"timeSpentMinutes"`
	AverageScore      int    `json:"averageScore"`
}

// Active 当日任一计数大于零即视为活跃
func (d *DailyActivity) Active() bool {
	return d.Logins > 0 || d.SessionsCompleted > 0 || d.ItemsAttempted > 0 || d.TimeSpentMinutes > 0
}

// SkillProgress 按技能/分类名聚合的统计
type SkillProgress struct {
	Skill         string     `json:"skill"`
	Score         int        `json:"score"`
	Attempted     int        `json:"attempted"`
	Correct       int        `json:"correct"`
	Level         SkillLevel `json:"level"`
	LastPracticed time.Time  `json:"lastPracticed"`
}

// AchievementBadge 已解锁的成就，按ID去重、只增不减
type AchievementBadge struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Icon       string    `json:"icon,omitempty"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

// UserProgress 每用户一条的滚动统计记录，首次读写时惰性创建。
// 子文档以JSON列存储；并发会话同时完成时允许个别字段的
// 后写覆盖（尽力而为的汇总，不是账本），但合并公式保证
// 不会出现负计数或NaN均值
// swagger:model UserProgress
type UserProgress struct {
	BaseModel
	UserID        uint               `gorm:"uniqueIndex;type:bigint unsigned;not null" json:"userId"`
	OverallStats  OverallStats       `gorm:"serializer:json;type:json" json:"overallStats"`
	DailyActivity []DailyActivity    `gorm:"serializer:json;type:json" json:"dailyActivity"`
	SkillProgress []SkillProgress    `gorm:"serializer:json;type:json" json:"skillProgress"`
	Achievements  []AchievementBadge `gorm:"serializer:json;type:json" json:"achievements"`
}

func (UserProgress) TableName() string {
	return "user_progress"
}

// ActivityDelta updateDailyActivity的增量输入。计数器为纯增量；
// AverageScore仅在SessionsCompleted>0时参与按次数加权的均值合并
type ActivityDelta struct {
	Logins            int `json:"logins,omitempty"`
	SessionsCompleted int `json:"sessionsCompleted,omitempty"`
	ItemsAttempted    int `json:"itemsAttempted,omitempty"`
	TimeSpentMinutes  int `json:"timeSpentMinutes,omitempty"`
	AverageScore      int `json:"averageScore,omitempty"`
}

// SkillDelta updateSkillProgress的增量输入。Score为调用方预先
// 算好的合并后分值（通常round(correct/attempted*100)）
type SkillDelta struct {
	Attempted int `json:"attempted"`
	Correct   int `json:"correct"`
	Score     int `json:"score"`
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func (p *UserProgress) dailyBucket(dayKey string) *DailyActivity {
	for i := range p.DailyActivity {
		if p.DailyActivity[i].Date == dayKey {
			return &p.DailyActivity[i]
		}
	}
	p.DailyActivity = append(p.DailyActivity, DailyActivity{Date: dayKey})
	return &p.DailyActivity[len(p.DailyActivity)-1]
}

// ApplyDailyActivity 定位或创建dayKey对应的活动桶并合并增量。
// 当日均分按完成次数加权合并，与调用顺序无关；
// 携带均分但完成次数为零的增量视为非法输入
func (p *UserProgress) ApplyDailyActivity(dayKey string, delta ActivityDelta, now time.Time) error {
	if delta.Logins < 0 || delta.SessionsCompleted < 0 || delta.ItemsAttempted < 0 || delta.TimeSpentMinutes < 0 {
		return util.ErrInvalidParameters
	}
	if delta.AverageScore != 0 && delta.SessionsCompleted <= 0 {
		return util.ErrInvalidParameters
	}

	bucket := p.dailyBucket(dayKey)

	if delta.SessionsCompleted > 0 {
		oldCount := bucket.SessionsCompleted
		newCount := oldCount + delta.SessionsCompleted
		merged := float64(bucket.AverageScore)*float64(oldCount) + float64(delta.AverageScore)*float64(delta.SessionsCompleted)
		bucket.AverageScore = clampScore(int(math.Round(merged / float64(newCount))))
	}

	bucket.Logins += delta.Logins
	bucket.SessionsCompleted += delta.SessionsCompleted
	bucket.ItemsAttempted += delta.ItemsAttempted
	bucket.TimeSpentMinutes += delta.TimeSpentMinutes

	p.OverallStats.LastActivityDate = now
	return nil
}

// ApplySkillProgress 按技能名upsert：次数累加、分值取调用方给定值、
// 等级由阈值推导
func (p *UserProgress) ApplySkillProgress(skill string, delta SkillDelta, now time.Time) error {
	if skill == "" || delta.Attempted < 0 || delta.Correct < 0 {
		return util.ErrInvalidParameters
	}

	var entry *SkillProgress
	for i := range p.SkillProgress {
		if p.SkillProgress[i].Skill == skill {
			entry = &p.SkillProgress[i]
			break
		}
	}
	if entry == nil {
		p.SkillProgress = append(p.SkillProgress, SkillProgress{Skill: skill})
		entry = &p.SkillProgress[len(p.SkillProgress)-1]
	}

	entry.Attempted += delta.Attempted
	entry.Correct += delta.Correct
	entry.Score = clampScore(delta.Score)
	entry.Level = SkillLevelFor(entry.Score)
	entry.LastPracticed = now
	return nil
}

// RecomputeStreak 从今天的日键向前回溯，逐日检查活动桶是否活跃，
// 遇到首个缺失或不活跃的日期即停止。今天不活跃则结果为0，
// 与昨天是否活跃无关。CurrentStreak始终可由DailyActivity重新推导，
// 缓存仅为读性能
func (p *UserProgress) RecomputeStreak(todayKey string) int {
	buckets := make(map[string]*DailyActivity, len(p.DailyActivity))
	for i := range p.DailyActivity {
		buckets[p.DailyActivity[i].Date] = &p.DailyActivity[i]
	}

	streak := 0
	for key := todayKey; ; key = util.PrevDayKey(key) {
		b, ok := buckets[key]
		if !ok || !b.Active() {
			break
		}
		streak++
	}

	p.OverallStats.CurrentStreak = streak
	if streak > p.OverallStats.LongestStreak {
		p.OverallStats.LongestStreak = streak
	}
	return streak
}

// Unlock 成就按ID去重追加；重复解锁为no-op，返回是否新增
func (p *UserProgress) Unlock(badge AchievementBadge, now time.Time) bool {
	for _, a := range p.Achievements {
		if a.ID == badge.ID {
			return false
		}
	}
	badge.UnlockedAt = now
	p.Achievements = append(p.Achievements, badge)
	return true
}

// ApplySessionResult 将一次完成的会话折算进终身统计
func (p *UserProgress) ApplySessionResult(score, attempted, correct, minutes int, now time.Time) {
	s := &p.OverallStats
	oldCount := s.SessionsCompleted
	s.SessionsCompleted++
	s.ItemsAttempted += attempted
	s.ItemsCorrect += correct
	s.TimeSpentMinutes += minutes
	if score > s.BestScore {
		s.BestScore = score
	}
	merged := float64(s.AverageScore)*float64(oldCount) + float64(score)
	s.AverageScore = clampScore(int(math.Round(merged / float64(oldCount+1))))
	s.LastActivityDate = now
}
