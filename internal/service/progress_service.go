package service

import (
	"context"
	"encoding/json"
	"fmt"
	"interview_prep_backend/internal/model"
	"interview_prep_backend/internal/util"
	"interview_prep_backend/pkg/logger"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ProgressRecords 进度记录的持久化抽象，生产实现为
// *repository.ProgressRepository
type ProgressRecords interface {
	GetOrCreate(userID uint) (*model.UserProgress, error)
	Save(p *model.UserProgress) error
}

// UserCounters 用户表上的汇总计数器
type UserCounters interface {
	IncrementSessions(userID uint) error
	FindTopBySessions(limit int) ([]model.User, error)
}

const (
	loginDayKeyFmt    = "progress:login:%d:%s"
	summaryKeyFmt     = "progress:summary:%d"
	leaderboardKey    = "progress:leaderboard"
	summaryCacheTTL   = 10 * time.Minute
	leaderboardTTL    = time.Minute
	loginDedupeWindow = 48 * time.Hour
)

type ProgressService struct {
	records ProgressRecords
	users   UserCounters
	cache   *redis.Client // 可为nil，降级为直读数据库
}

func NewProgressService(records ProgressRecords, users UserCounters, cache *redis.Client) *ProgressService {
	return &ProgressService{records: records, users: users, cache: cache}
}

func (s *ProgressService) GetUserProgress(userID uint) (*model.UserProgress, error) {
	return s.records.GetOrCreate(userID)
}

// UpdateDailyActivity 合并一条当日活动增量并重算连续天数
func (s *ProgressService) UpdateDailyActivity(userID uint, delta model.ActivityDelta) (*model.UserProgress, error) {
	now := time.Now()
	p, err := s.records.GetOrCreate(userID)
	if err != nil {
		return nil, err
	}
	if err := p.ApplyDailyActivity(util.ToUTCDayKey(now), delta, now); err != nil {
		return nil, err
	}
	p.RecomputeStreak(util.ToUTCDayKey(now))
	if err := s.records.Save(p); err != nil {
		return nil, err
	}
	s.invalidateSummary(userID)
	return p, nil
}

// UpdateSkillProgress 合并一条技能增量；合并后的分值由累计
// 正确率推导
func (s *ProgressService) UpdateSkillProgress(userID uint, skill string, attempted, correct int) (*model.UserProgress, error) {
	now := time.Now()
	p, err := s.records.GetOrCreate(userID)
	if err != nil {
		return nil, err
	}
	if err := applySkill(p, skill, attempted, correct, now); err != nil {
		return nil, err
	}
	if err := s.records.Save(p); err != nil {
		return nil, err
	}
	s.invalidateSummary(userID)
	return p, nil
}

// UnlockAchievement 解锁成就，重复解锁为no-op
func (s *ProgressService) UnlockAchievement(userID uint, badge model.AchievementBadge) (bool, error) {
	p, err := s.records.GetOrCreate(userID)
	if err != nil {
		return false, err
	}
	if !p.Unlock(badge, time.Now()) {
		return false, nil
	}
	if err := s.records.Save(p); err != nil {
		return false, err
	}
	s.invalidateSummary(userID)
	return true, nil
}

// RecordLogin 记录一次登录活动。Redis按UTC日键去重，同一天的
// 重复登录不再触发进度写入；Redis不可用时退化为每次都写
func (s *ProgressService) RecordLogin(ctx context.Context, userID uint) error {
	dayKey := util.ToUTCDayKey(time.Now())
	if s.cache != nil {
		key := fmt.Sprintf(loginDayKeyFmt, userID, dayKey)
		first, err := s.cache.SetNX(ctx, key, 1, loginDedupeWindow).Result()
		if err != nil {
			logger.Log.Warn("login dedupe cache unavailable", zap.Error(err))
		} else if !first {
			return nil
		}
	}
	_, err := s.UpdateDailyActivity(userID, model.ActivityDelta{Logins: 1})
	return err
}

// ReconcileSession 会话完成后的统计落账，固定顺序执行：
// 当日活动、技能、连续天数、成就、终身统计，最后写回并刷新
// 用户侧计数。任一步失败即返回错误，由完成路径记录并吞掉
func (s *ProgressService) ReconcileSession(session *model.PracticeSession, result *model.SessionResult) error {
	now := time.Now()
	todayKey := util.ToUTCDayKey(now)
	attempted, correct, minutes := sessionEffort(session, result)

	p, err := s.records.GetOrCreate(session.UserID)
	if err != nil {
		return fmt.Errorf("加载进度记录失败: %w", err)
	}

	if err := p.ApplyDailyActivity(todayKey, model.ActivityDelta{
		SessionsCompleted: 1,
		ItemsAttempted:    attempted,
		TimeSpentMinutes:  minutes,
		AverageScore:      result.Score,
	}, now); err != nil {
		return fmt.Errorf("合并当日活动失败: %w", err)
	}

	for skill, eff := range skillEffort(session) {
		if err := applySkill(p, skill, eff.attempted, eff.correct, now); err != nil {
			return fmt.Errorf("合并技能统计失败: %w", err)
		}
	}

	p.RecomputeStreak(todayKey)
	p.ApplySessionResult(result.Score, attempted, correct, minutes, now)

	for _, badge := range earnedBadges(p, session, result) {
		p.Unlock(badge, now)
	}

	if err := s.records.Save(p); err != nil {
		return fmt.Errorf("写回进度记录失败: %w", err)
	}

	if err := s.users.IncrementSessions(session.UserID); err != nil {
		return fmt.Errorf("累加用户会话计数失败: %w", err)
	}

	s.invalidateSummary(session.UserID)
	return nil
}

// Leaderboard 按完成会话数的排行榜，Redis短TTL缓存
func (s *ProgressService) Leaderboard(ctx context.Context, limit int) ([]model.User, error) {
	if limit < 1 || limit > 100 {
		limit = 10
	}
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, leaderboardKey).Result(); err == nil {
			var users []model.User
			if json.Unmarshal([]byte(raw), &users) == nil && len(users) >= limit {
				return users[:limit], nil
			}
		}
	}

	users, err := s.users.FindTopBySessions(limit)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if raw, err := json.Marshal(users); err == nil {
			s.cache.Set(ctx, leaderboardKey, raw, leaderboardTTL)
		}
	}
	return users, nil
}

// Summary 读取用户终身统计的缓存投影
func (s *ProgressService) Summary(ctx context.Context, userID uint) (*model.OverallStats, error) {
	key := fmt.Sprintf(summaryKeyFmt, userID)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Result(); err == nil {
			var stats model.OverallStats
			if json.Unmarshal([]byte(raw), &stats) == nil {
				return &stats, nil
			}
		}
	}

	p, err := s.records.GetOrCreate(userID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if raw, err := json.Marshal(p.OverallStats); err == nil {
			s.cache.Set(ctx, key, raw, summaryCacheTTL)
		}
	}
	return &p.OverallStats, nil
}

func (s *ProgressService) invalidateSummary(userID uint) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.cache.Del(ctx, fmt.Sprintf(summaryKeyFmt, userID), leaderboardKey)
}

// applySkill 技能增量合并：分值取合并后的累计正确率
func applySkill(p *model.UserProgress, skill string, attempted, correct int, now time.Time) error {
	base := 0
	baseCorrect := 0
	for i := range p.SkillProgress {
		if p.SkillProgress[i].Skill == skill {
			base = p.SkillProgress[i].Attempted
			baseCorrect = p.SkillProgress[i].Correct
			break
		}
	}
	score := 0
	if base+attempted > 0 {
		score = int(math.Round(float64(baseCorrect+correct) / float64(base+attempted) * 100))
	}
	return p.ApplySkillProgress(skill, model.SkillDelta{
		Attempted: attempted,
		Correct:   correct,
		Score:     score,
	}, now)
}

type effort struct {
	attempted int
	correct   int
}

// sessionEffort 由会话推导本次的做题量、对题数与耗时（分钟）。
// 面试会话没有题目快照，按问答轮数折算
func sessionEffort(session *model.PracticeSession, result *model.SessionResult) (attempted, correct, minutes int) {
	if session.Kind == model.KindAIInterview {
		if ic := session.Config.Interview; ic != nil {
			attempted = ic.QuestionsAsked
		}
		return attempted, 0, 0
	}

	seconds := 0
	for _, ans := range session.Answers {
		seconds += ans.TimeSpentSec
	}
	return len(session.Answers), result.Correct, seconds / 60
}

// skillEffort 按题目快照的分类聚合本次的做题量与对题数；
// 面试会话归入画像目标岗位对应的单一技能
func skillEffort(session *model.PracticeSession) map[string]effort {
	out := map[string]effort{}
	if session.Kind == model.KindAIInterview {
		if ic := session.Config.Interview; ic != nil && ic.QuestionsAsked > 0 {
			out["interview"] = effort{attempted: ic.QuestionsAsked}
		}
		return out
	}

	for i, ans := range session.Answers {
		if i < 0 || i >= len(session.Items) {
			continue
		}
		category := session.Items[i].Category
		if category == "" {
			continue
		}
		e := out[category]
		e.attempted++
		if ans.Graded && ans.IsCorrect {
			e.correct++
		}
		out[category] = e
	}
	return out
}

// earnedBadges 根据落账后的进度判定本次新达成的成就
func earnedBadges(p *model.UserProgress, session *model.PracticeSession, result *model.SessionResult) []model.AchievementBadge {
	var badges []model.AchievementBadge
	add := func(id, name, icon string) {
		badges = append(badges, model.AchievementBadge{ID: id, Name: name, Icon: icon})
	}

	if p.OverallStats.SessionsCompleted >= 1 {
		add("first_session", "初出茅庐", "🎯")
	}
	if p.OverallStats.SessionsCompleted >= 10 {
		add("sessions_10", "渐入佳境", "🔥")
	}
	if p.OverallStats.SessionsCompleted >= 50 {
		add("sessions_50", "身经百战", "🏆")
	}
	if result.Score >= 100 {
		add("perfect_score", "满分答卷", "💯")
	}
	if session.Kind == model.KindAIInterview {
		add("first_interview", "面试初体验", "🎤")
	}
	if p.OverallStats.CurrentStreak >= 7 {
		add("streak_7", "七日坚持", "📅")
	}
	if p.OverallStats.CurrentStreak >= 30 {
		add("streak_30", "月度恒心", "🌙")
	}
	return badges
}
