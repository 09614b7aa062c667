package service

import (
	"context"
	"errors"
	"interview_prep_backend/internal/model"
	"interview_prep_backend/internal/util"
	"testing"
	"time"
)

type fakeProgressRecords struct {
	records map[uint]*model.UserProgress
	saveErr error
	saves   int
}

func newFakeProgressRecords() *fakeProgressRecords {
	return &fakeProgressRecords{records: map[uint]*model.UserProgress{}}
}

func (f *fakeProgressRecords) GetOrCreate(userID uint) (*model.UserProgress, error) {
	if p, ok := f.records[userID]; ok {
		return p, nil
	}
	p := &model.UserProgress{UserID: userID}
	f.records[userID] = p
	return p, nil
}

func (f *fakeProgressRecords) Save(p *model.UserProgress) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.records[p.UserID] = p
	return nil
}

type fakeUserCounters struct {
	increments map[uint]int
	top        []model.User
	err        error
}

func newFakeUserCounters() *fakeUserCounters {
	return &fakeUserCounters{increments: map[uint]int{}}
}

func (f *fakeUserCounters) IncrementSessions(userID uint) error {
	if f.err != nil {
		return f.err
	}
	f.increments[userID]++
	return nil
}

func (f *fakeUserCounters) FindTopBySessions(limit int) ([]model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.top) > limit {
		return f.top[:limit], nil
	}
	return f.top, nil
}

func completedQuizSession(userID uint) (*model.PracticeSession, *model.SessionResult) {
	now := time.Now()
	session := &model.PracticeSession{
		UserID: userID,
		Kind:   model.KindQuiz,
		Status: model.StatusCompleted,
		Items: []model.SessionItem{
			{QuestionID: 1, Type: model.QuestionMultipleChoice, Category: "algorithms", Points: 1},
			{QuestionID: 2, Type: model.QuestionMultipleChoice, Category: "algorithms", Points: 1},
			{QuestionID: 3, Type: model.QuestionMultipleChoice, Category: "sql", Points: 1},
		},
		Answers: map[int]model.SubmittedAnswer{
			0: {IsCorrect: true, Graded: true, TimeSpentSec: 90},
			1: {IsCorrect: false, Graded: true, TimeSpentSec: 60},
			2: {IsCorrect: true, Graded: true, TimeSpentSec: 150},
		},
		Score:       67,
		Correct:     2,
		CompletedAt: &now,
	}
	session.ID = "session-quiz-1"
	return session, session.Result(false)
}

func TestReconcileSessionRollsUpEverything(t *testing.T) {
	records := newFakeProgressRecords()
	users := newFakeUserCounters()
	svc := NewProgressService(records, users, nil)

	session, result := completedQuizSession(7)
	if err := svc.ReconcileSession(session, result); err != nil {
		t.Fatalf("ReconcileSession: %v", err)
	}

	p := records.records[7]
	today := util.ToUTCDayKey(time.Now())

	// 当日活动桶
	if len(p.DailyActivity) != 1 || p.DailyActivity[0].Date != today {
		t.Fatalf("daily buckets = %+v", p.DailyActivity)
	}
	b := p.DailyActivity[0]
	if b.SessionsCompleted != 1 || b.ItemsAttempted != 3 || b.AverageScore != 67 {
		t.Errorf("bucket = %+v", b)
	}
	if b.TimeSpentMinutes != 5 {
		t.Errorf("TimeSpentMinutes = %d, want 5", b.TimeSpentMinutes)
	}

	// 技能按分类聚合
	skills := map[string]model.SkillProgress{}
	for _, s := range p.SkillProgress {
		skills[s.Skill] = s
	}
	if algo := skills["algorithms"]; algo.Attempted != 2 || algo.Correct != 1 || algo.Score != 50 {
		t.Errorf("algorithms = %+v", algo)
	}
	if sql := skills["sql"]; sql.Attempted != 1 || sql.Correct != 1 || sql.Score != 100 {
		t.Errorf("sql = %+v", sql)
	}

	// 连续天数与终身统计
	if p.OverallStats.CurrentStreak != 1 {
		t.Errorf("CurrentStreak = %d, want 1", p.OverallStats.CurrentStreak)
	}
	if p.OverallStats.SessionsCompleted != 1 || p.OverallStats.BestScore != 67 {
		t.Errorf("overall = %+v", p.OverallStats)
	}

	// 首次完成的成就
	hasFirst := false
	for _, a := range p.Achievements {
		if a.ID == "first_session" {
			hasFirst = true
		}
	}
	if !hasFirst {
		t.Errorf("achievements = %+v, want first_session", p.Achievements)
	}

	if users.increments[7] != 1 {
		t.Errorf("user session counter = %d, want 1", users.increments[7])
	}
}

func TestReconcileSessionPerfectScoreBadge(t *testing.T) {
	records := newFakeProgressRecords()
	svc := NewProgressService(records, newFakeUserCounters(), nil)

	session, result := completedQuizSession(1)
	session.Score = 100
	result.Score = 100

	if err := svc.ReconcileSession(session, result); err != nil {
		t.Fatalf("ReconcileSession: %v", err)
	}

	found := false
	for _, a := range records.records[1].Achievements {
		if a.ID == "perfect_score" {
			found = true
		}
	}
	if !found {
		t.Error("perfect score badge not unlocked")
	}
}

func TestReconcileSessionAchievementsDeduplicated(t *testing.T) {
	records := newFakeProgressRecords()
	svc := NewProgressService(records, newFakeUserCounters(), nil)

	session, result := completedQuizSession(1)
	if err := svc.ReconcileSession(session, result); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := svc.ReconcileSession(session, result); err != nil {
		t.Fatalf("second: %v", err)
	}

	count := 0
	for _, a := range records.records[1].Achievements {
		if a.ID == "first_session" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("first_session unlocked %d times, want 1", count)
	}
}

func TestReconcileSessionInterviewEffort(t *testing.T) {
	records := newFakeProgressRecords()
	svc := NewProgressService(records, newFakeUserCounters(), nil)

	now := time.Now()
	session := &model.PracticeSession{
		UserID: 3,
		Kind:   model.KindAIInterview,
		Status: model.StatusCompleted,
		Config: model.SessionConfig{
			Interview: &model.InterviewConfig{
				Profile:        model.InterviewProfile{TargetRole: "后端工程师"},
				QuestionBudget: 4,
				QuestionsAsked: 4,
			},
		},
		Score:       78,
		CompletedAt: &now,
	}
	session.ID = "session-interview-1"

	if err := svc.ReconcileSession(session, session.Result(false)); err != nil {
		t.Fatalf("ReconcileSession: %v", err)
	}

	p := records.records[3]
	if p.DailyActivity[0].ItemsAttempted != 4 {
		t.Errorf("ItemsAttempted = %d, want 4 (question rounds)", p.DailyActivity[0].ItemsAttempted)
	}

	hasInterviewBadge := false
	hasInterviewSkill := false
	for _, a := range p.Achievements {
		if a.ID == "first_interview" {
			hasInterviewBadge = true
		}
	}
	for _, s := range p.SkillProgress {
		if s.Skill == "interview" && s.Attempted == 4 {
			hasInterviewSkill = true
		}
	}
	if !hasInterviewBadge {
		t.Error("first_interview badge not unlocked")
	}
	if !hasInterviewSkill {
		t.Errorf("interview skill not aggregated: %+v", p.SkillProgress)
	}
}

func TestReconcileSessionSaveFailurePropagates(t *testing.T) {
	records := newFakeProgressRecords()
	records.saveErr = errors.New("disk full")
	svc := NewProgressService(records, newFakeUserCounters(), nil)

	session, result := completedQuizSession(1)
	if err := svc.ReconcileSession(session, result); err == nil {
		t.Error("save failure must propagate to the caller")
	}
}

func TestRecordLoginWithoutCache(t *testing.T) {
	records := newFakeProgressRecords()
	svc := NewProgressService(records, newFakeUserCounters(), nil)

	if err := svc.RecordLogin(context.Background(), 5); err != nil {
		t.Fatalf("RecordLogin: %v", err)
	}

	p := records.records[5]
	if len(p.DailyActivity) != 1 || p.DailyActivity[0].Logins != 1 {
		t.Errorf("daily activity = %+v", p.DailyActivity)
	}
	if p.OverallStats.CurrentStreak != 1 {
		t.Errorf("CurrentStreak = %d, want 1", p.OverallStats.CurrentStreak)
	}
}

func TestUpdateDailyActivityRejectsInvalidDelta(t *testing.T) {
	svc := NewProgressService(newFakeProgressRecords(), newFakeUserCounters(), nil)

	_, err := svc.UpdateDailyActivity(1, model.ActivityDelta{AverageScore: 90})
	if !errors.Is(err, util.ErrInvalidParameters) {
		t.Errorf("err = %v, want ErrInvalidParameters", err)
	}
}

func TestLeaderboardWithoutCache(t *testing.T) {
	users := newFakeUserCounters()
	for i := 0; i < 3; i++ {
		u := model.User{Name: "用户", SessionsTotal: 30 - i}
		u.ID = uint(i + 1)
		users.top = append(users.top, u)
	}
	svc := NewProgressService(newFakeProgressRecords(), users, nil)

	got, err := svc.Leaderboard(context.Background(), 2)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
	if got[0].SessionsTotal != 30 {
		t.Errorf("top entry = %+v", got[0])
	}
}

func TestSummaryWithoutCache(t *testing.T) {
	records := newFakeProgressRecords()
	svc := NewProgressService(records, newFakeUserCounters(), nil)

	p, _ := records.GetOrCreate(9)
	p.ApplySessionResult(75, 5, 4, 10, time.Now())

	stats, err := svc.Summary(context.Background(), 9)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if stats.SessionsCompleted != 1 || stats.AverageScore != 75 {
		t.Errorf("stats = %+v", stats)
	}
}
