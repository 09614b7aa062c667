package model

import (
	"math"
	"time"
)

type SessionKind string

const (
	KindQuiz        SessionKind = "quiz"         // 快速测验（选择题，首次提交生效）
	KindCoding      SessionKind = "coding"       // 编程练习（完成前允许修改答案）
	KindAIInterview SessionKind = "ai_interview" // AI结构化面试
)

type SessionStatus string

const (
	StatusCreated    SessionStatus = "created"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusAbandoned  SessionStatus = "abandoned"
)

// NonTerminalStatuses 完成操作的CAS条件集合
var NonTerminalStatuses = []SessionStatus{StatusCreated, StatusInProgress}

// QuizConfig 测验类会话的配置。OpenCount大于零时额外混入
// 开放题，由AI按评分准则判分
type QuizConfig struct {
	Categories []string `json:"categories"`
	Count      int      `json:"count"`
	OpenCount  int      `json:"openCount,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
	TimeLimit  int      `json:"timeLimitMinutes,omitempty"`
}

// CodingConfig 编程类会话的配置
type CodingConfig struct {
	Categories []string `json:"categories"`
	Count      int      `json:"count"`
	Language   string   `json:"language"`
	LanguageID int      `json:"languageId"`
}

// InterviewProfile 面试画像，决定AI面试官的提问方向
type InterviewProfile struct {
	TargetRole string   `json:"targetRole"`
	Experience string   `json:"experience"`
	Focus      []string `json:"focus,omitempty"`
}

// InterviewConfig AI面试会话的配置，同时充当会话状态丢失后的
// 持久影子副本：开场问题和最近一次提问随轮次写回
type InterviewConfig struct {
	Profile         InterviewProfile `json:"profile"`
	QuestionBudget  int              `json:"questionBudget"`
	OpeningQuestion string           `json:"openingQuestion,omitempty"`
	LastQuestion    string           `json:"lastQuestion,omitempty"`
	QuestionsAsked  int              `json:"questionsAsked,omitempty"`
}

// SessionConfig 按会话类型封闭的配置变体，仅设置与Kind对应的字段
type SessionConfig struct {
	Quiz      *QuizConfig      `json:"quiz,omitempty"`
	Coding    *CodingConfig    `json:"coding,omitempty"`
	Interview *InterviewConfig `json:"interview,omitempty"`
}

// SubmittedAnswer 某题目下标的最近一次作答，重复提交按会话类型
// 决定覆盖或保留首次结果
type SubmittedAnswer struct {
	SelectedOption int       `json:"selectedOption,omitempty"`
	Code           string    `json:"code,omitempty"`
	Text           string    `json:"text,omitempty"`
	IsCorrect      bool      `json:"isCorrect"`
	Graded         bool      `json:"graded"`
	Feedback       string    `json:"feedback,omitempty"` // 开放题的AI评语
	PassedCases    int       `json:"passedCases,omitempty"`
	TotalCases     int       `json:"totalCases,omitempty"`
	TimeSpentSec   int       `json:"timeSpentSec,omitempty"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// swagger:model PracticeSession
type PracticeSession struct {
	UUIDBase
	UserID      uint                    `gorm:"index;type:bigint unsigned;not null" json:"userId"`
	Kind        SessionKind             `gorm:"size:30;not null;index" json:"kind"`
	Status      SessionStatus           `gorm:"size:20;not null;default:'created';index" json:"status"`
	Items       []SessionItem           `gorm:"serializer:json;type:json" json:"-"`
	Answers     map[int]SubmittedAnswer `gorm:"serializer:json;type:json" json:"-"`
	Config      SessionConfig           `gorm:"serializer:json;type:json" json:"config"`
	Score       int                     `gorm:"default:0" json:"score"`
	Correct     int                     `gorm:"default:0" json:"correct"`
	CompletedAt *time.Time              `json:"completedAt,omitempty"`
}

func (PracticeSession) TableName() string {
	return "practice_sessions"
}

func (s *PracticeSession) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusAbandoned
}

// OverwriteOnResubmit 重复提交策略：测验类首次提交生效，
// 编程/自由作答类允许在完成前修改
func (s *PracticeSession) OverwriteOnResubmit() bool {
	return s.Kind != KindQuiz
}

// SessionResult 完成操作的评分结果；Idempotent标记该结果来自
// 已完成会话的重复请求
type SessionResult struct {
	SessionID   string     `json:"sessionId"`
	Kind        SessionKind `json:"kind"`
	Score       int        `json:"score"`
	Correct     int        `json:"correct"`
	Total       int        `json:"total"`
	CompletedAt time.Time  `json:"completedAt"`
	Idempotent  bool       `json:"idempotent"`
}

// ComputeScore 依据题目快照和已判分的作答计算百分制得分。
// 纯函数：不修改会话，用于完成前的评分
func (s *PracticeSession) ComputeScore() (score int, correct int) {
	totalPoints := 0
	earned := 0
	for i, item := range s.Items {
		points := item.Points
		if points <= 0 {
			points = 1
		}
		totalPoints += points
		ans, ok := s.Answers[i]
		if !ok || !ans.Graded {
			continue
		}
		if ans.IsCorrect {
			earned += points
			correct++
		}
	}
	if totalPoints == 0 {
		return 0, 0
	}
	return int(math.Round(float64(earned) / float64(totalPoints) * 100)), correct
}

// Result 由已完成会话的持久字段构造结果，不重新评分
func (s *PracticeSession) Result(idempotent bool) *SessionResult {
	completedAt := time.Time{}
	if s.CompletedAt != nil {
		completedAt = *s.CompletedAt
	}
	return &SessionResult{
		SessionID:   s.ID,
		Kind:        s.Kind,
		Score:       s.Score,
		Correct:     s.Correct,
		Total:       len(s.Items),
		CompletedAt: completedAt,
		Idempotent:  idempotent,
	}
}
