package service

import (
	"context"
	"interview_prep_backend/internal/config"
	"interview_prep_backend/internal/model"
	"interview_prep_backend/internal/repository"
	"interview_prep_backend/internal/util"
	"interview_prep_backend/pkg/logger"
	"interview_prep_backend/pkg/monitoring"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// SessionStore 会话持久化的抽象，*repository.SessionRepository为
// 生产实现；CAS语义的并发契约用假实现在测试中验证。
// 终态字段（status/score/completed_at）只经由CompleteConditionally
// 写入，SaveAnswers与UpdateConfig都以非终态为写入条件，保证任何
// 迟到的写回都不能覆盖已完成的会话
type SessionStore interface {
	Create(s *model.PracticeSession) error
	FindByID(id string) (*model.PracticeSession, error)
	SaveAnswers(id string, answers map[int]model.SubmittedAnswer) (bool, error)
	UpdateConfig(id string, cfg model.SessionConfig) (bool, error)
	UpdateStatus(id string, from, to model.SessionStatus) error
	CompleteConditionally(id string, expected []model.SessionStatus, score, correct int, completedAt time.Time) (bool, error)
	AbandonStale(olderThan time.Time) (int64, error)
	ListByUser(userID uint, page, limit int) ([]model.PracticeSession, int64, error)
}

// ItemPool 题库采样抽象
type ItemPool interface {
	Sample(c repository.SampleConstraints) ([]model.Question, error)
}

// CodeRunner 代码判题抽象，生产实现为Judge0客户端
type CodeRunner interface {
	GradeSubmission(ctx context.Context, source string, languageID int, cases []model.TestCase) (passed, total int, err error)
}

// Reconciler 完成后统计落账的抽象。落账失败不回滚完成，
// 由调用方记录并吞掉
type Reconciler interface {
	ReconcileSession(session *model.PracticeSession, result *model.SessionResult) error
}

// InterviewFinisher 面试类会话收尾时的总评来源
type InterviewFinisher interface {
	Summarize(ctx context.Context, session *model.PracticeSession) (*InterviewSummary, error)
}

// RubricGrader 开放题的AI判分协作方，生产实现为AIService
type RubricGrader interface {
	GradeOpenAnswer(ctx context.Context, item *model.SessionItem, answer string) (*OpenGrading, error)
}

type SessionService struct {
	store      SessionStore
	pool       ItemPool
	runner     CodeRunner
	reconciler Reconciler
	finisher   InterviewFinisher
	grader     RubricGrader
	cfg        config.SessionConfig
}

func NewSessionService(store SessionStore, pool ItemPool, runner CodeRunner, reconciler Reconciler, finisher InterviewFinisher, grader RubricGrader, cfg config.SessionConfig) *SessionService {
	return &SessionService{
		store:      store,
		pool:       pool,
		runner:     runner,
		reconciler: reconciler,
		finisher:   finisher,
		grader:     grader,
		cfg:        cfg,
	}
}

// StartSessionRequest 创建会话的入参
type StartSessionRequest struct {
	Kind   model.SessionKind   `json:"kind" binding:"required"`
	Config model.SessionConfig `json:"config"`
}

// Start 创建会话：校验配置变体、抽题建立快照、落库为created态。
// 题量不足直接失败，不创建半配置的会话
func (s *SessionService) Start(userID uint, req *StartSessionRequest) (*model.PracticeSession, error) {
	session := &model.PracticeSession{
		UserID:  userID,
		Kind:    req.Kind,
		Status:  model.StatusCreated,
		Config:  req.Config,
		Answers: map[int]model.SubmittedAnswer{},
	}

	switch req.Kind {
	case model.KindQuiz:
		qc := req.Config.Quiz
		if qc == nil || qc.Count <= 0 || qc.OpenCount < 0 {
			return nil, util.ErrInvalidParameters
		}
		questions, err := s.pool.Sample(repository.SampleConstraints{
			Categories: qc.Categories,
			Count:      qc.Count,
			Difficulty: qc.Difficulty,
			Type:       model.QuestionMultipleChoice,
		})
		if err != nil {
			return nil, err
		}
		if qc.OpenCount > 0 {
			open, err := s.pool.Sample(repository.SampleConstraints{
				Categories: qc.Categories,
				Count:      qc.OpenCount,
				Difficulty: qc.Difficulty,
				Type:       model.QuestionOpen,
			})
			if err != nil {
				return nil, err
			}
			questions = append(questions, open...)
		}
		session.Items = snapshotItems(questions)

	case model.KindCoding:
		cc := req.Config.Coding
		if cc == nil || cc.Count <= 0 || cc.LanguageID <= 0 {
			return nil, util.ErrInvalidParameters
		}
		questions, err := s.pool.Sample(repository.SampleConstraints{
			Categories: cc.Categories,
			Count:      cc.Count,
			Type:       model.QuestionCoding,
		})
		if err != nil {
			return nil, err
		}
		session.Items = snapshotItems(questions)

	case model.KindAIInterview:
		ic := req.Config.Interview
		if ic == nil || ic.Profile.TargetRole == "" {
			return nil, util.ErrInvalidParameters
		}
		if ic.QuestionBudget <= 0 {
			ic.QuestionBudget = s.cfg.InterviewQuestions
		}

	default:
		return nil, util.ErrInvalidParameters
	}

	if err := s.store.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func snapshotItems(questions []model.Question) []model.SessionItem {
	items := make([]model.SessionItem, 0, len(questions))
	for i := range questions {
		items = append(items, model.NewSessionItem(&questions[i]))
	}
	return items
}

// Touch 幂等地把created态会话推进到in_progress。重复调用与
// 已进行中的会话都直接成功；终态会话拒绝
func (s *SessionService) Touch(userID uint, sessionID string) (*model.PracticeSession, error) {
	session, err := s.owned(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsTerminal() {
		return nil, util.ErrSessionNotActive
	}
	if session.Status == model.StatusCreated {
		if err := s.store.UpdateStatus(sessionID, model.StatusCreated, model.StatusInProgress); err != nil {
			return nil, err
		}
		session.Status = model.StatusInProgress
	}
	return session, nil
}

// Abandon 主动放弃会话。已放弃的重复请求直接成功，
// 已完成的会话拒绝
func (s *SessionService) Abandon(userID uint, sessionID string) (*model.PracticeSession, error) {
	session, err := s.owned(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == model.StatusAbandoned {
		return session, nil
	}
	if session.Status == model.StatusCompleted {
		return nil, util.ErrSessionNotActive
	}
	if err := s.store.UpdateStatus(sessionID, session.Status, model.StatusAbandoned); err != nil {
		return nil, err
	}
	session.Status = model.StatusAbandoned
	return session, nil
}

// SubmitAnswerRequest 单题作答入参
type SubmitAnswerRequest struct {
	ItemIndex      int    `json:"itemIndex"`
	SelectedOption int    `json:"selectedOption"`
	Code           string `json:"code"`
	Text           string `json:"text"`
	TimeSpentSec   int    `json:"timeSpentSec"`
}

// SubmitAnswerResult 作答的判分结果。Explanation仅在已判分时
// 回显题目解析，重复提交的测验题同样返回首次结果的解析
type SubmitAnswerResult struct {
	Answer      model.SubmittedAnswer `json:"answer"`
	Explanation string                `json:"explanation,omitempty"`
}

// SubmitAnswer 记录单题作答并就地判分。测验类首次提交生效，
// 已作答的题目重复提交被静默忽略；编程类在完成前允许覆盖。
// 作答的写回以非终态为条件，落败说明会话已被并发完成或放弃
func (s *SessionService) SubmitAnswer(ctx context.Context, userID uint, sessionID string, req *SubmitAnswerRequest) (*SubmitAnswerResult, error) {
	session, err := s.owned(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsTerminal() {
		return nil, util.ErrSessionNotActive
	}
	if req.ItemIndex < 0 || req.ItemIndex >= len(session.Items) {
		return nil, util.ErrInvalidParameters
	}

	item := session.Items[req.ItemIndex]
	if prev, ok := session.Answers[req.ItemIndex]; ok && !session.OverwriteOnResubmit() {
		return answerResult(&item, prev), nil
	}

	answer := model.SubmittedAnswer{
		TimeSpentSec: req.TimeSpentSec,
		SubmittedAt:  time.Now(),
	}

	switch item.Type {
	case model.QuestionMultipleChoice:
		answer.SelectedOption = req.SelectedOption
		answer.IsCorrect = req.SelectedOption == item.Answer
		answer.Graded = true

	case model.QuestionCoding:
		if req.Code == "" {
			return nil, util.ErrInvalidParameters
		}
		answer.Code = req.Code
		languageID := item.LanguageID
		if cc := session.Config.Coding; cc != nil && cc.LanguageID > 0 {
			languageID = cc.LanguageID
		}
		passed, total, err := s.runner.GradeSubmission(ctx, req.Code, languageID, item.TestCases)
		if err != nil {
			return nil, err
		}
		answer.PassedCases = passed
		answer.TotalCases = total
		answer.IsCorrect = total > 0 && passed == total
		answer.Graded = true

	case model.QuestionOpen:
		if req.Text == "" {
			return nil, util.ErrInvalidParameters
		}
		grading, err := s.grader.GradeOpenAnswer(ctx, &item, req.Text)
		if err != nil {
			return nil, err
		}
		answer.Text = req.Text
		answer.IsCorrect = grading.Correct
		answer.Feedback = grading.Feedback
		answer.Graded = true

	default:
		return nil, util.ErrInvalidParameters
	}

	if session.Answers == nil {
		session.Answers = map[int]model.SubmittedAnswer{}
	}
	session.Answers[req.ItemIndex] = answer
	saved, err := s.store.SaveAnswers(session.ID, session.Answers)
	if err != nil {
		return nil, err
	}
	if !saved {
		// 判分窗口内会话进入了终态，作答不得覆盖终态字段
		return nil, util.ErrSessionNotActive
	}
	if session.Status == model.StatusCreated {
		session.Status = model.StatusInProgress
	}
	return answerResult(&item, answer), nil
}

func answerResult(item *model.SessionItem, answer model.SubmittedAnswer) *SubmitAnswerResult {
	result := &SubmitAnswerResult{Answer: answer}
	if answer.Graded {
		result.Explanation = item.Explanation
	}
	return result
}

// Complete 将会话推进到completed终态。评分先于CAS计算，得分与
// 终态在同一条条件更新中写入；CAS落败后重读仲裁：他方已完成则
// 返回其结果并标记幂等，否则报并发冲突
func (s *SessionService) Complete(ctx context.Context, userID uint, sessionID string) (*model.SessionResult, error) {
	session, err := s.owned(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == model.StatusCompleted {
		s.countCompletion(session.Kind, true)
		return session.Result(true), nil
	}
	if session.Status == model.StatusAbandoned {
		return nil, util.ErrSessionNotActive
	}

	if session.Kind == model.KindAIInterview {
		result, _, err := s.finishInterview(ctx, session)
		return result, err
	}

	score, correct := session.ComputeScore()
	return s.completeWithScore(session, score, correct)
}

// FinishInterview 面试会话的收尾：先生成总评、再以总评分走统一的
// CAS完成路径。重复请求返回既有结果且不再生成总评
func (s *SessionService) FinishInterview(ctx context.Context, userID uint, sessionID string) (*model.SessionResult, *InterviewSummary, error) {
	session, err := s.owned(userID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.Status == model.StatusCompleted {
		s.countCompletion(session.Kind, true)
		return session.Result(true), nil, nil
	}
	if session.Status == model.StatusAbandoned {
		return nil, nil, util.ErrSessionNotActive
	}
	if session.Kind != model.KindAIInterview {
		return nil, nil, util.ErrInvalidParameters
	}
	return s.finishInterview(ctx, session)
}

func (s *SessionService) finishInterview(ctx context.Context, session *model.PracticeSession) (*model.SessionResult, *InterviewSummary, error) {
	summary, err := s.finisher.Summarize(ctx, session)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.completeWithScore(session, summary.Overall, 0)
	if err != nil {
		return nil, nil, err
	}
	return result, summary, nil
}

// completeWithScore 评分已定的统一完成路径：CAS写入终态，落败后
// 重读仲裁，胜出后触发统计落账
func (s *SessionService) completeWithScore(session *model.PracticeSession, score, correct int) (*model.SessionResult, error) {
	sessionID := session.ID
	completedAt := time.Now()
	won, err := s.store.CompleteConditionally(sessionID, model.NonTerminalStatuses, score, correct, completedAt)
	if err != nil {
		return nil, err
	}
	if !won {
		// CAS落败：重读判定是真冲突还是重复完成
		current, err := s.store.FindByID(sessionID)
		if err != nil {
			return nil, err
		}
		if current.Status == model.StatusCompleted {
			s.countCompletion(current.Kind, true)
			return current.Result(true), nil
		}
		return nil, util.ErrConcurrentStateConflict
	}

	session.Status = model.StatusCompleted
	session.Score = score
	session.Correct = correct
	session.CompletedAt = &completedAt
	result := session.Result(false)
	s.countCompletion(session.Kind, false)

	// 统计落账失败不影响已完成的会话：记录、计数、吞掉
	if err := s.reconciler.ReconcileSession(session, result); err != nil {
		monitoring.ReconcileFailures.Inc()
		logger.Log.Error("stats reconciliation failed after completion",
			zap.String("sessionId", sessionID),
			zap.Uint("userId", session.UserID),
			zap.Error(err))
	}

	return result, nil
}

// GetResult 查询已完成会话的评分结果
func (s *SessionService) GetResult(userID uint, sessionID string) (*model.SessionResult, error) {
	session, err := s.owned(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.StatusCompleted {
		return nil, util.ErrSessionNotActive
	}
	return session.Result(false), nil
}

// Get 查询会话详情（题目快照含答案，不直接对外暴露）
func (s *SessionService) Get(userID uint, sessionID string) (*model.PracticeSession, error) {
	return s.owned(userID, sessionID)
}

func (s *SessionService) List(userID uint, page, limit int) ([]model.PracticeSession, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.store.ListByUser(userID, page, limit)
}

// SweepAbandoned 后台定时任务：将超时未活动的会话批量置为abandoned
func (s *SessionService) SweepAbandoned() {
	cutoff := time.Now().Add(-time.Duration(s.cfg.AbandonAfterMinutes) * time.Minute)
	n, err := s.store.AbandonStale(cutoff)
	if err != nil {
		logger.Log.Error("failed to sweep stale sessions", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Log.Info("swept stale sessions", zap.Int64("count", n))
	}
}

func (s *SessionService) owned(userID uint, sessionID string) (*model.PracticeSession, error) {
	session, err := s.store.FindByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, util.ErrAccessDenied
	}
	return session, nil
}

func (s *SessionService) countCompletion(kind model.SessionKind, idempotent bool) {
	monitoring.SessionCompletions.WithLabelValues(string(kind), strconv.FormatBool(idempotent)).Inc()
}
