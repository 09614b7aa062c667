package service

import (
	"context"
	"errors"
	"interview_prep_backend/internal/model"
	"interview_prep_backend/internal/util"
	"testing"
	"time"
)

type fakeEvaluator struct {
	unconfigured bool
	eval         *TurnEvaluation
	evalErr      error
	summary      *InterviewSummary
	sumErr       error
	evalCalls    int
	sumCalls     int
	lastHistory  []ChatTurn
}

func (f *fakeEvaluator) Configured() bool {
	return !f.unconfigured
}

func (f *fakeEvaluator) EvaluateTurn(ctx context.Context, profile model.InterviewProfile, history []ChatTurn, utterance string) (*TurnEvaluation, error) {
	f.evalCalls++
	f.lastHistory = append([]ChatTurn{}, history...)
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	return f.eval, nil
}

func (f *fakeEvaluator) Summarize(ctx context.Context, profile model.InterviewProfile, history []ChatTurn) (*InterviewSummary, error) {
	f.sumCalls++
	if f.sumErr != nil {
		return nil, f.sumErr
	}
	return f.summary, nil
}

func (f *fakeEvaluator) OpeningQuestion(profile model.InterviewProfile) string {
	return "请先做一个简单的自我介绍。"
}

func newInterviewFixture(t *testing.T, budget int, ai *fakeEvaluator) (*InterviewService, *MemorySessionStore, *fakeSessionStore, *model.PracticeSession) {
	t.Helper()
	memStore := NewMemorySessionStore(time.Hour)
	sessions := newFakeSessionStore()

	session := &model.PracticeSession{
		UserID: 1,
		Kind:   model.KindAIInterview,
		Status: model.StatusInProgress,
		Config: model.SessionConfig{
			Interview: &model.InterviewConfig{
				Profile:        model.InterviewProfile{TargetRole: "后端工程师", Experience: "mid"},
				QuestionBudget: budget,
			},
		},
		Answers: map[int]model.SubmittedAnswer{},
	}
	if err := sessions.Create(session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	svc := NewInterviewService(memStore, ai, sessions, testSessionConfig())
	return svc, memStore, sessions, session
}

func TestInitializeSeedsOpeningQuestion(t *testing.T) {
	ai := &fakeEvaluator{}
	svc, memStore, _, session := newInterviewFixture(t, 3, ai)

	cs, err := svc.Initialize(session)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if len(cs.Turns) != 1 || cs.Turns[0].Role != "assistant" {
		t.Fatalf("turns = %+v, want single assistant turn", cs.Turns)
	}
	if cs.QuestionIndex != 1 || cs.Budget != 3 {
		t.Errorf("cursor/budget = %d/%d, want 1/3", cs.QuestionIndex, cs.Budget)
	}

	ic := session.Config.Interview
	if ic.OpeningQuestion == "" || ic.LastQuestion != ic.OpeningQuestion {
		t.Errorf("shadow copy not seeded: %+v", ic)
	}
	if ic.QuestionsAsked != 1 {
		t.Errorf("QuestionsAsked = %d, want 1", ic.QuestionsAsked)
	}
	if _, ok := memStore.Get(session.ID); !ok {
		t.Error("conversation not stored")
	}
}

func TestProcessTurnAdvancesCursor(t *testing.T) {
	ai := &fakeEvaluator{eval: &TurnEvaluation{
		Analysis:      "回答结构清晰。",
		Communication: 75,
		Technical:     70,
		Behavioral:    65,
		NextQuestion:  "讲讲你最近负责的系统设计。",
	}}
	svc, memStore, _, session := newInterviewFixture(t, 3, ai)
	if _, err := svc.Initialize(session); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	result, err := svc.ProcessTurn(context.Background(), session, "大家好，我叫李雷。")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.IsComplete {
		t.Error("first turn of three must not complete")
	}
	if result.NextQuestion != ai.eval.NextQuestion {
		t.Errorf("NextQuestion = %q", result.NextQuestion)
	}
	if result.QuestionNo != 2 {
		t.Errorf("QuestionNo = %d, want 2", result.QuestionNo)
	}

	ic := session.Config.Interview
	if ic.LastQuestion != ai.eval.NextQuestion || ic.QuestionsAsked != 2 {
		t.Errorf("shadow not advanced: %+v", ic)
	}

	cs, _ := memStore.Get(session.ID)
	if cs.Communication != 75 || cs.Technical != 70 || cs.Behavioral != 65 {
		t.Errorf("scores = %d/%d/%d", cs.Communication, cs.Technical, cs.Behavioral)
	}
}

func TestProcessTurnMaxMergesScores(t *testing.T) {
	ai := &fakeEvaluator{eval: &TurnEvaluation{Communication: 80, Technical: 60, Behavioral: 70, NextQuestion: "q2"}}
	svc, memStore, _, session := newInterviewFixture(t, 5, ai)
	svc.Initialize(session)

	if _, err := svc.ProcessTurn(context.Background(), session, "第一轮回答"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}

	// 第二轮分数更低，max-merge后不回退
	ai.eval = &TurnEvaluation{Communication: 50, Technical: 90, Behavioral: 40, NextQuestion: "q3"}
	if _, err := svc.ProcessTurn(context.Background(), session, "第二轮回答"); err != nil {
		t.Fatalf("turn 2: %v", err)
	}

	cs, _ := memStore.Get(session.ID)
	if cs.Communication != 80 || cs.Technical != 90 || cs.Behavioral != 70 {
		t.Errorf("merged scores = %d/%d/%d, want 80/90/70", cs.Communication, cs.Technical, cs.Behavioral)
	}
}

func TestProcessTurnFallbackOnEvaluatorFailure(t *testing.T) {
	ai := &fakeEvaluator{evalErr: errors.New("malformed model output")}
	svc, _, _, session := newInterviewFixture(t, 3, ai)
	svc.Initialize(session)

	result, err := svc.ProcessTurn(context.Background(), session, "我的回答")
	if err != nil {
		t.Fatalf("evaluator failure must not surface: %v", err)
	}
	if result.Analysis != fallbackAnalysis {
		t.Errorf("Analysis = %q, want canned fallback", result.Analysis)
	}
	if result.NextQuestion == "" {
		t.Error("fallback must still produce a follow-up question")
	}
}

func TestProcessTurnRequiresConfiguredAI(t *testing.T) {
	ai := &fakeEvaluator{unconfigured: true}
	svc, _, _, session := newInterviewFixture(t, 3, ai)
	svc.Initialize(session)

	_, err := svc.ProcessTurn(context.Background(), session, "回答")
	if !errors.Is(err, util.ErrAIServiceUnavailable) {
		t.Errorf("err = %v, want ErrAIServiceUnavailable", err)
	}
}

func TestProcessTurnRejectsEmptyUtterance(t *testing.T) {
	ai := &fakeEvaluator{eval: &TurnEvaluation{NextQuestion: "q"}}
	svc, _, _, session := newInterviewFixture(t, 3, ai)
	svc.Initialize(session)

	if _, err := svc.ProcessTurn(context.Background(), session, ""); !errors.Is(err, util.ErrInvalidParameters) {
		t.Errorf("err = %v, want ErrInvalidParameters", err)
	}
}

func TestEvictionRecoveryReplaysLastQuestion(t *testing.T) {
	ai := &fakeEvaluator{eval: &TurnEvaluation{Communication: 70, Technical: 70, Behavioral: 70, NextQuestion: "数据库索引为什么用B+树？"}}
	svc, memStore, _, session := newInterviewFixture(t, 4, ai)
	svc.Initialize(session)

	if _, err := svc.ProcessTurn(context.Background(), session, "自我介绍"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}

	// 模拟内存态被驱逐
	memStore.Delete(session.ID)

	ai.eval = &TurnEvaluation{Communication: 60, Technical: 60, Behavioral: 60, NextQuestion: "next"}
	result, err := svc.ProcessTurn(context.Background(), session, "因为B+树对范围查询友好。")
	if err != nil {
		t.Fatalf("turn after eviction: %v", err)
	}

	// 恢复协议：重建的上下文里必须补回最近一次提的问题
	foundReplay := false
	for _, turn := range ai.lastHistory {
		if turn.Role == "assistant" && turn.Content == "数据库索引为什么用B+树？" {
			foundReplay = true
		}
	}
	if !foundReplay {
		t.Errorf("rebuilt history missing the replayed question: %+v", ai.lastHistory)
	}

	// 游标从影子副本恢复，不从头重来
	if result.QuestionNo != 3 {
		t.Errorf("QuestionNo = %d, want 3", result.QuestionNo)
	}
}

func TestRecoveryWithoutShadowFails(t *testing.T) {
	ai := &fakeEvaluator{eval: &TurnEvaluation{NextQuestion: "q"}}
	svc, _, sessions, session := newInterviewFixture(t, 3, ai)

	// 未初始化且无影子副本
	fresh, _ := sessions.FindByID(session.ID)
	_, err := svc.resume(fresh)
	if !errors.Is(err, util.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestProcessTurnOnFinishedSession(t *testing.T) {
	ai := &fakeEvaluator{eval: &TurnEvaluation{NextQuestion: "q2"}}
	svc, _, _, session := newInterviewFixture(t, 3, ai)
	svc.Initialize(session)

	session.Status = model.StatusCompleted
	if _, err := svc.ProcessTurn(context.Background(), session, "迟到的回答"); !errors.Is(err, util.ErrSessionNotActive) {
		t.Errorf("err = %v, want ErrSessionNotActive", err)
	}
}

func TestLateShadowWriteSkippedAfterCompletion(t *testing.T) {
	ai := &fakeEvaluator{eval: &TurnEvaluation{Communication: 70, Technical: 70, Behavioral: 70, NextQuestion: "q2"}}
	svc, _, sessions, session := newInterviewFixture(t, 4, ai)
	svc.Initialize(session)

	// 并发完成抢在影子写回之前落库
	now := time.Now()
	sessions.force(session.ID, func(s *model.PracticeSession) {
		s.Status = model.StatusCompleted
		s.Score = 82
		s.CompletedAt = &now
	})

	// 持有过期内存视图的一轮仍可处理，但影子写回必须被放弃
	if _, err := svc.ProcessTurn(context.Background(), session, "回答"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	current, _ := sessions.FindByID(session.ID)
	if current.Status != model.StatusCompleted || current.Score != 82 || current.CompletedAt == nil {
		t.Errorf("terminal fields overwritten: status=%s score=%d completedAt=%v",
			current.Status, current.Score, current.CompletedAt)
	}
	if current.Config.Interview.QuestionsAsked != 1 {
		t.Errorf("QuestionsAsked = %d, want the pre-completion 1", current.Config.Interview.QuestionsAsked)
	}
}

func TestInterviewCompletesAtBudget(t *testing.T) {
	ai := &fakeEvaluator{eval: &TurnEvaluation{Communication: 70, Technical: 70, Behavioral: 70, NextQuestion: "q2"}}
	svc, _, _, session := newInterviewFixture(t, 2, ai)
	svc.Initialize(session)

	first, err := svc.ProcessTurn(context.Background(), session, "第一轮")
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if first.IsComplete {
		t.Error("turn 1 of 2 must not complete")
	}

	second, err := svc.ProcessTurn(context.Background(), session, "第二轮")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if !second.IsComplete {
		t.Error("turn at budget must complete")
	}
	if second.NextQuestion != "" {
		t.Errorf("completed interview must not ask again, got %q", second.NextQuestion)
	}
}

func TestSummarizeEvictsConversation(t *testing.T) {
	ai := &fakeEvaluator{
		eval:    &TurnEvaluation{Communication: 70, Technical: 70, Behavioral: 70, NextQuestion: "q2"},
		summary: &InterviewSummary{Overall: 81, Communication: 78, Technical: 85, Behavioral: 75},
	}
	svc, memStore, _, session := newInterviewFixture(t, 2, ai)
	svc.Initialize(session)
	svc.ProcessTurn(context.Background(), session, "回答")

	summary, err := svc.Summarize(context.Background(), session)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.Overall != 81 {
		t.Errorf("Overall = %d, want 81", summary.Overall)
	}
	if _, ok := memStore.Get(session.ID); ok {
		t.Error("conversation must be evicted after summary")
	}
}

func TestSummarizeFallbackOnAIFailure(t *testing.T) {
	ai := &fakeEvaluator{
		eval:   &TurnEvaluation{Communication: 72, Technical: 68, Behavioral: 64, NextQuestion: "q2"},
		sumErr: errors.New("upstream timeout"),
	}
	svc, _, _, session := newInterviewFixture(t, 3, ai)
	svc.Initialize(session)
	svc.ProcessTurn(context.Background(), session, "回答")

	summary, err := svc.Summarize(context.Background(), session)
	if err != nil {
		t.Fatalf("AI failure must not surface from Summarize: %v", err)
	}
	for name, v := range map[string]int{
		"overall":       summary.Overall,
		"communication": summary.Communication,
		"technical":     summary.Technical,
		"behavioral":    summary.Behavioral,
	} {
		if v < 0 || v > 100 {
			t.Errorf("%s = %d, out of range", name, v)
		}
	}
	if summary.Recommendation == "" {
		t.Error("fallback summary must carry a recommendation")
	}
	if len(summary.Strengths) == 0 || len(summary.Improvements) == 0 {
		t.Error("fallback summary must be plausibly filled in")
	}
}

func TestSummaryClampsModelScores(t *testing.T) {
	ai := &fakeEvaluator{
		summary: &InterviewSummary{Overall: 130, Communication: -5, Technical: 85, Behavioral: 60},
	}
	svc, _, _, session := newInterviewFixture(t, 2, ai)
	svc.Initialize(session)

	summary, err := svc.Summarize(context.Background(), session)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.Overall != 100 {
		t.Errorf("Overall = %d, want clamped 100", summary.Overall)
	}
	if summary.Communication != 0 {
		t.Errorf("Communication = %d, want clamped 0", summary.Communication)
	}
}

func TestMemorySessionStoreCloseIdempotent(t *testing.T) {
	store := NewMemorySessionStore(time.Hour)
	store.Set(&ConversationalSession{SessionID: "s1"})

	store.Close()
	store.Close()

	if _, ok := store.Get("s1"); !ok {
		t.Error("store must stay readable after Close")
	}
}

func TestMergeScoresNeverDecreases(t *testing.T) {
	cs := &ConversationalSession{}
	cs.MergeScores(50, 60, 70)
	cs.MergeScores(40, 80, 70)
	cs.MergeScores(55, 10, 90)

	if cs.Communication != 55 || cs.Technical != 80 || cs.Behavioral != 90 {
		t.Errorf("merged = %d/%d/%d, want 55/80/90", cs.Communication, cs.Technical, cs.Behavioral)
	}
}
