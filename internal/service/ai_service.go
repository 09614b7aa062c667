package service

import (
	"context"
	"encoding/json"
	"fmt"
	"interview_prep_backend/internal/config"
	"interview_prep_backend/internal/model"
	"interview_prep_backend/internal/util"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// TurnEvaluation AI面试官对一轮回答的评估与追问
type TurnEvaluation struct {
	Analysis      string `json:"analysis"`
	Communication int    `json:"communication"`
	Technical     int    `json:"technical"`
	Behavioral    int    `json:"behavioral"`
	NextQuestion  string `json:"next_question"`
}

// InterviewSummary 面试结束时的总评
type InterviewSummary struct {
	Overall        int      `json:"overall"`
	Communication  int      `json:"communication"`
	Technical      int      `json:"technical"`
	Behavioral     int      `json:"behavioral"`
	Strengths      []string `json:"strengths"`
	Improvements   []string `json:"improvements"`
	Recommendation string   `json:"recommendation"` // strong_hire / hire / lean_hire / no_hire
}

// ChatTurn 发往AI的对话轮次
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AIService OpenAI兼容接口的封装，所有调用带限时
type AIService struct {
	mu      sync.RWMutex
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewAIService(cfg config.AIConfig) *AIService {
	s := &AIService{}
	s.ApplyConfig(cfg)
	return s
}

// ApplyConfig 支持配置热更新（密钥/模型切换无需重启）
func (s *AIService) ApplyConfig(cfg config.AIConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.APIKey == "" {
		s.client = nil
		return
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	s.client = openai.NewClientWithConfig(clientCfg)
	s.model = cfg.Model
	s.timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
}

// Configured AI服务是否已配置；未配置属于运维可修复状态，
// 对外表现为独立的service unavailable错误而非通用500
func (s *AIService) Configured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

func (s *AIService) chatJSON(ctx context.Context, system string, turns []ChatTurn, temperature float32) (string, error) {
	s.mu.RLock()
	client, modelName, timeout := s.client, s.model, s.timeout
	s.mu.RUnlock()

	if client == nil {
		return "", util.ErrAIServiceUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    modelName,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", util.ErrUpstreamUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: AI returned no choices", util.ErrUpstreamUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// EvaluateTurn 对考生的一轮回答打分并给出追问。
// 返回错误仅限上游不可用；模型输出不合法时由调用方兜底
func (s *AIService) EvaluateTurn(ctx context.Context, profile model.InterviewProfile, history []ChatTurn, utterance string) (*TurnEvaluation, error) {
	system := buildInterviewerPrompt(profile)
	turns := append(append([]ChatTurn{}, history...), ChatTurn{Role: "user", Content: utterance})

	raw, err := s.chatJSON(ctx, system, turns, 0.3)
	if err != nil {
		return nil, err
	}

	var eval TurnEvaluation
	if err := json.Unmarshal([]byte(extractJSON(raw)), &eval); err != nil {
		return nil, fmt.Errorf("parse turn evaluation: %w (raw: %s)", err, raw)
	}
	if eval.NextQuestion == "" {
		return nil, fmt.Errorf("parse turn evaluation: empty next question (raw: %s)", raw)
	}
	return &eval, nil
}

// Summarize 基于完整对话生成最终总评
func (s *AIService) Summarize(ctx context.Context, profile model.InterviewProfile, history []ChatTurn) (*InterviewSummary, error) {
	system := buildSummaryPrompt(profile)

	raw, err := s.chatJSON(ctx, system, history, 0.1)
	if err != nil {
		return nil, err
	}

	var summary InterviewSummary
	if err := json.Unmarshal([]byte(extractJSON(raw)), &summary); err != nil {
		return nil, fmt.Errorf("parse interview summary: %w (raw: %s)", err, raw)
	}
	return &summary, nil
}

// OpenGrading 开放题的AI判分结果
type OpenGrading struct {
	Correct  bool   `json:"correct"`
	Feedback string `json:"feedback"`
}

// GradeOpenAnswer 按题目的评分准则判定一份开放题作答。
// 上游失败直接返回错误，由调用方决定是否中止提交
func (s *AIService) GradeOpenAnswer(ctx context.Context, item *model.SessionItem, answer string) (*OpenGrading, error) {
	system := buildRubricPrompt(item)
	turns := []ChatTurn{{Role: "user", Content: answer}}

	raw, err := s.chatJSON(ctx, system, turns, 0.1)
	if err != nil {
		return nil, err
	}

	var grading OpenGrading
	if err := json.Unmarshal([]byte(extractJSON(raw)), &grading); err != nil {
		return nil, fmt.Errorf("parse open grading: %w (raw: %s)", err, raw)
	}
	return &grading, nil
}

// OpeningQuestion 依据面试画像生成开场问题；AI不可用时使用固定开场白
func (s *AIService) OpeningQuestion(profile model.InterviewProfile) string {
	role := profile.TargetRole
	if role == "" {
		role = "软件工程师"
	}
	return fmt.Sprintf("请先做一个简短的自我介绍，并谈谈你申请%s岗位最相关的一段项目经历。", role)
}

func buildInterviewerPrompt(profile model.InterviewProfile) string {
	var sb strings.Builder
	sb.WriteString("你是一位资深的技术面试官，正在进行结构化模拟面试。\n")
	sb.WriteString(fmt.Sprintf("候选人目标岗位：%s；经验级别：%s。\n", profile.TargetRole, profile.Experience))
	if len(profile.Focus) > 0 {
		sb.WriteString("重点考察方向：" + strings.Join(profile.Focus, "、") + "。\n")
	}
	sb.WriteString("\n针对候选人的最新回答：\n")
	sb.WriteString("1. 简要点评回答质量（analysis）。\n")
	sb.WriteString("2. 分别给沟通、技术、行为三个维度打0-100分。\n")
	sb.WriteString("3. 提出下一个面试问题（next_question），循序渐进、不要重复已问过的问题。\n")
	sb.WriteString("\n只输出JSON对象：\n")
	sb.WriteString(`{"analysis": "...", "communication": 0, "technical": 0, "behavioral": 0, "next_question": "..."}`)
	return sb.String()
}

func buildSummaryPrompt(profile model.InterviewProfile) string {
	var sb strings.Builder
	sb.WriteString("你是一位资深的技术面试官，请复盘以下完整面试对话并给出最终评价。\n")
	sb.WriteString(fmt.Sprintf("候选人目标岗位：%s；经验级别：%s。\n", profile.TargetRole, profile.Experience))
	sb.WriteString("\n只输出JSON对象：\n")
	sb.WriteString(`{"overall": 0, "communication": 0, "technical": 0, "behavioral": 0, "strengths": ["..."], "improvements": ["..."], "recommendation": "strong_hire|hire|lean_hire|no_hire"}`)
	return sb.String()
}

func buildRubricPrompt(item *model.SessionItem) string {
	var sb strings.Builder
	sb.WriteString("你是一位严格但公正的技术面试评卷人，请按评分准则判定候选人的作答。\n")
	sb.WriteString("题目：" + item.Content + "\n")
	if item.Rubric != "" {
		sb.WriteString("评分准则：" + item.Rubric + "\n")
	}
	sb.WriteString("\n作答达到准则要求时correct为true，并给出一两句中文评语（feedback）。\n")
	sb.WriteString("只输出JSON对象：\n")
	sb.WriteString(`{"correct": true, "feedback": "..."}`)
	return sb.String()
}

// extractJSON 模型偶尔会在JSON外包裹代码块标记或说明文字，
// 截取首个花括号到最后一个花括号之间的内容再解析
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
