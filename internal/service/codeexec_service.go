package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"interview_prep_backend/internal/config"
	"interview_prep_backend/internal/model"
	"interview_prep_backend/internal/util"
	"io"
	"net/http"
	"strings"
	"time"
)

// ExecutionResult 一次沙箱执行的结果。非success的终态（答案错误、
// 运行时错误、编译失败）是普通结果而非错误
type ExecutionResult struct {
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compileOutput"`
	StatusID      int    `json:"statusId"`
	Status        string `json:"status"`
	TimeSeconds   string `json:"time"`
}

// Accepted Judge0 status 3 = Accepted
func (r *ExecutionResult) Accepted() bool {
	return r.StatusID == 3
}

// CodeExecService Judge0代码沙箱客户端
type CodeExecService struct {
	cfg    config.Judge0Config
	client *http.Client
}

func NewCodeExecService(cfg config.Judge0Config) *CodeExecService {
	return &CodeExecService{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type judge0Submission struct {
	SourceCode     string `json:"source_code"`
	LanguageID     int    `json:"language_id"`
	Stdin          string `json:"stdin,omitempty"`
	ExpectedOutput string `json:"expected_output,omitempty"`
}

type judge0Response struct {
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
	Time          string `json:"time"`
	Status        struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
}

func decodeB64(s string) string {
	if s == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}
	return string(decoded)
}

// Execute 同步执行一段代码。超时或网络故障返回可重试的
// upstream错误，不让会话悬在不确定状态
func (s *CodeExecService) Execute(ctx context.Context, source string, languageID int, stdin, expected string) (*ExecutionResult, error) {
	sub := judge0Submission{
		SourceCode:     base64.StdEncoding.EncodeToString([]byte(source)),
		LanguageID:     languageID,
		Stdin:          base64.StdEncoding.EncodeToString([]byte(stdin)),
		ExpectedOutput: base64.StdEncoding.EncodeToString([]byte(expected)),
	}
	jsonData, err := json.Marshal(sub)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(s.cfg.URL, "/") + "/submissions?base64_encoded=true&wait=true"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("X-RapidAPI-Key", s.cfg.APIKey)
	}
	if s.cfg.Host != "" {
		req.Header.Set("X-RapidAPI-Host", s.cfg.Host)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: judge0 status %d: %s", util.ErrUpstreamUnavailable, resp.StatusCode, string(body))
	}

	var j0 judge0Response
	if err := json.Unmarshal(body, &j0); err != nil {
		return nil, fmt.Errorf("%w: decode judge0 response: %v", util.ErrUpstreamUnavailable, err)
	}

	return &ExecutionResult{
		Stdout:        decodeB64(j0.Stdout),
		Stderr:        decodeB64(j0.Stderr),
		CompileOutput: decodeB64(j0.CompileOutput),
		StatusID:      j0.Status.ID,
		Status:        j0.Status.Description,
		TimeSeconds:   j0.Time,
	}, nil
}

// GradeSubmission 逐用例执行并统计通过数。任一用例的上游故障
// 直接上抛（可重试），不把部分结果当作判分依据
func (s *CodeExecService) GradeSubmission(ctx context.Context, source string, languageID int, cases []model.TestCase) (passed, total int, err error) {
	total = len(cases)
	for _, tc := range cases {
		result, err := s.Execute(ctx, source, languageID, tc.Input, tc.Expected)
		if err != nil {
			return 0, total, err
		}
		if result.Accepted() {
			passed++
		}
	}
	return passed, total, nil
}
