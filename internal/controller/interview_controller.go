package controller

import (
	"interview_prep_backend/internal/model"
	"interview_prep_backend/internal/service"
	"interview_prep_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type InterviewController struct {
	InterviewService *service.InterviewService
	SessionService   *service.SessionService
}

func NewInterviewController(interviewService *service.InterviewService, sessionService *service.SessionService) *InterviewController {
	return &InterviewController{
		InterviewService: interviewService,
		SessionService:   sessionService,
	}
}

// interviewSession 加载会话并校验类型与状态
func (c *InterviewController) interviewSession(ctx *gin.Context) (*model.PracticeSession, bool) {
	claims := util.GetUserFromContext(ctx)
	session, err := c.SessionService.Get(claims.UserID, ctx.Param("id"))
	if err != nil {
		util.DomainError(ctx, err)
		return nil, false
	}
	if session.Kind != model.KindAIInterview {
		util.BadRequest(ctx, "该会话不是AI面试")
		return nil, false
	}
	return session, true
}

// Open godoc
// @Summary 进入面试
// @Description 返回当前待回答的问题；首次进入时生成开场问题
// @Tags AI面试
// @Produce  json
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=service.TurnResult}
// @Failure 503 {object} util.Response "AI服务未配置"
// @Router /api/sessions/{id}/interview [get]
func (c *InterviewController) Open(ctx *gin.Context) {
	session, ok := c.interviewSession(ctx)
	if !ok {
		return
	}
	if session.IsTerminal() {
		util.DomainError(ctx, util.ErrSessionNotActive)
		return
	}

	result, err := c.InterviewService.Resume(session)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// TurnRequest 一轮面试回答
// swagger:model TurnRequest
type TurnRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// SubmitTurn godoc
// @Summary 提交一轮回答
// @Description 评估回答并返回点评与下一个问题
// @Tags AI面试
// @Accept  json
// @Produce  json
// @Param   id path string true "会话ID"
// @Param   body body TurnRequest true "回答内容"
// @Success 200 {object} util.Response{data=service.TurnResult}
// @Failure 409 {object} util.Response "会话已结束"
// @Failure 503 {object} util.Response "AI服务未配置"
// @Router /api/sessions/{id}/interview/turns [post]
func (c *InterviewController) SubmitTurn(ctx *gin.Context) {
	session, ok := c.interviewSession(ctx)
	if !ok {
		return
	}
	if session.IsTerminal() {
		util.DomainError(ctx, util.ErrSessionNotActive)
		return
	}

	var req TurnRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.InterviewService.ProcessTurn(ctx.Request.Context(), session, req.Answer)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Finish godoc
// @Summary 结束面试
// @Description 生成总评并把会话推进到completed终态
// @Tags AI面试
// @Produce  json
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=object}
// @Failure 409 {object} util.Response "并发完成冲突"
// @Router /api/sessions/{id}/interview/finish [post]
func (c *InterviewController) Finish(ctx *gin.Context) {
	session, ok := c.interviewSession(ctx)
	if !ok {
		return
	}

	claims := util.GetUserFromContext(ctx)
	result, summary, err := c.SessionService.FinishInterview(ctx.Request.Context(), claims.UserID, session.ID)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"result":  result,
		"summary": summary,
	})
}
