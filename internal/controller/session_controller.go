package controller

import (
	"interview_prep_backend/internal/service"
	"interview_prep_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type SessionController struct {
	SessionService *service.SessionService
}

func NewSessionController(sessionService *service.SessionService) *SessionController {
	return &SessionController{SessionService: sessionService}
}

// Start godoc
// @Summary 创建练习会话
// @Description 按配置抽题并创建会话，题量不足时失败
// @Tags 练习会话
// @Accept  json
// @Produce  json
// @Param   body body service.StartSessionRequest true "会话配置"
// @Success 201 {object} util.Response{data=model.PracticeSession}
// @Failure 400 {object} util.Response "配置非法"
// @Failure 422 {object} util.Response "题库数量不足"
// @Router /api/sessions [post]
func (c *SessionController) Start(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	var req service.StartSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session, err := c.SessionService.Start(claims.UserID, &req)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Created(ctx, session)
}

// Touch godoc
// @Summary 开始作答
// @Description 幂等地把会话从created推进到in_progress
// @Tags 练习会话
// @Produce  json
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.PracticeSession}
// @Failure 409 {object} util.Response "会话已结束"
// @Router /api/sessions/{id}/start [post]
func (c *SessionController) Touch(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	session, err := c.SessionService.Touch(claims.UserID, ctx.Param("id"))
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// SubmitAnswer godoc
// @Summary 提交单题作答
// @Description 记录作答并就地判分；测验类首次提交生效，已判分作答附带题目解析
// @Tags 练习会话
// @Accept  json
// @Produce  json
// @Param   id path string true "会话ID"
// @Param   body body service.SubmitAnswerRequest true "作答内容"
// @Success 200 {object} util.Response{data=service.SubmitAnswerResult}
// @Failure 409 {object} util.Response "会话已结束"
// @Failure 502 {object} util.Response "判题服务不可用"
// @Router /api/sessions/{id}/answers [post]
func (c *SessionController) SubmitAnswer(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	var req service.SubmitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	answer, err := c.SessionService.SubmitAnswer(ctx.Request.Context(), claims.UserID, ctx.Param("id"), &req)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, answer)
}

// Complete godoc
// @Summary 完成会话
// @Description 评分并推进到completed终态；重复请求返回原结果
// @Tags 练习会话
// @Produce  json
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.SessionResult}
// @Failure 409 {object} util.Response "并发完成冲突或会话已废弃"
// @Router /api/sessions/{id}/complete [post]
func (c *SessionController) Complete(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	result, err := c.SessionService.Complete(ctx.Request.Context(), claims.UserID, ctx.Param("id"))
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Abandon godoc
// @Summary 放弃会话
// @Description 主动放弃未完成的会话；重复请求直接成功
// @Tags 练习会话
// @Produce  json
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.PracticeSession}
// @Failure 409 {object} util.Response "会话已完成"
// @Router /api/sessions/{id}/abandon [post]
func (c *SessionController) Abandon(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	session, err := c.SessionService.Abandon(claims.UserID, ctx.Param("id"))
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// GetResult godoc
// @Summary 查询会话结果
// @Tags 练习会话
// @Produce  json
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.SessionResult}
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/sessions/{id}/result [get]
func (c *SessionController) GetResult(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	result, err := c.SessionService.GetResult(claims.UserID, ctx.Param("id"))
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Get godoc
// @Summary 查询会话详情
// @Tags 练习会话
// @Produce  json
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.PracticeSession}
// @Router /api/sessions/{id} [get]
func (c *SessionController) Get(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	session, err := c.SessionService.Get(claims.UserID, ctx.Param("id"))
	if err != nil {
		util.DomainError(ctx, err)
		return
	}

	// 题目快照对考生隐藏答案字段，由SessionItem的json标签保证
	util.Success(ctx, gin.H{
		"session": session,
		"items":   session.Items,
	})
}

// List godoc
// @Summary 查询历史会话
// @Tags 练习会话
// @Produce  json
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=object}
// @Router /api/sessions [get]
func (c *SessionController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	sessions, total, err := c.SessionService.List(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"sessions": sessions,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}
