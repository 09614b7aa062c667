package controller

import (
	"errors"
	"interview_prep_backend/internal/model"
	"interview_prep_backend/internal/service"
	"interview_prep_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// QuestionController 题库管理，管理员专用
type QuestionController struct {
	QuestionService *service.QuestionService
}

func NewQuestionController(questionService *service.QuestionService) *QuestionController {
	return &QuestionController{QuestionService: questionService}
}

// Create godoc
// @Summary 新增题目
// @Tags 题库管理
// @Accept  json
// @Produce  json
// @Param   body body model.Question true "题目内容"
// @Success 201 {object} util.Response{data=model.Question}
// @Failure 400 {object} util.Response "题目内容非法"
// @Router /api/admin/questions [post]
func (c *QuestionController) Create(ctx *gin.Context) {
	var q model.Question
	if err := ctx.ShouldBindJSON(&q); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	q.Enabled = true

	if err := c.QuestionService.Create(&q); err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Created(ctx, q)
}

// Get godoc
// @Summary 查询题目
// @Tags 题库管理
// @Produce  json
// @Param   id path int true "题目ID"
// @Success 200 {object} util.Response{data=model.Question}
// @Failure 404 {object} util.Response "题目不存在"
// @Router /api/admin/questions/{id} [get]
func (c *QuestionController) Get(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "无效的题目ID")
		return
	}

	q, err := c.QuestionService.Get(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, q)
}

// Update godoc
// @Summary 更新题目
// @Tags 题库管理
// @Accept  json
// @Produce  json
// @Param   id path int true "题目ID"
// @Param   body body model.Question true "题目内容"
// @Success 200 {object} util.Response{data=model.Question}
// @Router /api/admin/questions/{id} [put]
func (c *QuestionController) Update(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "无效的题目ID")
		return
	}

	var q model.Question
	if err := ctx.ShouldBindJSON(&q); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	q.ID = uint(id)

	if err := c.QuestionService.Update(&q); err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, q)
}

// Delete godoc
// @Summary 删除题目
// @Tags 题库管理
// @Produce  json
// @Param   id path int true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/admin/questions/{id} [delete]
func (c *QuestionController) Delete(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "无效的题目ID")
		return
	}

	if err := c.QuestionService.Delete(uint(id)); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"id": id})
}

// List godoc
// @Summary 题目列表
// @Tags 题库管理
// @Produce  json
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Param   category query string false "分类"
// @Param   type query string false "题型"
// @Success 200 {object} util.Response{data=object}
// @Router /api/admin/questions [get]
func (c *QuestionController) List(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	category := ctx.Query("category")
	qType := model.QuestionType(ctx.Query("type"))

	questions, total, err := c.QuestionService.List(page, limit, category, qType)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"questions": questions,
		"total":     total,
		"page":      page,
		"limit":     limit,
	})
}
