package controller

import (
	"interview_prep_backend/internal/service"
	"interview_prep_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	ProgressService *service.ProgressService
}

func NewProgressController(progressService *service.ProgressService) *ProgressController {
	return &ProgressController{ProgressService: progressService}
}

// Get godoc
// @Summary 查询学习进度
// @Description 返回当前用户的完整进度记录，不存在时惰性创建
// @Tags 学习进度
// @Produce  json
// @Success 200 {object} util.Response{data=model.UserProgress}
// @Router /api/progress [get]
func (c *ProgressController) Get(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	progress, err := c.ProgressService.GetUserProgress(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// Summary godoc
// @Summary 查询统计摘要
// @Description 返回终身统计的缓存投影
// @Tags 学习进度
// @Produce  json
// @Success 200 {object} util.Response{data=model.OverallStats}
// @Router /api/progress/summary [get]
func (c *ProgressController) Summary(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	stats, err := c.ProgressService.Summary(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

// Leaderboard godoc
// @Summary 完成数排行榜
// @Tags 学习进度
// @Produce  json
// @Param   limit query int false "返回数量"
// @Success 200 {object} util.Response{data=[]model.User}
// @Router /api/progress/leaderboard [get]
func (c *ProgressController) Leaderboard(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	users, err := c.ProgressService.Leaderboard(ctx.Request.Context(), limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	type entry struct {
		ID            uint   `json:"id"`
		Name          string `json:"name"`
		SessionsTotal int    `json:"sessionsTotal"`
	}
	out := make([]entry, 0, len(users))
	for _, u := range users {
		out = append(out, entry{ID: u.ID, Name: u.Name, SessionsTotal: u.SessionsTotal})
	}
	util.Success(ctx, out)
}
