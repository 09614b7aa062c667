package controller

import (
	"interview_prep_backend/internal/service"
	"interview_prep_backend/internal/util"

	"github.com/gin-gonic/gin"
)

const maxUploadSize = 10 << 20 // 10MB

type UserController struct {
	UserService *service.UserService
}

func NewUserController(userService *service.UserService) *UserController {
	return &UserController{UserService: userService}
}

// GetProfile godoc
// @Summary 查询个人资料
// @Tags 用户
// @Produce  json
// @Success 200 {object} util.Response{data=model.User}
// @Router /api/users/profile [get]
func (c *UserController) GetProfile(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	user, err := c.UserService.GetProfile(claims.UserID)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// UpdateProfile godoc
// @Summary 更新个人资料
// @Tags 用户
// @Accept  json
// @Produce  json
// @Param   body body service.UpdateProfileRequest true "资料字段"
// @Success 200 {object} util.Response{data=model.User}
// @Router /api/users/profile [put]
func (c *UserController) UpdateProfile(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	var req service.UpdateProfileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user, err := c.UserService.UpdateProfile(claims.UserID, &req)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// UploadAvatar godoc
// @Summary 上传头像
// @Tags 用户
// @Accept  multipart/form-data
// @Produce  json
// @Param   file formData file true "头像文件"
// @Success 200 {object} util.Response{data=object}
// @Failure 400 {object} util.Response "文件非法"
// @Router /api/users/avatar [post]
func (c *UserController) UploadAvatar(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	header, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "缺少上传文件")
		return
	}
	if header.Size > maxUploadSize {
		util.BadRequest(ctx, "文件过大")
		return
	}

	file, err := header.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	url, err := c.UserService.UploadAvatar(ctx.Request.Context(), claims.UserID,
		header.Filename, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"url": url})
}

// UploadResume godoc
// @Summary 上传简历
// @Tags 用户
// @Accept  multipart/form-data
// @Produce  json
// @Param   file formData file true "简历文件"
// @Success 200 {object} util.Response{data=object}
// @Failure 400 {object} util.Response "文件非法"
// @Router /api/users/resume [post]
func (c *UserController) UploadResume(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	header, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "缺少上传文件")
		return
	}
	if header.Size > maxUploadSize {
		util.BadRequest(ctx, "文件过大")
		return
	}

	file, err := header.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	url, err := c.UserService.UploadResume(ctx.Request.Context(), claims.UserID,
		header.Filename, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"url": url})
}
