package app

import (
	"interview_prep_backend/docs"
	"interview_prep_backend/internal/config"
	"interview_prep_backend/internal/middleware"
	"interview_prep_backend/internal/model"
	"interview_prep_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/auth/me", c.auth.Me)

		// 用户资料
		authGroup.GET("/users/profile", c.user.GetProfile)
		authGroup.PUT("/users/profile", c.user.UpdateProfile)
		authGroup.POST("/users/avatar", c.user.UploadAvatar)
		authGroup.POST("/users/resume", c.user.UploadResume)

		// 练习会话
		authGroup.POST("/sessions", c.session.Start)
		authGroup.GET("/sessions", c.session.List)
		authGroup.GET("/sessions/:id", c.session.Get)
		authGroup.POST("/sessions/:id/start", c.session.Touch)
		authGroup.POST("/sessions/:id/answers", c.session.SubmitAnswer)
		authGroup.POST("/sessions/:id/complete", c.session.Complete)
		authGroup.POST("/sessions/:id/abandon", c.session.Abandon)
		authGroup.GET("/sessions/:id/result", c.session.GetResult)

		// AI面试
		authGroup.GET("/sessions/:id/interview", c.interview.Open)
		authGroup.POST("/sessions/:id/interview/turns", c.interview.SubmitTurn)
		authGroup.POST("/sessions/:id/interview/finish", c.interview.Finish)

		// 学习进度
		authGroup.GET("/progress", c.progress.Get)
		authGroup.GET("/progress/summary", c.progress.Summary)
		authGroup.GET("/progress/leaderboard", c.progress.Leaderboard)
	}

	// 3. 管理员相关接口
	adminGroup := router.Group("/api/admin")
	adminGroup.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		adminGroup.POST("/questions", c.question.Create)
		adminGroup.GET("/questions", c.question.List)
		adminGroup.GET("/questions/:id", c.question.Get)
		adminGroup.PUT("/questions/:id", c.question.Update)
		adminGroup.DELETE("/questions/:id", c.question.Delete)
	}
}
