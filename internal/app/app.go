package app

import (
	"context"
	"interview_prep_backend/internal/config"
	"interview_prep_backend/internal/controller"
	"interview_prep_backend/internal/repository"
	"interview_prep_backend/internal/service"
	"interview_prep_backend/pkg/database"
	"interview_prep_backend/pkg/logger"
	"interview_prep_backend/pkg/monitoring"
	"interview_prep_backend/pkg/security"
	"interview_prep_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user     *repository.UserRepository
	question *repository.QuestionRepository
	session  *repository.SessionRepository
	progress *repository.ProgressRepository
}

type services struct {
	auth           *service.AuthService
	storage        *service.StorageService
	user           *service.UserService
	question       *service.QuestionService
	ai             *service.AIService
	codeExec       *service.CodeExecService
	interviewStore *service.MemorySessionStore
	interview      *service.InterviewService
	session        *service.SessionService
	progress       *service.ProgressService
}

type controllers struct {
	auth      *controller.AuthController
	session   *controller.SessionController
	interview *controller.InterviewController
	progress  *controller.ProgressController
	question  *controller.QuestionController
	user      *controller.UserController
	health    *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig 热更新回调入口，配置文件变更后由watcher触发
func (a *App) ApplyConfig(cfg *config.Config) {
	a.services.ai.ApplyConfig(cfg.AI)
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:     repository.NewUserRepository(db),
		question: repository.NewQuestionRepository(db),
		session:  repository.NewSessionRepository(db),
		progress: repository.NewProgressRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.progress = service.NewProgressService(repos.progress, repos.user, rdb)
	s.auth = service.NewAuthService(repos.user, s.progress, cfg)
	s.user = service.NewUserService(repos.user, s.storage)
	s.question = service.NewQuestionService(repos.question)

	s.ai = service.NewAIService(cfg.AI)
	s.codeExec = service.NewCodeExecService(cfg.Judge0)

	s.interviewStore = service.NewMemorySessionStore(time.Duration(cfg.Session.StoreTTLMinutes) * time.Minute)
	s.interview = service.NewInterviewService(s.interviewStore, s.ai, repos.session, cfg.Session)
	s.session = service.NewSessionService(repos.session, repos.question, s.codeExec, s.progress, s.interview, s.ai, cfg.Session)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:      controller.NewAuthController(s.auth),
		session:   controller.NewSessionController(s.session),
		interview: controller.NewInterviewController(s.interview, s.session),
		progress:  controller.NewProgressController(s.progress),
		question:  controller.NewQuestionController(s.question),
		user:      controller.NewUserController(s.user),
		health:    controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 10000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(s *services) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		for range ticker.C {
			s.session.SweepAbandoned()
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// Redis不可用时降级运行，去重与缓存退化为直读数据库
		logger.Log.Warn("Failed to initialize redis, running without cache", zap.Error(err))
		rdb = nil
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("interview-prep", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, os.ModePerm)
		}
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	a.services.interviewStore.Close()
	logger.Log.Sync()
	log.Println("Server exiting")
}
