// Package main 是服务端的入口点
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rainbowchenx/ai-agent/internal/cache"
	"github.com/rainbowchenx/ai-agent/internal/config"
	"github.com/rainbowchenx/ai-agent/internal/handler"
	"github.com/rainbowchenx/ai-agent/internal/llm"
	"github.com/rainbowchenx/ai-agent/internal/middleware"
	"github.com/rainbowchenx/ai-agent/internal/model"
	applog "github.com/rainbowchenx/ai-agent/internal/pkg/logger"
	"github.com/rainbowchenx/ai-agent/internal/repository"
	"github.com/rainbowchenx/ai-agent/internal/service"
	"github.com/rainbowchenx/ai-agent/internal/websocket"
	"github.com/rainbowchenx/ai-agent/pkg/token"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load("./configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	logger := applog.New(applog.Options{
		Level:    cfg.Log.Level,
		FilePath: cfg.Log.FilePath,
		Mode:     cfg.Server.Mode,
	})
	defer logger.Sync()

	// 初始化数据库
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to init database", zap.Error(err))
	}

	// 自动迁移数据库表
	if err := autoMigrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	// 初始化 Redis
	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		logger.Fatal("failed to init redis", zap.Error(err))
	}

	// 初始化令牌服务
	tokenService := token.NewService(cfg.JWT.Secret, cfg.JWT.AccessExpire)

	// 初始化大模型客户端
	generator := llm.NewOpenAIClient(cfg.LLM)

	// 初始化 Repository 层
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// 初始化 Service 层
	authService := service.NewAuthService(userRepo, redisCache, tokenService)
	sessionService := service.NewSessionService(sessionRepo, messageRepo)
	chatService := service.NewChatService(sessionRepo, messageRepo, generator, cfg.LLM.ContextWindow, logger)

	// 初始化 Handler 层
	authHandler := handler.NewAuthHandler(authService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	chatHandler := handler.NewChatHandler(chatService)
	knowledgeHandler := handler.NewKnowledgeHandler()
	wsHandler := websocket.NewHandler(authService, chatService, logger)

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	router := gin.New()

	// 全局中间件
	router.Use(middleware.RecoveryMiddleware(logger)) // 恢复 panic
	router.Use(middleware.LoggerMiddleware(logger))   // 请求日志
	router.Use(middleware.CORSMiddleware(middleware.CORSConfig{
		AllowOrigins:     cfg.Server.CORS,
		AllowMethods:     middleware.DefaultCORSConfig().AllowMethods,
		AllowHeaders:     middleware.DefaultCORSConfig().AllowHeaders,
		ExposeHeaders:    middleware.DefaultCORSConfig().ExposeHeaders,
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	// 限流只作用于业务路由，健康检查不计数
	rateLimiter := middleware.RateLimitMiddleware(redisCache, cfg.RateLimit, logger)

	// 注册路由
	registerRoutes(router, logger, rateLimiter, authService, authHandler, sessionHandler, chatHandler, knowledgeHandler, wsHandler)

	// 创建 HTTP 服务器
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
		// SSE 和 WebSocket 是长连接，不设置 WriteTimeout
		ReadTimeout: 30 * time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// 创建关闭上下文，设置超时
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	// 关闭 Redis 连接
	if err := redisCache.Close(); err != nil {
		logger.Warn("failed to close redis", zap.Error(err))
	}

	logger.Info("server exited")
}

// initDatabase 初始化数据库连接
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	// 构建 DSN (Data Source Name)
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		cfg.MySQL.Username,
		cfg.MySQL.Password,
		cfg.MySQL.Host,
		cfg.MySQL.Port,
		cfg.MySQL.Database,
		cfg.MySQL.Charset,
	)

	// 配置 GORM logger
	gormLogger := gormlogger.Default.LogMode(gormlogger.Info)
	if cfg.Server.Mode == "release" {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	// 连接数据库
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 获取底层 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 配置连接池
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MySQL.MaxLifetime) * time.Second)

	return db, nil
}

// autoMigrate 自动迁移数据库表
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.Message{},
	)
}

// registerRoutes 注册所有路由
func registerRoutes(
	router *gin.Engine,
	logger *zap.Logger,
	rateLimiter gin.HandlerFunc,
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	sessionHandler *handler.SessionHandler,
	chatHandler *handler.ChatHandler,
	knowledgeHandler *handler.KnowledgeHandler,
	wsHandler *websocket.Handler,
) {
	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authRequired := middleware.AuthMiddleware(authService, logger)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	v1.Use(rateLimiter)

	// 认证相关
	auth := v1.Group("/auth")
	{
		// 无需登录
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)

		// 需要登录
		auth.GET("/verify", authRequired, authHandler.Verify)
		auth.POST("/verify", authHandler.VerifyToken)
		auth.POST("/logout", authRequired, authHandler.Logout)

		// 会话管理挂在 auth 组下
		auth.POST("/session", authRequired, sessionHandler.CreateSession)
		auth.GET("/sessions", authRequired, sessionHandler.ListSessions)
		auth.PATCH("/session/:id/name", authRequired, sessionHandler.RenameSession)
		auth.DELETE("/session/:id", authRequired, sessionHandler.DeleteSession)
	}

	// 会话消息（需要登录）
	session := v1.Group("/session")
	session.Use(authRequired)
	{
		session.GET("/:id/messages", sessionHandler.GetMessages)
		session.DELETE("/:id/messages", sessionHandler.ClearMessages)
	}

	// 聊天（需要登录）
	chat := v1.Group("/chat")
	chat.Use(authRequired)
	{
		chat.POST("", chatHandler.Chat)
		chat.POST("/stream", chatHandler.ChatStream)
	}

	// 知识库（需要登录，暂未实现）
	knowledge := v1.Group("/knowledge")
	knowledge.Use(authRequired)
	{
		knowledge.POST("/upload", knowledgeHandler.Upload)
		knowledge.GET("/list", knowledgeHandler.List)
		knowledge.DELETE("/:id", knowledgeHandler.Delete)
	}

	// WebSocket 路由
	wsHandler.RegisterRoutes(router)
}
