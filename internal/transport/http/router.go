package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"homematch/backend/internal/auth"
	jwtpkg "homematch/backend/internal/auth/jwt"
	"homematch/backend/internal/config"
	"homematch/backend/internal/health"
	"homematch/backend/internal/middleware"
	"homematch/backend/internal/monitoring"
	"homematch/backend/internal/service"
	"homematch/backend/internal/storage"
	"homematch/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config        *config.Config
	AuthService   *auth.Service
	Financing     *service.FinancingService
	Conversations *service.ConversationService
	Inbound       *service.InboundService
	JWTManager    *jwtpkg.Manager
	WebSocketHub  *websocket.Hub // 可为 nil
	Store         storage.Store
	Health        *health.Checker
	Metrics       *monitoring.Metrics
	Logger        *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger, deps.Metrics))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.HTTPMetrics(deps.Metrics))
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Sender-Email"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 允许所有来源时必须关闭凭证支持
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.Logger)
	financingHandler := NewFinancingHandler(deps.Financing, deps.AuthService, deps.Store, deps.Logger)
	conversationHandler := NewConversationHandler(deps.Conversations, deps.AuthService, deps.Logger)
	inboundHandler := NewInboundHandler(deps.Inbound, deps.Logger)

	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 健康检查与指标
	router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
	router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	router.GET("/metrics", gin.WrapH(monitoring.Handler()))

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		{
			// 邮箱维度的配额在服务层，这里再按 IP 挡一层
			otpLimit := middleware.RateLimit(1, 5)
			authRoutes.POST("/request-code", otpLimit, authHandler.RequestCode)
			authRoutes.POST("/verify", otpLimit, authHandler.Verify)
			authRoutes.POST("/refresh", authHandler.Refresh)
			authRoutes.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
			authRoutes.PATCH("/profile", jwtAuth.RequireAuth(), authHandler.UpdateProfile)
		}

		// ========== Catalog Routes ==========
		v1.GET("/listings", financingHandler.ListListings)
		v1.GET("/listings/:id", financingHandler.GetListing)
		v1.GET("/lenders", financingHandler.ListLenders)
		v1.GET("/lenders/:id/conversations", conversationHandler.ListForLender)

		// ========== Financing Request Routes ==========
		financingRoutes := v1.Group("/financing-requests")
		{
			financingRoutes.POST("", jwtAuth.OptionalAuth(), financingHandler.Submit)
			financingRoutes.GET("/mine", jwtAuth.RequireAuth(), financingHandler.ListMine)
		}

		// ========== Conversation Routes ==========
		conversationRoutes := v1.Group("/conversations")
		{
			conversationRoutes.POST("", conversationHandler.Start)
			conversationRoutes.GET("", jwtAuth.RequireAuth(), conversationHandler.ListMine)
			conversationRoutes.GET("/:id/messages", jwtAuth.RequireAuth(), conversationHandler.Messages)
			conversationRoutes.POST("/:id/messages", jwtAuth.RequireAuth(), conversationHandler.Send)
			conversationRoutes.POST("/:id/read", jwtAuth.RequireAuth(), conversationHandler.MarkRead)
		}

		// ========== Inbound Reply Routes ==========
		inboundRoutes := v1.Group("/inbound")
		{
			inboundRoutes.POST("/email", inboundHandler.Webhook)
			inboundRoutes.POST("/inline-reply", inboundHandler.InlineReply)
		}

		// ========== WebSocket Routes ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}
	}

	return router
}
