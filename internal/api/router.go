package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rl-arena/rl-arena-matchmaker/internal/api/handlers"
	"github.com/rl-arena/rl-arena-matchmaker/internal/api/middleware"
	"github.com/rl-arena/rl-arena-matchmaker/internal/config"
	"github.com/rl-arena/rl-arena-matchmaker/internal/service"
	"github.com/rl-arena/rl-arena-matchmaker/internal/websocket"
	jwtutil "github.com/rl-arena/rl-arena-matchmaker/pkg/jwt"
	"github.com/rl-arena/rl-arena-matchmaker/pkg/ratelimit"
)

// Dependencies 라우터가 사용하는 서비스 모음
type Dependencies struct {
	QueueService *service.QueueService
	MatchService *service.MatchService
	Hub          *websocket.Hub

	// Limiter guards queue mutations. nil disables rate limiting.
	Limiter ratelimit.Limiter

	// JWTManager binds requests to the token's player and gates the operator
	// routes behind the operator role. nil disables auth, operator routes included.
	JWTManager *jwtutil.JWTManager

	HealthChecks map[string]handlers.HealthChecker
}

// SetupRouter API 라우터 설정
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	var (
		auth     gin.HandlerFunc = passThrough
		operator gin.HandlerFunc = passThrough
	)
	if deps.JWTManager != nil {
		auth = middleware.PlayerAuth(deps.JWTManager)
		operator = middleware.RequireRole(jwtutil.RoleOperator)
	}
	var limit gin.HandlerFunc = passThrough
	if deps.Limiter != nil {
		limit = middleware.RateLimit(deps.Limiter, middleware.DefaultKeyFunc)
	}

	// Handler 초기화
	queueHandler := handlers.NewQueueHandler(deps.QueueService)
	matchHandler := handlers.NewMatchHandler(deps.MatchService)
	healthHandler := handlers.NewHealthHandler(deps.QueueService, deps.Hub, deps.HealthChecks)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub)

	// Health check
	router.GET("/health", healthHandler.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		// WebSocket endpoint
		v1.GET("/ws", auth, wsHandler.HandleWebSocket)

		// Queue routes
		queue := v1.Group("/queue")
		{
			queue.POST("", auth, limit, queueHandler.Enqueue)
			queue.DELETE("/:playerId", auth, limit, queueHandler.Dequeue)
			queue.GET("", queueHandler.GetQueue)
			queue.GET("/:playerId", queueHandler.GetPlayerStatus)
			queue.GET("/:playerId/candidates", queueHandler.GetCandidates)
		}

		// Matchmaking operator routes
		matchmaking := v1.Group("/matchmaking")
		matchmaking.Use(auth, operator)
		{
			matchmaking.POST("/sweep", limit, queueHandler.Sweep)
			matchmaking.GET("/reviews", matchHandler.ListReviews)
			matchmaking.DELETE("/reviews/:id", matchHandler.ResolveReview)
		}

		// Match routes
		matches := v1.Group("/matches")
		{
			matches.GET("/:id", matchHandler.GetMatch)
			matches.GET("/player/:playerId", matchHandler.ListMatchesByPlayer)
		}
	}

	return router
}

func passThrough(c *gin.Context) {
	c.Next()
}
