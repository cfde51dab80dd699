package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/routine-gin/internal/config"
	"github.com/mautops/routine-gin/internal/websocket"
	"gorm.io/gorm"
)

// SetupRoutes 配置基础路由与全局中间件
// 业务路由组由 cmd/server.go 在控制器就绪后绑定
func SetupRoutes(cfg *config.Config, hub *websocket.Hub, db *gorm.DB) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// 中间件
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())
	router.Use(CORSMiddleware(cfg.CORS.AllowedOrigins))
	if cfg.RateLimit.Enabled {
		router.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	router.Use(ErrorHandlerMiddleware())

	// 健康检查
	healthController := NewHealthController(db)
	router.GET("/health", healthController.Check)

	// Prometheus 指标端点
	router.GET("/metrics", MetricsHandler)

	// WebSocket 路由: 执行状态事件流
	if hub != nil {
		router.GET("/ws/executions", websocket.WebSocketHandler(hub))
	}

	// 自定义 NoRoute 处理器,返回 JSON 格式的 404
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
	})

	return router
}
