package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/rl-arena-matchmaker/internal/service"
	"github.com/rl-arena/rl-arena-matchmaker/internal/websocket"
)

const healthCheckTimeout = 2 * time.Second

// HealthChecker 외부 의존성 상태 확인 (database, redis)
type HealthChecker func(ctx context.Context) error

type HealthHandler struct {
	queueService *service.QueueService
	hub          *websocket.Hub
	checks       map[string]HealthChecker
}

func NewHealthHandler(queueService *service.QueueService, hub *websocket.Hub, checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{
		queueService: queueService,
		hub:          hub,
		checks:       checks,
	}
}

// HealthCheck godoc
// @Summary Health check
// @Description Check if the matchmaker and its backing stores are reachable
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "Server is healthy"
// @Failure 503 {object} map[string]interface{} "A dependency is down"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	dependencies := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			dependencies[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		dependencies[name] = "ok"
	}

	body := gin.H{
		"status":       "ok",
		"service":      "rl-arena-matchmaker",
		"queueSize":    h.queueService.QueueSize(),
		"dependencies": dependencies,
	}
	if h.hub != nil {
		body["connectedPlayers"] = h.hub.ClientCount()
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}

	c.JSON(status, body)
}
