package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/rl-arena-matchmaker/internal/api/middleware"
	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
	"github.com/rl-arena/rl-arena-matchmaker/internal/websocket"
)

// WebSocketHandler WebSocket 연결 처리
type WebSocketHandler struct {
	hub *websocket.Hub
}

// NewWebSocketHandler WebSocketHandler 생성
func NewWebSocketHandler(hub *websocket.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
	}
}

// HandleWebSocket WebSocket 연결 엔드포인트. The player comes from the token when
// auth is on, otherwise from the playerId query parameter.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	playerID := c.Query("playerId")
	if authenticated, ok := middleware.AuthenticatedPlayer(c); ok {
		if playerID == "" {
			playerID = authenticated
		}
		if !requirePlayer(c, playerID) {
			return
		}
	}

	if err := matchmaking.ValidatePlayerID(playerID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// WebSocket 연결 업그레이드
	h.hub.ServeWs(c.Writer, c.Request, playerID)
}
