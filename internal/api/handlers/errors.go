package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/rl-arena-matchmaker/internal/api/middleware"
	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
	"github.com/rl-arena/rl-arena-matchmaker/internal/service"
	"github.com/rl-arena/rl-arena-matchmaker/pkg/logger"
)

// respondError 서비스 에러를 HTTP 상태 코드로 변환
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, matchmaking.ErrInvalidPlayerID),
		errors.Is(err, matchmaking.ErrInvalidCoordinates),
		errors.Is(err, matchmaking.ErrInvalidRating),
		errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, matchmaking.ErrAlreadyQueued):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.Is(err, matchmaking.ErrNotQueued):
		c.JSON(http.StatusNotFound, gin.H{"error": "Player not queued"})

	case errors.Is(err, service.ErrMatchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Match not found"})

	case errors.Is(err, service.ErrReviewNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Review item not found"})

	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Player mismatch"})

	default:
		logger.Error(fallback, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// requirePlayer rejects requests acting on another player's behalf. Without
// player auth every request passes.
func requirePlayer(c *gin.Context, playerID string) bool {
	authenticated, ok := middleware.AuthenticatedPlayer(c)
	if !ok || authenticated == playerID {
		return true
	}
	respondError(c, service.ErrForbidden, "")
	return false
}
