package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/rl-arena-matchmaker/internal/service"
)

type MatchHandler struct {
	matchService *service.MatchService
}

func NewMatchHandler(matchService *service.MatchService) *MatchHandler {
	return &MatchHandler{
		matchService: matchService,
	}
}

// GetMatch 특정 매치 조회
func (h *MatchHandler) GetMatch(c *gin.Context) {
	match, err := h.matchService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get match")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"match": match,
	})
}

// ListMatchesByPlayer 특정 플레이어의 매치 목록 조회
func (h *MatchHandler) ListMatchesByPlayer(c *gin.Context) {
	playerID := c.Param("playerId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	matches, err := h.matchService.ListByPlayer(c.Request.Context(), playerID, limit)
	if err != nil {
		respondError(c, err, "Failed to get matches")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"playerId": playerID,
		"matches":  matches,
		"total":    len(matches),
	})
}

// ListReviews 검토 대기 중인 실패 매칭 조회
func (h *MatchHandler) ListReviews(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)

	items, total, err := h.matchService.PendingReviews(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err, "Failed to get review queue")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": total,
	})
}

// ResolveReview 검토 완료 처리
func (h *MatchHandler) ResolveReview(c *gin.Context) {
	item, err := h.matchService.ResolveReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to resolve review item")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item": item,
	})
}
