package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
	"github.com/rl-arena/rl-arena-matchmaker/internal/models"
	"github.com/rl-arena/rl-arena-matchmaker/internal/service"
)

type QueueHandler struct {
	queueService *service.QueueService
}

func NewQueueHandler(queueService *service.QueueService) *QueueHandler {
	return &QueueHandler{
		queueService: queueService,
	}
}

// Enqueue 매칭 큐 등록
func (h *QueueHandler) Enqueue(c *gin.Context) {
	var req models.EnqueueRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	if !requirePlayer(c, req.PlayerID) {
		return
	}

	if _, err := h.queueService.Enqueue(c.Request.Context(), &req); err != nil {
		respondError(c, err, "Failed to join queue")
		return
	}

	c.Status(http.StatusCreated)
}

// Dequeue 매칭 큐에서 나가기
func (h *QueueHandler) Dequeue(c *gin.Context) {
	playerID := c.Param("playerId")

	if !requirePlayer(c, playerID) {
		return
	}

	if err := h.queueService.Dequeue(c.Request.Context(), playerID); err != nil {
		respondError(c, err, "Failed to leave queue")
		return
	}

	c.Status(http.StatusNoContent)
}

// GetQueue 큐 현황 조회
func (h *QueueHandler) GetQueue(c *gin.Context) {
	c.JSON(http.StatusOK, h.queueService.Snapshot())
}

// GetPlayerStatus 플레이어 대기 여부 조회
func (h *QueueHandler) GetPlayerStatus(c *gin.Context) {
	status, err := h.queueService.Status(c.Param("playerId"))
	if err != nil {
		respondError(c, err, "Failed to get queue status")
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetCandidates 매칭 후보 조회
func (h *QueueHandler) GetCandidates(c *gin.Context) {
	playerID := c.Param("playerId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	candidates, err := h.queueService.Candidates(playerID, limit)
	if err != nil {
		respondError(c, err, "Failed to get candidates")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"playerId":   playerID,
		"candidates": candidates,
		"total":      len(candidates),
	})
}

// Sweep 수동 매칭 실행
func (h *QueueHandler) Sweep(c *gin.Context) {
	result, err := h.queueService.Sweep(c.Request.Context())
	if err != nil {
		if errors.Is(err, matchmaking.ErrMatchRecordFailed) {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to record match",
			})
			return
		}
		respondError(c, err, "Failed to run matchmaking")
		return
	}

	c.JSON(http.StatusOK, result)
}
