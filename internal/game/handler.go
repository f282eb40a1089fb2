package game

import (
	"errors"
	"net/http"

	"github.com/SlpAus/luna-spins-backend/internal/mission"
	"github.com/SlpAus/luna-spins-backend/internal/selection"
	"github.com/gin-gonic/gin"
)

type spinRequest struct {
	Category string  `json:"category" binding:"required"`
	Rotation float64 `json:"rotation"`
}

type diceRequest struct {
	Guess int `json:"guess"`
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func writeError(c *gin.Context, err error) {
	var qe *QuotaError
	switch {
	case errors.As(err, &qe):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":          "本周的次数已经用完",
			"game":           qe.Kind,
			"daysUntilReset": qe.DaysUntilReset,
		})
	case errors.Is(err, ErrUnknownCategory):
		c.JSON(http.StatusBadRequest, gin.H{"error": "未知的转盘分类"})
	case errors.Is(err, selection.ErrInvalidGuess):
		c.JSON(http.StatusBadRequest, gin.H{"error": "猜测的点数必须在1到6之间"})
	case errors.Is(err, mission.ErrMissionBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "请先完成当前的任务"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "游戏暂时不可用"})
	}
}

// WheelPool 返回转盘的扇区
func (h *Handler) WheelPool(c *gin.Context) {
	pool, err := h.service.WheelPool(c.Request.Context(), c.Query("category"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pool": pool})
}

// SpinWheel 转动转盘
func (h *Handler) SpinWheel(c *gin.Context) {
	var req spinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
		return
	}
	round, err := h.service.SpinWheel(c.Request.Context(), req.Category, req.Rotation)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, round)
}

// DrawCard 抽卡
func (h *Handler) DrawCard(c *gin.Context) {
	round, err := h.service.DrawCard(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, round)
}

// PullSlots 拉动老虎机
func (h *Handler) PullSlots(c *gin.Context) {
	round, err := h.service.PullSlots(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, round)
}

// RollDice 掷骰子
func (h *Handler) RollDice(c *gin.Context) {
	var req diceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
		return
	}
	round, err := h.service.RollDice(c.Request.Context(), req.Guess)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, round)
}
