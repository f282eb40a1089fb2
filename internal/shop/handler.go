package shop

import (
	"errors"
	"net/http"

	"github.com/SlpAus/luna-spins-backend/internal/progress"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	shop *Shop
}

func NewHandler(shop *Shop) *Handler {
	return &Handler{shop: shop}
}

// List 返回商店的功能列表
func (h *Handler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.shop.List(c.Request.Context()))
}

// Purchase 购买一个功能
func (h *Handler) Purchase(c *gin.Context) {
	ctx := c.Request.Context()
	err := h.shop.Purchase(ctx, c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, h.shop.List(ctx))
	case errors.Is(err, ErrUnknownFeature):
		c.JSON(http.StatusNotFound, gin.H{"error": "找不到该功能"})
	case errors.Is(err, ErrAlreadyUnlocked):
		c.JSON(http.StatusConflict, gin.H{"error": "该功能已经解锁"})
	case errors.Is(err, ErrLevelLocked):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "完成的任务数量不足"})
	case errors.Is(err, progress.ErrInsufficientCoins):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "金币不足"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "购买失败"})
	}
}
