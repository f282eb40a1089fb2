package progress

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// View 是返回给前端的进度快照
type View struct {
	UserProgress
	DaysUntilReset int `json:"daysUntilReset"`
}

type onboardingRequest struct {
	Self    string `json:"self"`
	Partner string `json:"partner"`
}

// Handler 暴露进度相关的HTTP接口
type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) view(p UserProgress) View {
	return View{UserProgress: p, DaysUntilReset: h.store.DaysUntilReset()}
}

// GetProgress 返回当前进度
func (h *Handler) GetProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.view(h.store.Snapshot(c.Request.Context())))
}

// Events 以SSE的形式推送进度快照，连接建立时先推送一次当前状态
func (h *Handler) Events(c *gin.Context) {
	updates := make(chan UserProgress, 1)
	cancel := h.store.Subscribe(func(p UserProgress) {
		// 只保留最新的快照，慢的客户端会跳过中间状态
		select {
		case <-updates:
		default:
		}
		updates <- p
	})
	defer cancel()

	ctx := c.Request.Context()
	first := true
	c.Stream(func(w io.Writer) bool {
		if first {
			first = false
			c.SSEvent("progress", h.view(h.store.Snapshot(ctx)))
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case p := <-updates:
			c.SSEvent("progress", h.view(p))
			return true
		}
	})
}

// CompleteOnboarding 保存双方的名字
func (h *Handler) CompleteOnboarding(c *gin.Context) {
	var req onboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
		return
	}
	ctx := c.Request.Context()
	if err := h.store.CompleteOnboarding(ctx, req.Self, req.Partner); err != nil {
		if errors.Is(err, ErrEmptyName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "两个名字都不能为空"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存进度失败"})
		return
	}
	c.JSON(http.StatusOK, h.view(h.store.Snapshot(ctx)))
}

// MarkTutorialSeen 记录教程已看过
func (h *Handler) MarkTutorialSeen(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.store.MarkTutorialSeen(ctx, c.Param("id")); err != nil {
		if errors.Is(err, ErrEmptyItem) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "缺少教程ID"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存进度失败"})
		return
	}
	c.JSON(http.StatusOK, h.view(h.store.Snapshot(ctx)))
}
