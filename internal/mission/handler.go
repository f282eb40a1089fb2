package mission

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// View 是返回给前端的任务状态
type View struct {
	State   State    `json:"state"`
	Mission *Mission `json:"mission"`
}

type Handler struct {
	timer *Timer
}

func NewHandler(timer *Timer) *Handler {
	return &Handler{timer: timer}
}

func (h *Handler) respond(c *gin.Context) {
	state, m := h.timer.State()
	c.JSON(http.StatusOK, View{State: state, Mission: m})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNoMission):
		c.JSON(http.StatusNotFound, gin.H{"error": "当前没有任务"})
	case errors.Is(err, ErrNotOffered):
		c.JSON(http.StatusConflict, gin.H{"error": "任务已经开始"})
	case errors.Is(err, ErrNotClaimable):
		c.JSON(http.StatusConflict, gin.H{"error": "倒计时还没有结束"})
	case errors.Is(err, ErrCancelLocked):
		c.JSON(http.StatusConflict, gin.H{"error": "倒计时进行中，不能放弃任务"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "领取奖励失败"})
	}
}

// Get 返回当前任务
func (h *Handler) Get(c *gin.Context) {
	h.respond(c)
}

// Start 开始倒计时
func (h *Handler) Start(c *gin.Context) {
	if _, err := h.timer.Start(); err != nil {
		writeError(c, err)
		return
	}
	h.respond(c)
}

// Claim 领取奖励
func (h *Handler) Claim(c *gin.Context) {
	m, err := h.timer.Claim(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claimed": m, "state": StateIdle})
}

// Cancel 放弃任务
func (h *Handler) Cancel(c *gin.Context) {
	if err := h.timer.Cancel(); err != nil {
		writeError(c, err)
		return
	}
	h.respond(c)
}
