package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/SlpAus/luna-spins-backend/pkg/token"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Notification 是服务商推送的付款通知
type Notification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID ChargeID `json:"id"`
	} `json:"data"`
}

type Handler struct {
	flow   *Flow
	signer *token.Signer // 为 nil 时拒绝所有通知
	log    zerolog.Logger
}

func NewHandler(flow *Flow, signer *token.Signer, log zerolog.Logger) *Handler {
	return &Handler{flow: flow, signer: signer, log: log.With().Str("module", "payment").Logger()}
}

// respond 写出当前视图；服务商错误返回502，但视图中的信息同样可以展示
func respond(c *gin.Context, view View, err error) {
	var pe *ProviderError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, view)
	case errors.Is(err, ErrAlreadyVip):
		c.JSON(http.StatusConflict, gin.H{"error": "已经是VIP了", "payment": view})
	case errors.Is(err, ErrCreateInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "正在创建收款，请稍候", "payment": view})
	case errors.Is(err, ErrSuperseded):
		c.JSON(http.StatusConflict, gin.H{"error": "收款已被放弃", "payment": view})
	case errors.Is(err, ErrNoCharge):
		c.JSON(http.StatusNotFound, gin.H{"error": "没有待确认的收款", "payment": view})
	case errors.As(err, &pe):
		c.JSON(http.StatusBadGateway, gin.H{"error": pe.Message, "payment": view})
	default:
		msg := view.Message
		if msg == "" {
			msg = UserMessage(err)
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": msg, "payment": view})
	}
}

// Get 返回支付流程的当前状态
func (h *Handler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.flow.View())
}

// CreateCharge 创建一笔新的收款
func (h *Handler) CreateCharge(c *gin.Context) {
	view, err := h.flow.CreateCharge(c.Request.Context())
	respond(c, view, err)
}

// Check 处理用户的“我已经付款”操作
func (h *Handler) Check(c *gin.Context) {
	view, err := h.flow.Check(c.Request.Context(), TriggerManual)
	respond(c, view, err)
}

// Focus 在应用回到前台时由前端调用
func (h *Handler) Focus(c *gin.Context) {
	view, checked, err := h.flow.OnFocus(c.Request.Context())
	if err != nil {
		respond(c, view, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checked": checked, "payment": view})
}

// Abandon 放弃当前收款
func (h *Handler) Abandon(c *gin.Context) {
	view, err := h.flow.Abandon(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "放弃收款失败"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Webhook 接收服务商的付款通知。签名正确的通知总是返回200，避免服务商重复投递。
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取请求失败"})
		return
	}
	if h.signer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未配置通知密钥"})
		return
	}
	if err := h.signer.Verify(body, c.GetHeader(token.HeaderName)); err != nil {
		h.log.Warn().Err(err).Msg("收到签名无效的通知")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "签名无效"})
		return
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的通知格式"})
		return
	}

	_, checked, err := h.flow.Notify(c.Request.Context(), string(n.Data.ID))
	if err != nil {
		h.log.Warn().Err(err).Str("charge", string(n.Data.ID)).Msg("处理通知时查询失败")
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "checked": checked})
}
