package paysim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/SlpAus/luna-spins-backend/pkg/token"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config 配置模拟器
type Config struct {
	AccessToken     string // 为空时不校验
	WebhookSecret   string // 为空时不发送通知
	NotificationURL string // 收款自身没有 notification_url 时使用
}

// Server 是模拟的支付服务商
type Server struct {
	cfg    Config
	store  *store
	signer *token.Signer
	client *http.Client
	log    zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  newStore(),
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With().Str("module", "paysim").Logger(),
	}
	if cfg.WebhookSecret != "" {
		s.signer = token.NewSigner(cfg.WebhookSecret, 0)
	}
	return s
}

// Router 返回模拟器的全部路由
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/payments", s.handleCreate)
		r.Get("/payments/{id}", s.handleGet)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/payments", s.handleList)
		r.Post("/payments/{id}/approve", s.handleApprove)
		r.Post("/payments/{id}/reject", s.handleReject)
		r.Post("/reject-all", s.handleRejectAll)
	})
	return r
}

type cause struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type errorBody struct {
	Message string  `json:"message"`
	Error   string  `json:"error"`
	Status  int     `json:"status"`
	Cause   []cause `json:"cause"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{
		Message: message,
		Error:   code,
		Status:  status,
		Cause:   []cause{{Code: code, Description: message}},
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AccessToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.AccessToken {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid access token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createRequest struct {
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	Description       string          `json:"description"`
	PaymentMethodID   string          `json:"payment_method_id"`
	NotificationURL   string          `json:"notification_url"`
}

type paymentResponse struct {
	Payment
	PointOfInteraction struct {
		TransactionData struct {
			QRCode string `json:"qr_code"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func toResponse(p Payment) paymentResponse {
	var resp paymentResponse
	resp.Payment = p
	resp.PointOfInteraction.TransactionData.QRCode = p.QRCode
	return resp
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if !req.TransactionAmount.IsPositive() {
		writeError(w, http.StatusBadRequest, "invalid_amount", "transaction_amount must be positive")
		return
	}
	if s.store.rejecting() {
		writeError(w, http.StatusBadRequest, "rejected_by_provider", "Payment was rejected by the provider")
		return
	}

	p, replayed := s.store.create(r.Header.Get("X-Idempotency-Key"), Payment{
		Amount:          req.TransactionAmount,
		Description:     req.Description,
		NotificationURL: req.NotificationURL,
		CreatedAt:       time.Now().UTC(),
	})
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		writeJSON(w, http.StatusOK, toResponse(p))
		return
	}
	s.log.Info().Int64("id", p.ID).Str("amount", p.Amount.StringFixed(2)).Msg("收款已创建")
	writeJSON(w, http.StatusCreated, toResponse(p))
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "Payment not found")
		return 0, false
	}
	return id, true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookup(w, r)
	if !ok {
		return
	}
	p, ok := s.store.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Payment not found")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.list())
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, StatusApproved)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, StatusRejected)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, status string) {
	id, ok := s.lookup(w, r)
	if !ok {
		return
	}
	p, ok := s.store.setStatus(id, status)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Payment not found")
		return
	}
	s.log.Info().Int64("id", id).Str("status", status).Msg("收款状态已变更")

	if err := s.notify(r.Context(), p); err != nil {
		s.log.Warn().Err(err).Int64("id", id).Msg("发送付款通知失败")
	}
	writeJSON(w, http.StatusOK, toResponse(p))
}

type rejectAllRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleRejectAll(w http.ResponseWriter, r *http.Request) {
	var req rejectAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	s.store.setRejectAll(req.Enabled)
	writeJSON(w, http.StatusOK, req)
}

// Notification 是发送给商户的付款通知
type Notification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

// notify 向商户发送签名的通知，未配置密钥或地址时跳过
func (s *Server) notify(ctx context.Context, p Payment) error {
	url := p.NotificationURL
	if url == "" {
		url = s.cfg.NotificationURL
	}
	if s.signer == nil || url == "" {
		return nil
	}

	n := Notification{Type: "payment", Action: "payment.updated"}
	n.Data.ID = strconv.FormatInt(p.ID, 10)
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(token.HeaderName, s.signer.Sign(body))

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("商户返回了 %d", resp.StatusCode)
	}
	return nil
}
