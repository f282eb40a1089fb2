// Package paysim 是一个本地的支付服务商模拟器，实现创建收款、查询状态和带签名的付款通知。
package paysim

import (
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// 收款状态
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Payment 是模拟器中保存的一笔收款
type Payment struct {
	ID              int64           `json:"id"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"transaction_amount"`
	Description     string          `json:"description"`
	NotificationURL string          `json:"notification_url,omitempty"`
	QRCode          string          `json:"-"`
	CreatedAt       time.Time       `json:"date_created"`
}

// store 按ID和幂等键保存收款
type store struct {
	mu        sync.Mutex
	payments  map[int64]*Payment
	byKey     map[string]int64
	nextID    int64
	rejectAll bool
}

func newStore() *store {
	return &store{
		payments: make(map[int64]*Payment),
		byKey:    make(map[string]int64),
		nextID:   1000001,
	}
}

// create 创建一笔收款；相同的幂等键返回同一笔收款，replayed 为 true
func (s *store) create(key string, p Payment) (created Payment, replayed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		if id, ok := s.byKey[key]; ok {
			return *s.payments[id], true
		}
	}
	p.ID = s.nextID
	s.nextID++
	p.Status = StatusPending
	p.QRCode = "00020126580014br.gov.bcb.pix0136sim-" + strconv.FormatInt(p.ID, 10) + "5204000053039865802BR6304SIM0"
	s.payments[p.ID] = &p
	if key != "" {
		s.byKey[key] = p.ID
	}
	return p, false
}

func (s *store) get(id int64) (Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return Payment{}, false
	}
	return *p, true
}

func (s *store) setStatus(id int64, status string) (Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return Payment{}, false
	}
	p.Status = status
	return *p, true
}

func (s *store) list() []Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Payment, 0, len(s.payments))
	for id := int64(1000001); id < s.nextID; id++ {
		if p, ok := s.payments[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

func (s *store) setRejectAll(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectAll = v
}

func (s *store) rejecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejectAll
}
