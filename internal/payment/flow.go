package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/SlpAus/luna-spins-backend/internal/platform/kv"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrAlreadyVip       = errors.New("payment: user is already VIP")
	ErrCreateInProgress = errors.New("payment: a charge is already being created")
	ErrNoCharge         = errors.New("payment: no pending charge")
	ErrSuperseded       = errors.New("payment: charge was abandoned before the provider answered")
)

// State 是支付流程的状态
type State string

const (
	StateNoCharge        State = "no_charge"
	StateCreating        State = "creating"
	StateAwaitingPayment State = "awaiting_payment"
	StateApproved        State = "approved"
	StateFailed          State = "failed"
)

// Trigger 标识一次状态检查的来源
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerFocus   Trigger = "focus"
	TriggerWebhook Trigger = "webhook"
	// 停机前的最后一次检查
	TriggerShutdown Trigger = "shutdown"
)

const msgNotPaidYet = "还没有收到付款，请完成支付后再试"

// VipStore 是支付流程对进度存储的依赖
type VipStore interface {
	IsVip() bool
	SetVip(ctx context.Context) error
}

// View 是支付流程当前状态的快照
type View struct {
	State       State  `json:"state"`
	ChargeID    string `json:"chargeId,omitempty"`
	PaymentCode string `json:"paymentCode,omitempty"`
	Message     string `json:"message,omitempty"`
	Checking    bool   `json:"checking"`
}

// Flow 协调收款的创建和对账。
// 手动检查、回到前台和服务商通知三个来源共用同一个检查操作，同一时刻只有一次检查在进行，
// 其余调用等待这次检查的结果。服务商请求都在锁外进行。
type Flow struct {
	mu       sync.Mutex
	provider Provider
	store    VipStore
	backend  kv.Backend
	amount   decimal.Decimal
	log      zerolog.Logger

	state    State
	chargeID string
	code     string
	message  string

	attempt   uint64        // Abandon 时加一，使进行中的创建结果失效
	checkDone chan struct{} // 非 nil 表示有一次检查正在进行
}

// NewFlow 创建支付流程，如果本地保存了收款ID，则恢复到等待付款状态（付款码已丢失）
func NewFlow(ctx context.Context, provider Provider, store VipStore, backend kv.Backend, amount decimal.Decimal, log zerolog.Logger) (*Flow, error) {
	f := &Flow{
		provider: provider,
		store:    store,
		backend:  backend,
		amount:   amount,
		log:      log.With().Str("module", "payment").Logger(),
		state:    StateNoCharge,
	}

	if store.IsVip() {
		f.state = StateApproved
		// 之前批准后没来得及清除的指针
		if err := backend.Delete(ctx, kv.PaymentPointerKey); err != nil {
			f.log.Warn().Err(err).Msg("清除支付指针失败")
		}
		return f, nil
	}

	id, ok, err := backend.Get(ctx, kv.PaymentPointerKey)
	if err != nil {
		return nil, fmt.Errorf("读取支付指针失败: %w", err)
	}
	if ok && id != "" {
		f.state = StateAwaitingPayment
		f.chargeID = id
		f.log.Info().Str("charge", id).Msg("恢复未完成的支付")
	}
	return f, nil
}

func (f *Flow) viewLocked() View {
	return View{
		State:       f.state,
		ChargeID:    f.chargeID,
		PaymentCode: f.code,
		Message:     f.message,
		Checking:    f.checkDone != nil,
	}
}

// View 返回当前状态
func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

// CreateCharge 向服务商申请一笔新的收款。失败时进入 Failed 状态并原样保留服务商的信息，不会自动重试。
func (f *Flow) CreateCharge(ctx context.Context) (View, error) {
	if f.store.IsVip() {
		return f.View(), ErrAlreadyVip
	}

	f.mu.Lock()
	if f.state == StateCreating {
		f.mu.Unlock()
		return f.View(), ErrCreateInProgress
	}
	prevState := f.state
	f.state = StateCreating
	f.message = ""
	attempt := f.attempt
	f.mu.Unlock()

	key := uuid.NewString()
	charge, err := f.provider.CreateCharge(ctx, f.amount, key)

	f.mu.Lock()
	defer f.mu.Unlock()

	if attempt != f.attempt {
		f.log.Info().Str("charge", charge.ID).Msg("收款已被放弃，忽略服务商的响应")
		return f.viewLocked(), ErrSuperseded
	}
	if f.state == StateApproved {
		// 创建期间旧的收款已经被确认
		return f.viewLocked(), ErrAlreadyVip
	}

	if err != nil {
		f.state = StateFailed
		f.message = UserMessage(err)
		f.log.Warn().Err(err).Str("from", string(prevState)).Msg("创建收款失败")
		return f.viewLocked(), err
	}

	if err := f.backend.Set(ctx, kv.PaymentPointerKey, charge.ID); err != nil {
		// 内存中仍然保留这笔收款，本次会话内可以正常对账
		f.log.Error().Err(err).Str("charge", charge.ID).Msg("保存支付指针失败")
	}
	f.state = StateAwaitingPayment
	f.chargeID = charge.ID
	f.code = charge.PaymentCode
	f.log.Info().Str("charge", charge.ID).Str("amount", f.amount.StringFixed(2)).Msg("收款已创建")
	return f.viewLocked(), nil
}

// Check 向服务商查询当前收款的状态。批准后设置VIP并清除指针，重复调用是安全的。
// 已有检查在进行时不会发起新的请求，而是等待那次检查的结果。
func (f *Flow) Check(ctx context.Context, trigger Trigger) (View, error) {
	f.mu.Lock()
	if f.state == StateApproved {
		defer f.mu.Unlock()
		return f.viewLocked(), nil
	}
	if f.chargeID == "" {
		defer f.mu.Unlock()
		return f.viewLocked(), ErrNoCharge
	}
	if done := f.checkDone; done != nil {
		f.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return f.View(), ctx.Err()
		}
		return f.View(), nil
	}

	done := make(chan struct{})
	f.checkDone = done
	id := f.chargeID
	f.mu.Unlock()

	status, err := f.provider.ChargeStatus(ctx, id)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkDone = nil
	defer close(done)

	log := f.log.With().Str("charge", id).Str("trigger", string(trigger)).Logger()

	if f.chargeID != id || f.state == StateApproved {
		log.Debug().Msg("收款已变化，忽略过期的响应")
		return f.viewLocked(), nil
	}
	if f.state != StateCreating {
		f.state = StateAwaitingPayment
	}

	if err != nil {
		f.message = UserMessage(err)
		log.Warn().Err(err).Msg("查询收款状态失败")
		return f.viewLocked(), err
	}
	if !status.Approved {
		f.message = msgNotPaidYet
		log.Debug().Str("status", status.Raw).Msg("收款尚未批准")
		return f.viewLocked(), nil
	}

	if err := f.store.SetVip(ctx); err != nil {
		f.message = "付款已确认，但保存VIP状态失败，请重试"
		log.Error().Err(err).Msg("设置VIP失败")
		return f.viewLocked(), err
	}
	if err := f.backend.Delete(ctx, kv.PaymentPointerKey); err != nil {
		log.Warn().Err(err).Msg("清除支付指针失败")
	}
	f.state = StateApproved
	f.chargeID = ""
	f.code = ""
	f.message = ""
	log.Info().Msg("付款已确认，用户成为VIP")
	return f.viewLocked(), nil
}

// OnFocus 在应用回到前台时调用，只有存在未完成的收款且用户还不是VIP时才会检查
func (f *Flow) OnFocus(ctx context.Context) (View, bool, error) {
	if f.store.IsVip() {
		return f.View(), false, nil
	}
	f.mu.Lock()
	pending := f.chargeID != ""
	f.mu.Unlock()
	if !pending {
		return f.View(), false, nil
	}
	view, err := f.Check(ctx, TriggerFocus)
	return view, true, err
}

// Notify 处理服务商的异步通知，只有通知的是当前收款时才会检查
func (f *Flow) Notify(ctx context.Context, chargeID string) (View, bool, error) {
	f.mu.Lock()
	current := f.chargeID
	f.mu.Unlock()
	if chargeID == "" || chargeID != current {
		return f.View(), false, nil
	}
	view, err := f.Check(ctx, TriggerWebhook)
	return view, true, err
}

// Abandon 由用户主动放弃当前收款，删除本地指针
func (f *Flow) Abandon(ctx context.Context) (View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateApproved {
		return f.viewLocked(), nil
	}
	if err := f.backend.Delete(ctx, kv.PaymentPointerKey); err != nil {
		return f.viewLocked(), fmt.Errorf("删除支付指针失败: %w", err)
	}
	if f.chargeID != "" {
		f.log.Info().Str("charge", f.chargeID).Msg("用户放弃了收款")
	}
	f.attempt++
	f.state = StateNoCharge
	f.chargeID = ""
	f.code = ""
	f.message = ""
	return f.viewLocked(), nil
}
