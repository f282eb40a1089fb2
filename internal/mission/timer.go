package mission

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/SlpAus/luna-spins-backend/pkg/lifecycle"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNoMission    = errors.New("mission: no active mission")
	ErrMissionBusy  = errors.New("mission: another mission is still pending")
	ErrNotOffered   = errors.New("mission: mission has already been started")
	ErrNotClaimable = errors.New("mission: mission is not claimable yet")
	ErrCancelLocked = errors.New("mission: cannot cancel while counting down")
)

// State 是任务计时器的状态
type State string

const (
	StateIdle      State = "idle"
	StateOffered   State = "offered"
	StateCounting  State = "counting"
	StateClaimable State = "claimable"
)

// TickInterval 是倒计时的步长
const TickInterval = time.Second

// Offer 是一个小游戏产生的待确认任务
type Offer struct {
	Game            string `json:"game"`
	ItemID          string `json:"itemId"`
	Text            string `json:"text"`
	Reward          int    `json:"reward"`
	DurationSeconds int    `json:"durationSeconds"`
}

// Mission 是当前的任务。Remaining 为 nil 表示还没开始，0 表示可以领取，大于0表示正在倒计时。
type Mission struct {
	ID string `json:"id"`
	Offer
	Remaining *int `json:"remaining"`
}

func (m Mission) state() State {
	switch {
	case m.Remaining == nil:
		return StateOffered
	case *m.Remaining > 0:
		return StateCounting
	default:
		return StateClaimable
	}
}

func (m Mission) clone() Mission {
	if m.Remaining != nil {
		r := *m.Remaining
		m.Remaining = &r
	}
	return m
}

// Committer 是领取奖励时写入的目标
type Committer interface {
	CommitReward(ctx context.Context, itemID string, amount int) error
}

// Ticker 是一个可以停止的周期任务
type Ticker interface {
	Stop()
}

// Scheduler 周期性地调用 tick，直到返回的 Ticker 被停止
type Scheduler interface {
	Schedule(interval time.Duration, tick func()) Ticker
}

type lifecycleScheduler struct {
	ctx context.Context
}

// NewScheduler 返回基于 lifecycle.Every 的调度器，ctx 结束时所有倒计时一起停止
func NewScheduler(ctx context.Context) Scheduler {
	return lifecycleScheduler{ctx: ctx}
}

func (s lifecycleScheduler) Schedule(interval time.Duration, tick func()) Ticker {
	return lifecycle.Every(s.ctx, interval, tick)
}

// Timer 管理当前任务的状态机，任务状态不持久化
type Timer struct {
	mu        sync.Mutex
	committer Committer
	scheduler Scheduler
	log       zerolog.Logger

	current    *Mission
	ticker     Ticker
	generation uint64 // 每次拆除倒计时加一，旧的 tick 据此被忽略
}

func NewTimer(committer Committer, scheduler Scheduler, log zerolog.Logger) *Timer {
	return &Timer{
		committer: committer,
		scheduler: scheduler,
		log:       log.With().Str("module", "mission").Logger(),
	}
}

// State 返回当前状态和任务副本
func (t *Timer) State() (State, *Mission) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return StateIdle, nil
	}
	m := t.current.clone()
	return m.state(), &m
}

// Pending 报告是否有还没结束的任务（已提供、倒计时中或可领取）
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil
}

// Offer 提供一个新任务，只能在 Idle 状态下进行
func (t *Timer) Offer(o Offer) (Mission, error) {
	return t.OfferWith(o, nil)
}

// OfferWith 在 Idle 状态下先执行 reserve（例如扣除配额），成功后再放入新任务。
// 检查状态、reserve 和放入任务都在同一把锁内，期间 Start 等操作无法插入；
// 非 Idle 时 reserve 不会被调用，reserve 失败时计时器保持 Idle。
// reserve 不能回调 Timer 的方法。
func (t *Timer) OfferWith(o Offer, reserve func() error) (Mission, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		return Mission{}, ErrMissionBusy
	}
	if reserve != nil {
		if err := reserve(); err != nil {
			return Mission{}, err
		}
	}
	if o.DurationSeconds < 0 {
		o.DurationSeconds = 0
	}
	m := &Mission{ID: uuid.NewString(), Offer: o}
	t.current = m
	t.log.Debug().Str("mission", m.ID).Str("item", o.ItemID).Msg("新任务")
	return m.clone(), nil
}

// Start 开始倒计时，只能从 Offered 状态开始
func (t *Timer) Start() (Mission, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return Mission{}, ErrNoMission
	}
	if t.current.Remaining != nil {
		return Mission{}, ErrNotOffered
	}

	remaining := t.current.DurationSeconds
	t.current.Remaining = &remaining
	if remaining > 0 {
		gen := t.generation
		t.ticker = t.scheduler.Schedule(TickInterval, func() { t.tick(gen) })
	}
	return t.current.clone(), nil
}

func (t *Timer) tick(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.generation || t.current == nil || t.current.Remaining == nil {
		return
	}
	if *t.current.Remaining > 0 {
		*t.current.Remaining--
	}
	if *t.current.Remaining == 0 {
		t.stopTicker()
		t.log.Debug().Str("mission", t.current.ID).Msg("任务可以领取")
	}
}

// stopTicker 停止倒计时并让之后到达的 tick 失效。调用方必须持有锁。
func (t *Timer) stopTicker() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	t.generation++
}

// Claim 领取奖励，只有倒计时归零后才能领取。
// 写入失败时任务保持可领取状态，可以重试。
func (t *Timer) Claim(ctx context.Context) (Mission, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return Mission{}, ErrNoMission
	}
	if t.current.state() != StateClaimable {
		return Mission{}, ErrNotClaimable
	}
	m := t.current.clone()
	if err := t.committer.CommitReward(ctx, m.ItemID, m.Reward); err != nil {
		t.log.Error().Err(err).Str("mission", m.ID).Msg("领取奖励失败")
		return Mission{}, err
	}
	t.current = nil
	t.log.Info().Str("mission", m.ID).Int("reward", m.Reward).Msg("任务奖励已领取")
	return m, nil
}

// Cancel 放弃任务且不发放奖励，倒计时进行中不允许放弃
func (t *Timer) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return ErrNoMission
	}
	if t.current.state() == StateCounting {
		return ErrCancelLocked
	}
	t.current = nil
	return nil
}

// Teardown 在宿主界面被关闭时调用：停止倒计时并丢弃任务，不发放任何奖励
func (t *Timer) Teardown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTicker()
	t.current = nil
}
