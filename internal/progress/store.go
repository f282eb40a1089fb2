package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/SlpAus/luna-spins-backend/internal/platform/clock"
	"github.com/SlpAus/luna-spins-backend/internal/platform/kv"
	"github.com/rs/zerolog"
)

var (
	ErrEmptyName         = errors.New("progress: names must not be empty")
	ErrNegativeAmount    = errors.New("progress: amount must not be negative")
	ErrEmptyItem         = errors.New("progress: identifier must not be empty")
	ErrInsufficientCoins = errors.New("progress: insufficient coins")
	ErrUnknownKind       = errors.New("progress: unknown game kind")
	ErrInvalidSettings   = errors.New("progress: invalid settings")
)

// Store 是用户进度的唯一事实来源。
// 每个操作都在锁内计算新状态、先持久化、成功后再替换内存状态，
// 因此持久化失败时内存状态保持不变。
type Store struct {
	mu       sync.Mutex
	backend  kv.Backend
	clock    clock.Clock
	settings Settings
	log      zerolog.Logger

	state UserProgress

	subs    map[int]func(UserProgress)
	nextSub int
}

// Open 读取已保存的进度，不存在时创建一条新记录，然后执行一次惰性重置
func Open(ctx context.Context, backend kv.Backend, clk clock.Clock, settings Settings, log zerolog.Logger) (*Store, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		backend:  backend,
		clock:    clk,
		settings: settings,
		log:      log.With().Str("module", "progress").Logger(),
		subs:     make(map[int]func(UserProgress)),
	}

	raw, ok, err := backend.Get(ctx, kv.ProgressKey)
	if err != nil {
		return nil, fmt.Errorf("读取用户进度失败: %w", err)
	}

	if !ok {
		fresh := newProgress(settings)
		if err := s.persist(ctx, fresh); err != nil {
			return nil, err
		}
		s.state = fresh
		s.log.Info().Msg("已创建新的用户进度")
		return s, nil
	}

	var loaded UserProgress
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		return nil, fmt.Errorf("解析用户进度失败: %w", err)
	}
	s.state = s.normalize(loaded)

	next := s.state.clone()
	if s.resetIfExpired(&next) {
		if err := s.persist(ctx, next); err != nil {
			return nil, err
		}
		s.state = next
	}
	s.log.Info().Int("coins", s.state.Coins).Bool("vip", s.state.IsVip).Msg("用户进度加载完成")
	return s, nil
}

// normalize 补齐旧记录里缺失的字段
func (s *Store) normalize(p UserProgress) UserProgress {
	if p.History == nil {
		p.History = []string{}
	}
	if p.UnlockedFeatures == nil {
		p.UnlockedFeatures = []string{}
	}
	if p.TutorialsSeen == nil {
		p.TutorialsSeen = []string{}
	}
	if p.SpinQuotas == nil {
		p.SpinQuotas = make(map[GameKind]int, len(Kinds))
	}
	for _, k := range Kinds {
		if _, ok := p.SpinQuotas[k]; !ok {
			p.SpinQuotas[k] = s.settings.DefaultQuotas[k]
		}
	}
	return p
}

func (s *Store) persist(ctx context.Context, p UserProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("序列化用户进度失败: %w", err)
	}
	if err := s.backend.Set(ctx, kv.ProgressKey, string(data)); err != nil {
		return fmt.Errorf("保存用户进度失败: %w", err)
	}
	return nil
}

// commit 持久化新状态，成功后替换内存状态并通知订阅者。调用方必须持有锁。
func (s *Store) commit(ctx context.Context, next UserProgress) error {
	if err := s.persist(ctx, next); err != nil {
		s.log.Error().Err(err).Msg("进度写入失败，状态未改变")
		return err
	}
	s.state = next
	for _, fn := range s.subs {
		fn(next.clone())
	}
	return nil
}

// resetIfExpired 在配额窗口已满时恢复所有配额，窗口从现在重新开始
func (s *Store) resetIfExpired(p *UserProgress) bool {
	if p.QuotaWindowStart == nil {
		return false
	}
	now := s.clock.Now()
	if now.Sub(*p.QuotaWindowStart) < s.settings.Window {
		return false
	}
	p.SpinQuotas = s.settings.freshQuotas()
	p.QuotaWindowStart = &now
	return true
}

// Subscribe 注册一个快照回调，每次成功提交后都会收到最新快照。
// 回调在存储的锁内执行，不能阻塞，也不能回调 Store 的方法。
func (s *Store) Subscribe(fn func(UserProgress)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Snapshot 返回当前进度的副本，读取时会先检查配额是否需要重置
func (s *Store) Snapshot(ctx context.Context) UserProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	if s.resetIfExpired(&next) {
		if err := s.commit(ctx, next); err != nil {
			s.log.Warn().Err(err).Msg("惰性重置配额失败，返回旧状态")
		}
	}
	return s.state.clone()
}

// IsVip 返回用户是否为VIP
func (s *Store) IsVip() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsVip
}

// CompleteOnboarding 设置双方的名字并标记完成引导。重复调用会覆盖名字。
func (s *Store) CompleteOnboarding(ctx context.Context, self, partner string) error {
	self, partner = strings.TrimSpace(self), strings.TrimSpace(partner)
	if self == "" || partner == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	next.UserName = self
	next.PartnerName = partner
	next.Onboarded = true
	return s.commit(ctx, next)
}

// ConsumeSpin 消耗一次指定小游戏的配额。
// VIP 总是返回 true 且不改动配额；非VIP配额为0时返回 false 且不做任何修改。
func (s *Store) ConsumeSpin(ctx context.Context, kind GameKind) (bool, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	reset := s.resetIfExpired(&next)

	if next.IsVip || next.SpinQuotas[kind] <= 0 {
		if reset {
			if err := s.commit(ctx, next); err != nil {
				return false, err
			}
		}
		return next.IsVip, nil
	}

	next.SpinQuotas[kind]--
	if next.QuotaWindowStart == nil {
		now := s.clock.Now()
		next.QuotaWindowStart = &now
	}
	if err := s.commit(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// CommitReward 记录一次完成的任务：增加金币，把条目放到历史最前面，完成次数加一
func (s *Store) CommitReward(ctx context.Context, itemID string, amount int) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	if itemID == "" {
		return ErrEmptyItem
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	next.Coins += amount
	next.CompletedCount++
	next.History = append([]string{itemID}, next.History...)
	if limit := s.settings.HistoryLimit; limit > 0 && len(next.History) > limit {
		next.History = next.History[:limit]
	}
	return s.commit(ctx, next)
}

// PurchaseFeature 用金币解锁功能，金币不足时返回 ErrInsufficientCoins 且不做修改。
// 不检查功能是否已解锁，调用方需要先检查。
func (s *Store) PurchaseFeature(ctx context.Context, featureID string, cost int) error {
	if cost < 0 {
		return ErrNegativeAmount
	}
	if featureID == "" {
		return ErrEmptyItem
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Coins < cost {
		return ErrInsufficientCoins
	}
	next := s.state.clone()
	next.Coins -= cost
	next.UnlockedFeatures, _ = insertSorted(next.UnlockedFeatures, featureID)
	return s.commit(ctx, next)
}

// MarkTutorialSeen 记录教程已看过，重复调用不会写入
func (s *Store) MarkTutorialSeen(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyItem
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	var added bool
	next.TutorialsSeen, added = insertSorted(next.TutorialsSeen, id)
	if !added {
		return nil
	}
	return s.commit(ctx, next)
}

// SetVip 单向地把用户设为VIP，不改动配额和金币；已经是VIP时什么也不做
func (s *Store) SetVip(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsVip {
		return nil
	}
	next := s.state.clone()
	next.IsVip = true
	if err := s.commit(ctx, next); err != nil {
		return err
	}
	s.log.Info().Msg("用户已成为VIP")
	return nil
}

// ResetQuotasIfExpired 在配额窗口满7天时恢复配额，返回是否发生了重置
func (s *Store) ResetQuotasIfExpired(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	if !s.resetIfExpired(&next) {
		return false, nil
	}
	if err := s.commit(ctx, next); err != nil {
		return false, err
	}
	s.log.Info().Msg("配额窗口已到期，配额已恢复")
	return true, nil
}

// DaysUntilReset 返回距离配额恢复还有几天（向上取整，最小为0）。
// 没有打开的窗口时返回完整窗口的天数。这是纯读取，不会触发重置。
func (s *Store) DaysUntilReset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return daysUntilReset(s.state.QuotaWindowStart, s.clock.Now(), s.settings.Window)
}

func daysUntilReset(start *time.Time, now time.Time, window time.Duration) int {
	const day = 24 * time.Hour
	if start == nil {
		return int(math.Ceil(float64(window) / float64(day)))
	}
	remaining := window - now.Sub(*start)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(float64(remaining) / float64(day)))
}
