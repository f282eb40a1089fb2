package game

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/SlpAus/luna-spins-backend/internal/catalog"
	"github.com/SlpAus/luna-spins-backend/internal/mission"
	"github.com/SlpAus/luna-spins-backend/internal/platform/config"
	"github.com/SlpAus/luna-spins-backend/internal/progress"
	"github.com/SlpAus/luna-spins-backend/internal/selection"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNoSpinsLeft     = errors.New("game: no spins left")
	ErrUnknownCategory = errors.New("game: unknown wheel category")
)

// QuotaError 表示某个小游戏的配额已用完
type QuotaError struct {
	Kind           progress.GameKind
	DaysUntilReset int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("no %s spins left, resets in %d days", e.Kind, e.DaysUntilReset)
}

func (e *QuotaError) Is(target error) bool { return target == ErrNoSpinsLeft }

// Progress 是进度存储中小游戏需要的部分
type Progress interface {
	Snapshot(ctx context.Context) progress.UserProgress
	ConsumeSpin(ctx context.Context, kind progress.GameKind) (bool, error)
	CommitReward(ctx context.Context, itemID string, amount int) error
	DaysUntilReset() int
}

// Missions 是任务计时器中小游戏需要的部分
type Missions interface {
	OfferWith(o mission.Offer, reserve func() error) (mission.Mission, error)
}

// WheelRound 是一次转盘的结果
type WheelRound struct {
	Spin    selection.WheelSpin `json:"spin"`
	Mission mission.Mission     `json:"mission"`
}

// CardRound 是一次抽卡的结果
type CardRound struct {
	Card    catalog.Item    `json:"card"`
	Mission mission.Mission `json:"mission"`
}

// SlotRound 是一次老虎机的结果
type SlotRound struct {
	Reels   selection.SlotResult `json:"reels"`
	Mission mission.Mission      `json:"mission"`
}

// DiceRound 是一次掷骰的结果，猜中时奖励立即发放
type DiceRound struct {
	selection.DiceResult
	Reward int    `json:"reward"`
	ItemID string `json:"itemId,omitempty"`
}

// Service 把配额、随机选择和任务串成一轮小游戏。
// 每一轮在锁内完成，同一时刻只有一轮在读取历史并做选择。
type Service struct {
	mu       sync.Mutex
	progress Progress
	engine   *selection.Engine
	missions Missions
	cfg      config.GameConfig
	log      zerolog.Logger
}

func NewService(p Progress, engine *selection.Engine, missions Missions, cfg config.GameConfig, log zerolog.Logger) *Service {
	return &Service{
		progress: p,
		engine:   engine,
		missions: missions,
		cfg:      cfg,
		log:      log.With().Str("module", "game").Logger(),
	}
}

func validCategory(category string) bool {
	for _, c := range catalog.WheelCategories {
		if c == category {
			return true
		}
	}
	return false
}

// consume 扣除一次配额，配额不足时返回 QuotaError
func (s *Service) consume(ctx context.Context, kind progress.GameKind) error {
	ok, err := s.progress.ConsumeSpin(ctx, kind)
	if err != nil {
		return err
	}
	if !ok {
		return &QuotaError{Kind: kind, DaysUntilReset: s.progress.DaysUntilReset()}
	}
	return nil
}

// offer 在任务计时器空闲时扣除配额并提供任务。选择结果已经算好，没有副作用。
// 空闲检查和扣除配额在计时器的锁内一起完成，被拒绝的一轮不会消耗配额。
func (s *Service) offer(ctx context.Context, kind progress.GameKind, o mission.Offer) (mission.Mission, error) {
	m, err := s.missions.OfferWith(o, func() error { return s.consume(ctx, kind) })
	if err != nil {
		return mission.Mission{}, err
	}
	s.log.Debug().Str("game", string(kind)).Str("item", o.ItemID).Msg("新一轮游戏")
	return m, nil
}

// WheelPool 返回当前转盘上的12个扇区，不消耗配额
func (s *Service) WheelPool(ctx context.Context, category string) ([]catalog.Item, error) {
	if !validCategory(category) {
		return nil, ErrUnknownCategory
	}
	return s.engine.Pool(category, s.progress.Snapshot(ctx).History)
}

// SpinWheel 转动转盘，从 current 角度开始
func (s *Service) SpinWheel(ctx context.Context, category string, current float64) (WheelRound, error) {
	if !validCategory(category) {
		return WheelRound{}, ErrUnknownCategory
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	spin, err := s.engine.SpinWheel(category, s.progress.Snapshot(ctx).History, current)
	if err != nil {
		return WheelRound{}, err
	}
	m, err := s.offer(ctx, progress.KindWheel, mission.Offer{
		Game:            string(progress.KindWheel),
		ItemID:          spin.Winner.ID,
		Text:            spin.Winner.Name + ": " + spin.Winner.Description,
		Reward:          s.cfg.Wheel.Reward,
		DurationSeconds: s.cfg.Wheel.DurationSeconds,
	})
	if err != nil {
		return WheelRound{}, err
	}
	return WheelRound{Spin: spin, Mission: m}, nil
}

// DrawCard 抽一张挑战卡
func (s *Service) DrawCard(ctx context.Context) (CardRound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, err := s.engine.DrawCard(s.progress.Snapshot(ctx).History)
	if err != nil {
		return CardRound{}, err
	}
	m, err := s.offer(ctx, progress.KindCards, mission.Offer{
		Game:            string(progress.KindCards),
		ItemID:          card.ID,
		Text:            card.Description,
		Reward:          s.cfg.Cards.Reward,
		DurationSeconds: s.cfg.Cards.DurationSeconds,
	})
	if err != nil {
		return CardRound{}, err
	}
	return CardRound{Card: card, Mission: m}, nil
}

// PullSlots 拉动老虎机
func (s *Service) PullSlots(ctx context.Context) (SlotRound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reels, err := s.engine.PullSlots()
	if err != nil {
		return SlotRound{}, err
	}
	m, err := s.offer(ctx, progress.KindSlots, mission.Offer{
		Game:            string(progress.KindSlots),
		ItemID:          reels.Action.ID + "+" + reels.Target.ID + "+" + reels.Intensity.ID,
		Text:            reels.Text(),
		Reward:          s.cfg.Slots.Reward,
		DurationSeconds: s.cfg.Slots.DurationSeconds,
	})
	if err != nil {
		return SlotRound{}, err
	}
	return SlotRound{Reels: reels, Mission: m}, nil
}

// RollDice 掷骰子，猜中时立即以唯一的条目ID发放奖励
func (s *Service) RollDice(ctx context.Context, guess int) (DiceRound, error) {
	if guess < 1 || guess > selection.DiceSides {
		return DiceRound{}, selection.ErrInvalidGuess
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.consume(ctx, progress.KindDice); err != nil {
		return DiceRound{}, err
	}
	res, err := s.engine.RollDice(guess)
	if err != nil {
		return DiceRound{}, err
	}
	round := DiceRound{DiceResult: res}
	if !res.Matched {
		return round, nil
	}

	round.ItemID = "dice-turn-" + uuid.NewString()
	if err := s.progress.CommitReward(ctx, round.ItemID, s.cfg.DiceReward); err != nil {
		return DiceRound{}, err
	}
	round.Reward = s.cfg.DiceReward
	s.log.Info().Int("roll", res.Roll).Int("reward", round.Reward).Msg("骰子猜中")
	return round, nil
}
