package shop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/SlpAus/luna-spins-backend/internal/platform/config"
	"github.com/SlpAus/luna-spins-backend/internal/progress"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownFeature  = errors.New("shop: unknown feature")
	ErrAlreadyUnlocked = errors.New("shop: feature already unlocked")
	ErrLevelLocked     = errors.New("shop: level requirement not met")
)

// Feature 是商店里可以用金币解锁的功能
type Feature struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Cost          int    `json:"cost"`
	LevelRequired int    `json:"levelRequired"`
}

// Listing 是带有当前用户状态的功能
type Listing struct {
	Feature
	Unlocked   bool `json:"unlocked"`
	LevelMet   bool `json:"levelMet"`
	Affordable bool `json:"affordable"`
}

// Wallet 是商店对进度存储的依赖
type Wallet interface {
	Snapshot(ctx context.Context) progress.UserProgress
	PurchaseFeature(ctx context.Context, featureID string, cost int) error
}

// Shop 在调用进度存储之前检查功能是否存在、是否已解锁以及等级要求
type Shop struct {
	mu       sync.Mutex // 串行化购买，避免检查与扣费之间被并发的购买插入
	features []Feature
	byID     map[string]Feature
	wallet   Wallet
	log      zerolog.Logger
}

// FeaturesFromConfig 转换配置中的功能列表
func FeaturesFromConfig(cfg config.ShopConfig) []Feature {
	features := make([]Feature, 0, len(cfg.Features))
	for _, f := range cfg.Features {
		features = append(features, Feature(f))
	}
	return features
}

// New 创建商店，功能ID不能重复
func New(features []Feature, wallet Wallet, log zerolog.Logger) (*Shop, error) {
	byID := make(map[string]Feature, len(features))
	for _, f := range features {
		if f.ID == "" {
			return nil, fmt.Errorf("功能ID不能为空")
		}
		if _, dup := byID[f.ID]; dup {
			return nil, fmt.Errorf("功能ID重复: %s", f.ID)
		}
		if f.Cost < 0 {
			return nil, fmt.Errorf("功能 %s 的价格为负数", f.ID)
		}
		byID[f.ID] = f
	}
	return &Shop{
		features: features,
		byID:     byID,
		wallet:   wallet,
		log:      log.With().Str("module", "shop").Logger(),
	}, nil
}

// List 返回所有功能及其对当前用户的状态
func (s *Shop) List(ctx context.Context) []Listing {
	p := s.wallet.Snapshot(ctx)
	listings := make([]Listing, 0, len(s.features))
	for _, f := range s.features {
		listings = append(listings, Listing{
			Feature:    f,
			Unlocked:   p.HasFeature(f.ID),
			LevelMet:   p.CompletedCount >= f.LevelRequired,
			Affordable: p.Coins >= f.Cost,
		})
	}
	return listings
}

// Purchase 解锁一个功能。已解锁的功能不会被重复购买。
func (s *Shop) Purchase(ctx context.Context, featureID string) error {
	f, ok := s.byID[featureID]
	if !ok {
		return ErrUnknownFeature
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.wallet.Snapshot(ctx)
	if p.HasFeature(f.ID) {
		return ErrAlreadyUnlocked
	}
	if p.CompletedCount < f.LevelRequired {
		return ErrLevelLocked
	}
	if err := s.wallet.PurchaseFeature(ctx, f.ID, f.Cost); err != nil {
		return err
	}
	s.log.Info().Str("feature", f.ID).Int("cost", f.Cost).Msg("功能已解锁")
	return nil
}
