package selection

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"

	"github.com/SlpAus/luna-spins-backend/internal/catalog"
)

// Source 是只读的内容目录
type Source interface {
	ByCategory(category string) []catalog.Item
}

// WheelSpin 是一次转盘的完整结果
type WheelSpin struct {
	Pool     []catalog.Item `json:"pool"`
	Rotation float64        `json:"rotation"`
	Index    int            `json:"index"`
	Winner   catalog.Item   `json:"winner"`
}

// Engine 把内容目录和一个随机数生成器组合在一起。
// rand.Rand 不是并发安全的，所以所有抽取都在锁内完成。
type Engine struct {
	mu     sync.Mutex
	source Source
	rng    *rand.Rand
}

// NewSeed 使用 crypto/rand 生成随机种子
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("读取随机种子失败: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// NewEngine 创建选择引擎，rng 为 nil 时使用加密安全的种子初始化
func NewEngine(source Source, rng *rand.Rand) (*Engine, error) {
	if rng == nil {
		seed, err := NewSeed()
		if err != nil {
			return nil, err
		}
		rng = rand.New(rand.NewSource(seed))
	}
	return &Engine{source: source, rng: rng}, nil
}

// Pool 构建指定分类的候选池，供前端绘制转盘
func (e *Engine) Pool(category string, history []string) ([]catalog.Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return BuildPool(e.source.ByCategory(category), category, history, e.rng)
}

// SpinWheel 构建候选池并转动转盘，赢家由最终角度决定
func (e *Engine) SpinWheel(category string, history []string, current float64) (WheelSpin, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, err := BuildPool(e.source.ByCategory(category), category, history, e.rng)
	if err != nil {
		return WheelSpin{}, err
	}
	rotation := SpinWheel(current, e.rng)
	index := SegmentAt(rotation, len(pool))
	return WheelSpin{
		Pool:     pool,
		Rotation: rotation,
		Index:    index,
		Winner:   pool[index],
	}, nil
}

// DrawCard 从牌堆中按权重抽一张卡
func (e *Engine) DrawCard(history []string) (catalog.Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return DrawCard(e.source.ByCategory(catalog.CategoryCard), history, e.rng)
}

// PullSlots 拉动老虎机
func (e *Engine) PullSlots() (SlotResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return PullSlots(
		e.source.ByCategory(catalog.CategorySlotAction),
		e.source.ByCategory(catalog.CategorySlotTarget),
		e.source.ByCategory(catalog.CategorySlotIntensity),
		e.rng,
	)
}

// RollDice 掷骰子
func (e *Engine) RollDice(guess int) (DiceResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return RollDice(guess, e.rng)
}
