package selection

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/SlpAus/luna-spins-backend/internal/catalog"
	"github.com/SlpAus/luna-spins-backend/pkg/tree"
)

// DiceSides 是骰子的面数
const DiceSides = 6

// ErrInvalidGuess 表示猜测的点数不在 1..6 之间
var ErrInvalidGuess = errors.New("selection: guess must be between 1 and 6")

// CardWeight 根据一张卡在历史中出现的次数计算抽中它的权重，出现越多权重越低
func CardWeight(timesSeen int) float64 {
	return 1.0 / float64(timesSeen+1)
}

// DrawCard 按反重复权重从牌堆中抽一张卡
func DrawCard(deck []catalog.Item, history []string, rng *rand.Rand) (catalog.Item, error) {
	if len(deck) == 0 {
		return catalog.Item{}, fmt.Errorf("%w: %q", ErrEmptyCategory, catalog.CategoryCard)
	}

	counts := make(map[string]int, len(history))
	for _, id := range history {
		counts[id]++
	}
	weights := make([]float64, len(deck))
	for i, card := range deck {
		weights[i] = CardWeight(counts[card.ID])
	}

	st, err := tree.New(weights)
	if err != nil {
		return catalog.Item{}, err
	}
	index, err := st.Sample(rng)
	if err != nil {
		return catalog.Item{}, err
	}
	return deck[index], nil
}

// SlotResult 是老虎机三个转轴的结果
type SlotResult struct {
	Action    catalog.Item `json:"action"`
	Target    catalog.Item `json:"target"`
	Intensity catalog.Item `json:"intensity"`
}

// Items 按转轴顺序返回三个结果
func (r SlotResult) Items() []catalog.Item {
	return []catalog.Item{r.Action, r.Target, r.Intensity}
}

// Text 把三个转轴组合成一句任务描述
func (r SlotResult) Text() string {
	return fmt.Sprintf("%s the %s %s", r.Action.Name, r.Target.Name, r.Intensity.Name)
}

func pickOne(reel []catalog.Item, category string, rng *rand.Rand) (catalog.Item, error) {
	_, item, err := Resolve(reel, rng)
	if err != nil {
		return catalog.Item{}, fmt.Errorf("%w: %q", err, category)
	}
	return item, nil
}

// PullSlots 从三个转轴各取一个条目
func PullSlots(actions, targets, intensities []catalog.Item, rng *rand.Rand) (SlotResult, error) {
	var res SlotResult
	var err error
	if res.Action, err = pickOne(actions, catalog.CategorySlotAction, rng); err != nil {
		return SlotResult{}, err
	}
	if res.Target, err = pickOne(targets, catalog.CategorySlotTarget, rng); err != nil {
		return SlotResult{}, err
	}
	if res.Intensity, err = pickOne(intensities, catalog.CategorySlotIntensity, rng); err != nil {
		return SlotResult{}, err
	}
	return res, nil
}

// DiceResult 是一次掷骰的结果
type DiceResult struct {
	Guess   int  `json:"guess"`
	Roll    int  `json:"roll"`
	Matched bool `json:"matched"`
}

// RollDice 掷一个六面骰并与猜测比较
func RollDice(guess int, rng *rand.Rand) (DiceResult, error) {
	if guess < 1 || guess > DiceSides {
		return DiceResult{}, ErrInvalidGuess
	}
	roll := rng.Intn(DiceSides) + 1
	return DiceResult{Guess: guess, Roll: roll, Matched: roll == guess}, nil
}
