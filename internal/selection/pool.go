package selection

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/SlpAus/luna-spins-backend/internal/catalog"
)

// PoolSize 是候选池的固定大小，转盘总是12个扇区
const PoolSize = 12

// ErrEmptyCategory 表示请求的分类里没有任何内容，属于配置错误
var ErrEmptyCategory = errors.New("selection: category has no items")

// BuildPool 从目录中筛选出指定分类的条目，构建固定大小的候选池。
// 优先使用不在 history 中的条目；如果这样的条目少于 PoolSize，则退回到整个分类（允许重复）。
// 结果会被打乱，并循环填充到 PoolSize 个。
func BuildPool(items []catalog.Item, category string, history []string, rng *rand.Rand) ([]catalog.Item, error) {
	var all []catalog.Item
	for _, item := range items {
		if item.Category == category {
			all = append(all, item)
		}
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyCategory, category)
	}

	seen := make(map[string]struct{}, len(history))
	for _, id := range history {
		seen[id] = struct{}{}
	}
	fresh := make([]catalog.Item, 0, len(all))
	for _, item := range all {
		if _, ok := seen[item.ID]; !ok {
			fresh = append(fresh, item)
		}
	}

	base := fresh
	if len(fresh) < PoolSize {
		base = all
	}

	// 在副本上打乱，不影响调用方的切片
	shuffled := make([]catalog.Item, len(base))
	copy(shuffled, base)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	pool := make([]catalog.Item, PoolSize)
	for i := range pool {
		pool[i] = shuffled[i%len(shuffled)]
	}
	return pool, nil
}

// Resolve 在候选池中均匀抽取一个下标，老虎机的每个转轴都用它取结果。
// 转盘的结果由角度决定，见 SegmentAt。
func Resolve(pool []catalog.Item, rng *rand.Rand) (int, catalog.Item, error) {
	if len(pool) == 0 {
		return 0, catalog.Item{}, ErrEmptyCategory
	}
	index := rng.Intn(len(pool))
	return index, pool[index], nil
}

// SpinWheel 从当前角度出发生成一个新的最终角度（单位为度）。
// 至少转12圈，最多再多转8圈，最后落在一个随机的角度上。
func SpinWheel(current float64, rng *rand.Rand) float64 {
	extraSpins := 12 + rng.Float64()*8
	landing := rng.Float64() * 360
	return current + extraSpins*360 + landing
}

// SegmentAt 把转盘的角度映射到指针所指的扇区下标。
// 角度为0时扇区0的中心正对指针，转盘每顺时针转过一个扇区，指针就落到前一个扇区。
// 相同的角度总是得到相同的扇区，动画终点和逻辑结果因此一致。
func SegmentAt(rotation float64, segments int) int {
	if segments <= 0 {
		return 0
	}
	seg := 360 / float64(segments)
	r := math.Mod(rotation, 360)
	if r < 0 {
		r += 360
	}
	offset := math.Mod(360-r+seg/2, 360)
	index := int(math.Floor(offset / seg))
	// 浮点误差可能让 offset 恰好等于360
	if index >= segments {
		index = segments - 1
	}
	return index
}
