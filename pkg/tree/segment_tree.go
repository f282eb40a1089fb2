package tree

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand"
)

// ErrNoWeight 表示树中所有权重都为0，无法抽样
var ErrNoWeight = errors.New("tree: total weight is zero")

// SegmentTree 是一个为加权随机抽样优化的线段树。
// 叶子存放每个候选项的权重，内部节点存放子树权重之和，
// 按权重抽样是 O(log n)。
type SegmentTree struct {
	nodes       []float64 // 大小为 2 * alignedSize，下标1为根
	size        int       // 候选项数量 (N)
	alignedSize int       // 对齐到2的幂次后的叶子数量
}

// New 从一组权重直接构建线段树，权重不能为负
func New(weights []float64) (*SegmentTree, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("树的大小必须为正数")
	}
	aligned := 1 << bits.Len(uint(len(weights)-1))
	st := &SegmentTree{
		nodes:       make([]float64, 2*aligned),
		size:        len(weights),
		alignedSize: aligned,
	}
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("索引 %d 的权重 %f 为负数", i, w)
		}
		st.nodes[aligned+i] = w
	}
	// 非递归地从下到上构建父节点
	for i := aligned - 1; i > 0; i-- {
		st.nodes[i] = st.nodes[2*i] + st.nodes[2*i+1]
	}
	return st, nil
}

// Total 返回所有权重的总和
func (st *SegmentTree) Total() float64 { return st.nodes[1] }

// Search 返回前缀和第一次超过 target 的候选项下标，target 必须位于 [0, Total) 内
func (st *SegmentTree) Search(target float64) (int, error) {
	total := st.Total()
	if total <= 0 {
		return -1, ErrNoWeight
	}
	if target < 0 || target >= total {
		return -1, fmt.Errorf("查找值 %f 超出总权重范围 [0, %f)", target, total)
	}

	pos := 1
	for pos < st.alignedSize {
		left := 2 * pos
		if target < st.nodes[left] {
			pos = left
		} else {
			target -= st.nodes[left]
			pos = left + 1
		}
	}
	index := pos - st.alignedSize

	// 浮点误差可能让查找落在补齐的空叶子或0权重叶子上，回退到最近的有效项
	for index >= st.size || st.nodes[st.alignedSize+index] == 0 {
		index--
		if index < 0 {
			return -1, ErrNoWeight
		}
	}
	return index, nil
}

// Sample 按权重随机抽取一个下标
func (st *SegmentTree) Sample(rng *rand.Rand) (int, error) {
	total := st.Total()
	if total <= 0 {
		return -1, ErrNoWeight
	}
	return st.Search(rng.Float64() * total)
}
