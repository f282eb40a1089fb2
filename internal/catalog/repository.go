package catalog

import (
	"errors"
	"fmt"
)

// ErrEmptyCatalog 表示没有任何内容可以加载，属于配置错误
var ErrEmptyCatalog = errors.New("catalog: no items")

// Repository 是内容目录的内存仓库，构建后只读，可以被并发读取
type Repository struct {
	items      []Item
	ids        map[string]struct{}
	byCategory map[string][]Item
}

// NewRepository 从条目列表构建仓库，ID重复或为空都会失败
func NewRepository(items []Item) (*Repository, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCatalog
	}

	r := &Repository{
		items:      make([]Item, len(items)),
		ids:        make(map[string]struct{}, len(items)),
		byCategory: make(map[string][]Item),
	}
	for i, item := range items {
		if item.ID == "" || item.Category == "" {
			return nil, fmt.Errorf("第 %d 条内容缺少ID或分类", i)
		}
		if _, dup := r.ids[item.ID]; dup {
			return nil, fmt.Errorf("内容ID %q 重复", item.ID)
		}
		r.items[i] = item
		r.ids[item.ID] = struct{}{}
		r.byCategory[item.Category] = append(r.byCategory[item.Category], item)
	}
	return r, nil
}

// Count 返回条目总数
func (r *Repository) Count() int { return len(r.items) }

// ByCategory 返回指定分类下的全部条目（副本，按加载顺序）
func (r *Repository) ByCategory(category string) []Item {
	src := r.byCategory[category]
	out := make([]Item, len(src))
	copy(out, src)
	return out
}
