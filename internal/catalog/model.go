package catalog

import "gorm.io/gorm"

// 内容目录中的分类
const (
	CategoryWarmup   = "warmup"
	CategoryDaring   = "daring"
	CategoryPosition = "position"

	CategoryCard = "card"

	CategorySlotAction    = "slot-action"
	CategorySlotTarget    = "slot-target"
	CategorySlotIntensity = "slot-intensity"
)

// WheelCategories 是转盘可以选择的分类
var WheelCategories = []string{CategoryWarmup, CategoryDaring, CategoryPosition}

// Item 是目录中的一条只读内容
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// CatalogItem 定义了数据库中内容条目的结构
type CatalogItem struct {
	// gorm.Model 包含 ID, CreatedAt, UpdatedAt, DeletedAt
	gorm.Model

	// ItemID 是条目的唯一字符串ID, 例如 "warmup-03"
	ItemID string `gorm:"uniqueIndex;not null"`

	Name        string
	Description string
	Category    string `gorm:"index;not null"`
}

func (c CatalogItem) toItem() Item {
	return Item{ID: c.ItemID, Name: c.Name, Description: c.Description, Category: c.Category}
}
