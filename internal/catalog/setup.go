package catalog

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// PrimeDB 迁移内容表，表为空时写入默认内容，再把全部内容加载为内存仓库
func PrimeDB(db *gorm.DB, log zerolog.Logger) (*Repository, error) {
	if err := db.AutoMigrate(&CatalogItem{}); err != nil {
		return nil, fmt.Errorf("无法迁移catalog表: %w", err)
	}

	var count int64
	if err := db.Model(&CatalogItem{}).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("无法统计catalog表: %w", err)
	}
	if count == 0 {
		if err := seed(db, DefaultItems()); err != nil {
			return nil, err
		}
		log.Info().Msg("内容目录为空，已写入默认内容")
	}

	var rows []CatalogItem
	if err := db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("无法从数据库加载内容目录: %w", err)
	}
	items := make([]Item, len(rows))
	for i, row := range rows {
		items[i] = row.toItem()
	}

	repo, err := NewRepository(items)
	if err != nil {
		return nil, err
	}
	log.Info().Int("items", repo.Count()).Msg("内容目录初始化成功")
	return repo, nil
}

func seed(db *gorm.DB, items []Item) error {
	rows := make([]CatalogItem, len(items))
	for i, item := range items {
		rows[i] = CatalogItem{
			ItemID:      item.ID,
			Name:        item.Name,
			Description: item.Description,
			Category:    item.Category,
		}
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("写入默认内容失败: %w", err)
		}
		return nil
	})
}
