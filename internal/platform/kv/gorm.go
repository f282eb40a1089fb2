package kv

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry 定义了键值表的结构
type Entry struct {
	// gorm.Model 包含 ID, CreatedAt, UpdatedAt, DeletedAt
	gorm.Model

	// Key 是唯一键，例如 "casino_vip_state"
	Key string `gorm:"uniqueIndex;not null;type:varchar(255)"`

	// Value 存储序列化后的值，进度记录可能较长
	Value string `gorm:"type:text"`
}

// GormBackend 把键值对存放在关系型数据库的一张表中
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend 创建后端并迁移表结构
func NewGormBackend(db *gorm.DB) (*GormBackend, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("无法迁移键值表: %w", err)
	}
	return &GormBackend{db: db}, nil
}

func (b *GormBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var entry Entry
	err := b.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("读取键 %s 失败: %w", key, err)
	}
	return entry.Value, true, nil
}

// Set 使用 OnConflict 完成原子的 upsert
func (b *GormBackend) Set(ctx context.Context, key, value string) error {
	entry := Entry{Key: key, Value: value}
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at", "deleted_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("写入键 %s 失败: %w", key, err)
	}
	return nil
}

// Delete 物理删除，避免软删除的行挡住唯一索引
func (b *GormBackend) Delete(ctx context.Context, key string) error {
	if err := b.db.WithContext(ctx).Unscoped().Where("key = ?", key).Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("删除键 %s 失败: %w", key, err)
	}
	return nil
}

func (b *GormBackend) Ping(ctx context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
