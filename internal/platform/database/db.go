package database

import (
	"fmt"
	"log"
	"os"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SlpAus/luna-spins-backend/internal/platform/config"
)

// OpenDB 根据配置的驱动打开GORM连接
// 只处理sqlite和postgres两种关系型驱动
func OpenDB(cfg config.DatabaseConfig, zlog zerolog.Logger) (*gorm.DB, error) {
	// GORM日志配置
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 0,
			LogLevel:      logger.Silent,
			Colorful:      true,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverSqlite:
		dialector = sqlite.Open(cfg.Sqlite.Path)
	case config.DriverPostgres:
		if cfg.Postgres.DSN == "" {
			return nil, fmt.Errorf("postgres驱动需要配置 database.postgres.dsn")
		}
		dialector = postgres.Open(cfg.Postgres.DSN)
	default:
		return nil, fmt.Errorf("驱动 %q 不是关系型数据库", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	zlog.Info().Str("driver", cfg.Driver).Msg("数据库连接成功")
	return db, nil
}

// CloseDB 关闭底层连接池
func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
