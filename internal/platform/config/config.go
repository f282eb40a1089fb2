package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Game     GameConfig     `mapstructure:"game"`
	Shop     ShopConfig     `mapstructure:"shop"`
	Payment  PaymentConfig  `mapstructure:"payment"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode    string     `mapstructure:"mode"`
	Address string     `mapstructure:"address"`
	Cors    CorsConfig `mapstructure:"cors"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// 存储驱动
const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// DatabaseConfig 定义了持久化存储相关的配置
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Sqlite   SqliteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// SqliteConfig 定义了SQLite文件的位置
type SqliteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig 定义了Postgres连接串
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 定义了Redis的配置
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 定义了日志输出
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// RoundConfig 描述一个小游戏产生的任务奖励与停留时长
type RoundConfig struct {
	Reward          int `mapstructure:"reward"`
	DurationSeconds int `mapstructure:"durationSeconds"`
}

// GameConfig 包含所有可调的进度数值
type GameConfig struct {
	QuotaWindowDays int            `mapstructure:"quotaWindowDays"`
	HistoryLimit    int            `mapstructure:"historyLimit"`
	DefaultQuotas   map[string]int `mapstructure:"defaultQuotas"`
	Wheel           RoundConfig    `mapstructure:"wheel"`
	Cards           RoundConfig    `mapstructure:"cards"`
	Slots           RoundConfig    `mapstructure:"slots"`
	DiceReward      int            `mapstructure:"diceReward"`
}

// QuotaWindow 返回配额窗口的长度
func (g GameConfig) QuotaWindow() time.Duration {
	return time.Duration(g.QuotaWindowDays) * 24 * time.Hour
}

// FeatureConfig 是商店里一个可用金币解锁的功能
type FeatureConfig struct {
	ID            string `mapstructure:"id"`
	Name          string `mapstructure:"name"`
	Description   string `mapstructure:"description"`
	Cost          int    `mapstructure:"cost"`
	LevelRequired int    `mapstructure:"levelRequired"`
}

// ShopConfig 定义了商店的功能列表
type ShopConfig struct {
	Features []FeatureConfig `mapstructure:"features"`
}

// PaymentConfig 定义了支付服务商相关的配置
type PaymentConfig struct {
	ProviderURL     string        `mapstructure:"providerURL"`
	AccessToken     string        `mapstructure:"accessToken"`
	Amount          string        `mapstructure:"amount"`
	Description     string        `mapstructure:"description"`
	PayerEmail      string        `mapstructure:"payerEmail"`
	NotificationURL string        `mapstructure:"notificationURL"`
	WebhookSecret   string        `mapstructure:"webhookSecret"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors.allowedOrigins", []string{"http://localhost:3000"})

	v.SetDefault("database.driver", DriverSqlite)
	v.SetDefault("database.sqlite.path", "luna.db")
	v.SetDefault("database.postgres.dsn", "")
	v.SetDefault("database.redis.address", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	v.SetDefault("game.quotaWindowDays", 7)
	v.SetDefault("game.historyLimit", 100)
	v.SetDefault("game.defaultQuotas", map[string]int{"wheel": 3, "cards": 3, "slots": 3, "dice": 3})
	v.SetDefault("game.wheel.reward", 20)
	v.SetDefault("game.wheel.durationSeconds", 35)
	v.SetDefault("game.cards.reward", 10)
	v.SetDefault("game.cards.durationSeconds", 30)
	v.SetDefault("game.slots.reward", 10)
	v.SetDefault("game.slots.durationSeconds", 30)
	v.SetDefault("game.diceReward", 30)

	v.SetDefault("shop.features", []map[string]any{
		{"id": "oracle", "name": "Oracle", "cost": 500, "levelRequired": 20},
		{"id": "crystal_dice", "name": "Crystal Dice", "cost": 750, "levelRequired": 35},
		{"id": "forbidden_slot", "name": "Forbidden Slot", "cost": 1000, "levelRequired": 50},
	})

	// 没有默认值的键也要注册，否则环境变量无法覆盖
	v.SetDefault("payment.providerURL", "http://localhost:8090")
	v.SetDefault("payment.accessToken", "")
	v.SetDefault("payment.notificationURL", "")
	v.SetDefault("payment.webhookSecret", "")
	v.SetDefault("payment.amount", "1.00")
	v.SetDefault("payment.description", "VIP lifetime access")
	v.SetDefault("payment.payerEmail", "guest@example.com")
	v.SetDefault("payment.timeout", 15*time.Second)
}

// LoadConfig 函数负责查找、加载和解析配置文件
// 找不到配置文件时使用默认值，环境变量始终可以覆盖，例如 PAYMENT_ACCESSTOKEN=...
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ErrInvalid 包装所有配置校验错误
var ErrInvalid = errors.New("config: invalid value")

// maxHistoryLimit 与进度存储的历史上限一致
const maxHistoryLimit = 100

// Validate 检查会破坏游戏数值不变量的配置
func (c *Config) Validate() error {
	g := c.Game
	if g.QuotaWindowDays < 1 {
		return fmt.Errorf("%w: game.quotaWindowDays 至少为1，当前为 %d", ErrInvalid, g.QuotaWindowDays)
	}
	if g.HistoryLimit < 1 || g.HistoryLimit > maxHistoryLimit {
		return fmt.Errorf("%w: game.historyLimit 必须在 1..%d 之间，当前为 %d", ErrInvalid, maxHistoryLimit, g.HistoryLimit)
	}
	for kind, n := range g.DefaultQuotas {
		if n < 0 {
			return fmt.Errorf("%w: game.defaultQuotas.%s 不能为负数", ErrInvalid, kind)
		}
	}
	rounds := map[string]RoundConfig{"wheel": g.Wheel, "cards": g.Cards, "slots": g.Slots}
	for name, r := range rounds {
		if r.Reward < 0 || r.DurationSeconds < 0 {
			return fmt.Errorf("%w: game.%s 的奖励和时长不能为负数", ErrInvalid, name)
		}
	}
	if g.DiceReward < 0 {
		return fmt.Errorf("%w: game.diceReward 不能为负数", ErrInvalid)
	}
	for _, f := range c.Shop.Features {
		if f.ID == "" || f.Cost < 0 || f.LevelRequired < 0 {
			return fmt.Errorf("%w: 商店功能 %q 的配置无效", ErrInvalid, f.ID)
		}
	}
	if c.Payment.Timeout <= 0 {
		return fmt.Errorf("%w: payment.timeout 必须为正数", ErrInvalid)
	}
	return nil
}

// Default 返回只包含默认值的配置，主要供测试使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// 默认值本身不会解析失败
	_ = v.Unmarshal(&cfg)
	return &cfg
}
