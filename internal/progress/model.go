package progress

import (
	"fmt"
	"sort"
	"time"

	"github.com/SlpAus/luna-spins-backend/internal/platform/config"
)

// GameKind 是一种小游戏，每种小游戏有自己的次数配额
type GameKind string

const (
	KindWheel GameKind = "wheel"
	KindCards GameKind = "cards"
	KindSlots GameKind = "slots"
	KindDice  GameKind = "dice"
)

// Kinds 列出所有小游戏
var Kinds = []GameKind{KindWheel, KindCards, KindSlots, KindDice}

// ParseKind 校验并转换小游戏名称
func ParseKind(s string) (GameKind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// UserProgress 是唯一的长期用户记录，序列化后存放在 kv.ProgressKey 下
type UserProgress struct {
	UserName         string           `json:"userName"`
	PartnerName      string           `json:"partnerName"`
	Onboarded        bool             `json:"onboarded"`
	Coins            int              `json:"coins"`
	CompletedCount   int              `json:"completedCount"`
	History          []string         `json:"history"` // 最新的在前
	UnlockedFeatures []string         `json:"unlockedFeatures"`
	TutorialsSeen    []string         `json:"tutorialsSeen"`
	IsVip            bool             `json:"isVip"`
	QuotaWindowStart *time.Time       `json:"quotaWindowStart"` // nil 表示还没有打开配额窗口
	SpinQuotas       map[GameKind]int `json:"spinQuotas"`
}

// HasFeature 判断功能是否已解锁
func (p UserProgress) HasFeature(id string) bool { return containsSorted(p.UnlockedFeatures, id) }

// HasSeenTutorial 判断教程是否已看过
func (p UserProgress) HasSeenTutorial(id string) bool { return containsSorted(p.TutorialsSeen, id) }

// clone 深拷贝，写时复制依赖它保证旧状态不被修改
func (p UserProgress) clone() UserProgress {
	c := p
	c.History = append([]string(nil), p.History...)
	c.UnlockedFeatures = append([]string(nil), p.UnlockedFeatures...)
	c.TutorialsSeen = append([]string(nil), p.TutorialsSeen...)
	if p.QuotaWindowStart != nil {
		t := *p.QuotaWindowStart
		c.QuotaWindowStart = &t
	}
	c.SpinQuotas = make(map[GameKind]int, len(p.SpinQuotas))
	for k, v := range p.SpinQuotas {
		c.SpinQuotas[k] = v
	}
	return c
}

func containsSorted(set []string, id string) bool {
	i := sort.SearchStrings(set, id)
	return i < len(set) && set[i] == id
}

// insertSorted 有序插入，已存在时返回原切片和 false
func insertSorted(set []string, id string) ([]string, bool) {
	i := sort.SearchStrings(set, id)
	if i < len(set) && set[i] == id {
		return set, false
	}
	set = append(set, "")
	copy(set[i+1:], set[i:])
	set[i] = id
	return set, true
}

// Settings 是进度存储的可调参数
type Settings struct {
	Window        time.Duration
	HistoryLimit  int
	DefaultQuotas map[GameKind]int
}

// SettingsFromConfig 从配置中构造 Settings，未配置的小游戏配额为0
func SettingsFromConfig(cfg config.GameConfig) Settings {
	quotas := make(map[GameKind]int, len(Kinds))
	for _, k := range Kinds {
		quotas[k] = cfg.DefaultQuotas[string(k)]
	}
	return Settings{
		Window:        cfg.QuotaWindow(),
		HistoryLimit:  cfg.HistoryLimit,
		DefaultQuotas: quotas,
	}
}

// MaxHistoryLimit 是历史记录长度的上限
const MaxHistoryLimit = 100

// Validate 检查参数能否维持存储的不变量：历史有界、配额非负、窗口至少一天
func (s Settings) Validate() error {
	if s.Window < 24*time.Hour {
		return fmt.Errorf("%w: 配额窗口 %v 不足一天", ErrInvalidSettings, s.Window)
	}
	if s.HistoryLimit < 1 || s.HistoryLimit > MaxHistoryLimit {
		return fmt.Errorf("%w: 历史长度 %d 不在 1..%d 之间", ErrInvalidSettings, s.HistoryLimit, MaxHistoryLimit)
	}
	for _, k := range Kinds {
		if s.DefaultQuotas[k] < 0 {
			return fmt.Errorf("%w: %s 的默认配额为负数", ErrInvalidSettings, k)
		}
	}
	return nil
}

func (s Settings) freshQuotas() map[GameKind]int {
	quotas := make(map[GameKind]int, len(Kinds))
	for _, k := range Kinds {
		quotas[k] = s.DefaultQuotas[k]
	}
	return quotas
}

func newProgress(s Settings) UserProgress {
	return UserProgress{
		History:          []string{},
		UnlockedFeatures: []string{},
		TutorialsSeen:    []string{},
		SpinQuotas:       s.freshQuotas(),
	}
}
