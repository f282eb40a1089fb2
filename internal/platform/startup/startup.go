package startup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/SlpAus/luna-spins-backend/internal/catalog"
	"github.com/SlpAus/luna-spins-backend/internal/game"
	"github.com/SlpAus/luna-spins-backend/internal/mission"
	"github.com/SlpAus/luna-spins-backend/internal/payment"
	"github.com/SlpAus/luna-spins-backend/internal/platform/clock"
	"github.com/SlpAus/luna-spins-backend/internal/platform/config"
	"github.com/SlpAus/luna-spins-backend/internal/platform/database"
	"github.com/SlpAus/luna-spins-backend/internal/platform/health"
	"github.com/SlpAus/luna-spins-backend/internal/platform/kv"
	"github.com/SlpAus/luna-spins-backend/internal/progress"
	"github.com/SlpAus/luna-spins-backend/internal/selection"
	"github.com/SlpAus/luna-spins-backend/internal/shop"
	"github.com/SlpAus/luna-spins-backend/pkg/lifecycle"
	"github.com/SlpAus/luna-spins-backend/pkg/token"
)

// 服务商通知签名允许的时间偏差
const webhookTolerance = 5 * time.Minute

// App 持有所有组件，组件之间只通过这里显式连接
type App struct {
	Config *config.Config
	Log    zerolog.Logger

	Storage  kv.Backend
	Catalog  *catalog.Repository
	Progress *progress.Store
	Engine   *selection.Engine
	Missions *mission.Timer
	Payment  *payment.Flow
	Signer   *token.Signer
	Shop     *shop.Shop
	Game     *game.Service
	Health   *health.Status
	Checker  *health.Checker

	closers []func() error
}

// Options 允许替换时钟和出站HTTP客户端，主要供测试使用
type Options struct {
	Clock      clock.Clock
	HTTPClient *http.Client
}

// InitializeApplication 是应用启动时执行的总入口。
// ctx 决定任务倒计时的生命周期。
func InitializeApplication(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (_ *App, err error) {
	log.Info().Msg("开始应用初始化...")
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: cfg.Payment.Timeout}
	}

	app := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	if err = app.openStorage(ctx); err != nil {
		return nil, err
	}

	app.Progress, err = progress.Open(ctx, app.Storage, opts.Clock, progress.SettingsFromConfig(cfg.Game), log)
	if err != nil {
		return nil, fmt.Errorf("无法打开进度存储: %w", err)
	}

	app.Engine, err = selection.NewEngine(app.Catalog, nil)
	if err != nil {
		return nil, err
	}
	app.Missions = mission.NewTimer(app.Progress, mission.NewScheduler(ctx), log)

	amount, err := payment.ParseAmount(cfg.Payment.Amount)
	if err != nil {
		return nil, err
	}
	provider := payment.NewHTTPProvider(cfg.Payment, opts.HTTPClient)
	app.Payment, err = payment.NewFlow(ctx, provider, app.Progress, app.Storage, amount, log)
	if err != nil {
		return nil, fmt.Errorf("无法恢复支付流程: %w", err)
	}
	if cfg.Payment.WebhookSecret != "" {
		app.Signer = token.NewSigner(cfg.Payment.WebhookSecret, webhookTolerance)
	} else {
		log.Warn().Msg("未配置 payment.webhookSecret，服务商通知将被拒绝")
	}

	app.Shop, err = shop.New(shop.FeaturesFromConfig(cfg.Shop), app.Progress, log)
	if err != nil {
		return nil, err
	}
	app.Game = game.NewService(app.Progress, app.Engine, app.Missions, cfg.Game, log)

	app.Health = health.NewStatus(log)
	app.Checker = health.NewChecker(app.Storage, app.Health)

	log.Info().Msg("应用初始化完成！")
	return app, nil
}

// openStorage 按驱动打开键值存储并加载内容目录。
// 关系型驱动的内容目录保存在数据库里，其余驱动使用内置内容。
func (a *App) openStorage(ctx context.Context) error {
	cfg := a.Config.Database
	switch cfg.Driver {
	case config.DriverSqlite, config.DriverPostgres:
		db, err := database.OpenDB(cfg, a.Log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { return database.CloseDB(db) })
		return a.primeRelational(db)
	case config.DriverRedis:
		rdb, err := database.OpenRedis(ctx, cfg.Redis, a.Log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rdb.Close)
		a.Storage = kv.NewRedisBackend(rdb)
	case config.DriverMemory:
		a.Log.Warn().Msg("使用内存存储，进度不会在重启后保留")
		a.Storage = kv.NewMemory()
	default:
		return fmt.Errorf("未知的存储驱动 %q", cfg.Driver)
	}

	repo, err := catalog.NewRepository(catalog.DefaultItems())
	if err != nil {
		return err
	}
	a.Catalog = repo
	return nil
}

func (a *App) primeRelational(db *gorm.DB) error {
	backend, err := kv.NewGormBackend(db)
	if err != nil {
		return err
	}
	a.Storage = backend

	repo, err := catalog.PrimeDB(db, a.Log)
	if err != nil {
		return err
	}
	a.Catalog = repo
	return nil
}

// RunMissions 在优雅停机开始时拆除任务倒计时
func (a *App) RunMissions(h *lifecycle.Handle) {
	defer h.Close()
	<-h.Done()
	a.Missions.Teardown()
	a.Log.Info().Msg("任务倒计时已停止")
}

// RunPaymentDrain 在优雅停机开始时，对仍在等待的收款做最后一次检查，
// 避免停机前刚完成的付款要等到下次启动才被确认。强制停机信号会中断这次检查。
func (a *App) RunPaymentDrain(graceful, forceful *lifecycle.Handle) {
	defer graceful.Close()
	defer forceful.Close()
	<-graceful.Done()

	if a.Payment.View().State != payment.StateAwaitingPayment {
		return
	}
	view, err := a.Payment.Check(forceful.Ctx(), payment.TriggerShutdown)
	if err != nil && !errors.Is(err, payment.ErrNoCharge) {
		a.Log.Warn().Err(err).Msg("停机前的收款检查失败")
		return
	}
	a.Log.Info().Str("state", string(view.State)).Msg("停机前的收款检查完成")
}

// Close 按打开的逆序关闭底层连接
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
