package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/SlpAus/luna-spins-backend/api"
	"github.com/SlpAus/luna-spins-backend/internal/platform/config"
	"github.com/SlpAus/luna-spins-backend/internal/platform/logger"
	"github.com/SlpAus/luna-spins-backend/internal/platform/shutdown"
	"github.com/SlpAus/luna-spins-backend/internal/platform/startup"
	"github.com/SlpAus/luna-spins-backend/pkg/lifecycle"
)

func main() {
	// .env 只是本地开发的便利，不存在时忽略
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		// 配置加载前还没有日志配置，用默认设置输出错误
		bootLog := logger.New(config.LogConfig{Level: "info", Pretty: true})
		bootLog.Fatal().Err(err).Msg("无法加载配置")
	}
	log := logger.New(cfg.Log)

	gracefulMgr := lifecycle.NewManager("graceful", log)
	forcefulMgr := lifecycle.NewManager("forceful", log)

	// 任务倒计时随优雅停机一起结束
	missionHandle := mustHandle(log, gracefulMgr, "missions")

	// 1. 执行应用启动初始化流程
	app, err := startup.InitializeApplication(missionHandle.Ctx(), cfg, log, startup.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("应用初始化失败，无法启动")
	}

	// 2. 阻塞式执行一次启动后健康检查
	log.Info().Msg("正在执行启动后健康检查...")
	app.Checker.PerformCheck(context.Background())

	// 3. 启动后台服务
	go app.Checker.Run(mustHandle(log, gracefulMgr, "health"))
	go app.RunMissions(missionHandle)
	go app.RunPaymentDrain(mustHandle(log, gracefulMgr, "payment"), mustHandle(log, forcefulMgr, "payment"))

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.Cors.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api.SetupRoutes(r, app)

	// 停机开始时结束所有事件流，否则长连接会拖住 Shutdown
	streamCtx, cancelStreams := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     r,
		BaseContext: func(net.Listener) context.Context { return streamCtx },
	}
	server.RegisterOnShutdown(cancelStreams)

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("服务器已准备就绪，开始监听")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("服务器启动失败")
		}
	}()

	coordinator := shutdown.NewCoordinator(gracefulMgr, forcefulMgr, app.Close, log)
	coordinator.ListenForSignalsAndShutdown(server)
}

func mustHandle(log zerolog.Logger, mgr *lifecycle.Manager, name string) *lifecycle.Handle {
	h, err := mgr.NewServiceHandle(name)
	if err != nil {
		log.Fatal().Err(err).Str("service", name).Msg("无法注册后台服务")
	}
	return h
}
