package shutdown

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/SlpAus/luna-spins-backend/pkg/lifecycle"
)

const (
	httpTimeout     = 15 * time.Second
	gracefulTimeout = 30 * time.Second
	forcefulTimeout = 1 * time.Second
)

// Coordinator 负责编排应用程序的优雅停机流程。
// 它接收外部创建的生命周期管理器，并使用它们来协调停机。
type Coordinator struct {
	GracefulManager *lifecycle.Manager
	ForcefulManager *lifecycle.Manager
	// Finalize 在所有后台服务停止后执行，通常用来关闭存储
	Finalize func() error

	log             zerolog.Logger
	gracefulTimeout time.Duration
	forcefulTimeout time.Duration
}

// NewCoordinator 创建一个新的停机协调器。
func NewCoordinator(gracefulMgr, forcefulMgr *lifecycle.Manager, finalize func() error, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		GracefulManager: gracefulMgr,
		ForcefulManager: forcefulMgr,
		Finalize:        finalize,
		log:             log.With().Str("module", "shutdown").Logger(),
		gracefulTimeout: gracefulTimeout,
		forcefulTimeout: forcefulTimeout,
	}
}

// ListenForSignalsAndShutdown 启动信号监听并阻塞，直到停机流程完成。
func (c *Coordinator) ListenForSignalsAndShutdown(server *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// 阻塞直到接收到停机信号
	sig := <-sigChan
	c.log.Info().Str("signal", sig.String()).Msg("收到关闭信号，开始优雅停机...")
	c.Shutdown(server)
}

// Shutdown 依次关闭HTTP服务器、后台服务和存储
func (c *Coordinator) Shutdown(server *http.Server) {
	if server != nil {
		// 关闭HTTP服务器，允许正在进行的请求完成
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			c.log.Error().Err(err).Msg("HTTP服务器关闭错误")
		} else {
			c.log.Info().Msg("HTTP服务器已关闭。")
		}
	}

	// --- 阶段一: 优雅停机 ---
	c.log.Info().Dur("timeout", c.gracefulTimeout).Msg("第一阶段停机：等待后台服务完成任务...")
	c.GracefulManager.Shutdown()

	remaining := c.GracefulManager.WaitWithTimeout(c.gracefulTimeout)
	if len(remaining) == 0 {
		c.log.Info().Msg("所有服务已在第一阶段优雅关闭。")
	} else {
		// --- 阶段二: 强制停机 ---
		c.log.Warn().Strs("services", remaining).Dur("timeout", c.forcefulTimeout).Msg("第一阶段超时。发送第二停机信号，强制退出...")
		c.ForcefulManager.Shutdown()
		if left := c.ForcefulManager.WaitWithTimeout(c.forcefulTimeout); len(left) != 0 {
			c.log.Error().Strs("services", left).Msg("部分服务未能退出")
		}
	}

	// --- 最终步骤 ---
	if c.Finalize != nil {
		if err := c.Finalize(); err != nil {
			c.log.Error().Err(err).Msg("关闭存储失败")
		} else {
			c.log.Info().Msg("存储已关闭。")
		}
	}

	c.log.Info().Msg("优雅停机完成。")
}
