// paysim 是一个本地的支付服务商模拟器，实现了后端用到的收款接口，
// 并提供 /admin 路由来手动批准或拒绝收款。
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/SlpAus/luna-spins-backend/internal/paysim"
	"github.com/SlpAus/luna-spins-backend/internal/platform/config"
	"github.com/SlpAus/luna-spins-backend/internal/platform/logger"
	"github.com/SlpAus/luna-spins-backend/pkg/token"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// webhookSecret 返回使用的通知签名密钥，没有配置时生成一个新的
func webhookSecret(configured string) (secret string, generated bool, err error) {
	if configured != "" {
		return configured, false, nil
	}
	secret, err = token.GenerateSecret()
	if err != nil {
		return "", false, err
	}
	return secret, true, nil
}

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", envOr("PAYSIM_ADDR", ":8090"), "监听地址")
	accessToken := flag.String("token", os.Getenv("PAYMENT_ACCESSTOKEN"), "Bearer 访问令牌，为空时不校验")
	secret := flag.String("webhook-secret", os.Getenv("PAYMENT_WEBHOOKSECRET"), "通知签名密钥，为空时自动生成")
	notifyURL := flag.String("notification-url", os.Getenv("PAYMENT_NOTIFICATIONURL"), "默认的通知地址")
	pretty := flag.Bool("pretty", true, "输出可读的日志")
	flag.Parse()

	log := logger.New(config.LogConfig{Level: "debug", Pretty: *pretty})

	webhookKey, generated, err := webhookSecret(*secret)
	if err != nil {
		log.Fatal().Err(err).Msg("无法生成通知签名密钥")
	}
	if generated {
		// 后端需要同一个密钥才能校验通知，写入 PAYMENT_WEBHOOKSECRET 即可
		log.Warn().Str("secret", webhookKey).Msg("未配置通知签名密钥，已生成新的密钥")
	}

	sim := paysim.New(paysim.Config{
		AccessToken:     *accessToken,
		WebhookSecret:   webhookKey,
		NotificationURL: *notifyURL,
	}, log)

	server := &http.Server{Addr: *addr, Handler: sim.Router()}
	go func() {
		log.Info().
			Str("address", *addr).
			Bool("auth", *accessToken != "").
			Bool("generatedSecret", generated).
			Msg("支付模拟器已就绪")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("支付模拟器启动失败")
		}
	}()

	waitForSignal(log)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("支付模拟器关闭错误")
	}
}

func waitForSignal(log zerolog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("收到关闭信号")
}
