package api

import (
	"github.com/gin-gonic/gin"

	"github.com/SlpAus/luna-spins-backend/internal/game"
	"github.com/SlpAus/luna-spins-backend/internal/mission"
	"github.com/SlpAus/luna-spins-backend/internal/payment"
	"github.com/SlpAus/luna-spins-backend/internal/platform/startup"
	"github.com/SlpAus/luna-spins-backend/internal/progress"
	"github.com/SlpAus/luna-spins-backend/internal/shop"
)

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine, app *startup.App) {
	progressHandler := progress.NewHandler(app.Progress)
	shopHandler := shop.NewHandler(app.Shop)
	missionHandler := mission.NewHandler(app.Missions)
	paymentHandler := payment.NewHandler(app.Payment, app.Signer, app.Log)
	gameHandler := game.NewHandler(app.Game)

	api := router.Group("/api")
	{
		api.GET("/health", app.Health.Handler)

		// 进度与引导
		api.GET("/progress", progressHandler.GetProgress)
		api.GET("/progress/events", progressHandler.Events)
		api.POST("/onboarding", progressHandler.CompleteOnboarding)
		api.POST("/tutorials/:id", progressHandler.MarkTutorialSeen)

		shopRoutes := api.Group("/shop")
		{
			shopRoutes.GET("", shopHandler.List)
			shopRoutes.POST("/:id/purchase", shopHandler.Purchase)
		}

		missionRoutes := api.Group("/mission")
		{
			missionRoutes.GET("", missionHandler.Get)
			missionRoutes.POST("/start", missionHandler.Start)
			missionRoutes.POST("/claim", missionHandler.Claim)
			missionRoutes.POST("/cancel", missionHandler.Cancel)
		}

		paymentRoutes := api.Group("/payment")
		{
			paymentRoutes.GET("", paymentHandler.Get)
			paymentRoutes.POST("/charge", paymentHandler.CreateCharge)
			paymentRoutes.POST("/check", paymentHandler.Check)
			paymentRoutes.POST("/focus", paymentHandler.Focus)
			paymentRoutes.POST("/abandon", paymentHandler.Abandon)
			paymentRoutes.POST("/webhook", paymentHandler.Webhook)
		}

		gameRoutes := api.Group("/games")
		{
			gameRoutes.GET("/wheel/pool", gameHandler.WheelPool)
			gameRoutes.POST("/wheel/spin", gameHandler.SpinWheel)
			gameRoutes.POST("/cards/draw", gameHandler.DrawCard)
			gameRoutes.POST("/slots/pull", gameHandler.PullSlots)
			gameRoutes.POST("/dice/roll", gameHandler.RollDice)
		}
	}
}
