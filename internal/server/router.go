package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/coachline/coachline-backend/internal/handlers"
	"github.com/coachline/coachline-backend/internal/middleware"
)

type RouterConfig struct {
	ServiceName    string
	AllowOrigins   []string
	AuthHandler    *handlers.AuthHandler
	AuthMiddleware *middleware.AuthMiddleware
	WebhookHandler *handlers.WebhookHandler
	AdminHandler   *handlers.AdminHandler
	CronHandler    *handlers.CronHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Cron-Secret"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/login", cfg.AuthHandler.Login)

	// inbound channel messages
	router.POST("/webhook/message", cfg.WebhookHandler.HandleMessage)

	// scheduler endpoints, guarded by the shared cron secret
	cron := router.Group("/cron")
	{
		cron.POST("/push-daily", cfg.CronHandler.PushDaily)
	}

	// ===============
	// || Protected ||
	// ===============
	admin := router.Group("/admin")
	admin.Use(cfg.AuthMiddleware.RequireAdmin())
	{
		admin.POST("/trainees", cfg.AdminHandler.Enroll)
		admin.GET("/trainees", cfg.AdminHandler.ListTrainees)
		admin.GET("/trainees/:id/progress", cfg.AdminHandler.GetProgress)
		admin.GET("/trainees/:id/stats", cfg.AdminHandler.GetStats)
		admin.GET("/trainees/:id/history", cfg.AdminHandler.GetHistory)
		admin.POST("/trainees/:id/start", cfg.AdminHandler.StartAttempt)
		admin.POST("/trainees/:id/manual-test", cfg.AdminHandler.StartManualTest)
		admin.POST("/trainees/:id/retry", cfg.AdminHandler.RetryAttempt)
		admin.POST("/trainees/:id/pause", cfg.AdminHandler.Pause)
		admin.POST("/trainees/:id/resume", cfg.AdminHandler.Resume)
		admin.POST("/trainees/:id/restart", cfg.AdminHandler.Restart)
		admin.GET("/pushes/unresponded", cfg.AdminHandler.ListUnrespondedPushes)
	}

	return router
}
