package app

import (
	"github.com/gin-gonic/gin"

	"github.com/coachline/coachline-backend/internal/server"
)

func wireRouter(cfg Config, handlerset Handlers, mw Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		ServiceName:    cfg.ServiceName,
		AllowOrigins:   cfg.AllowOrigins,
		AuthHandler:    handlerset.Auth,
		AuthMiddleware: mw.Auth,
		WebhookHandler: handlerset.Webhook,
		AdminHandler:   handlerset.Admin,
		CronHandler:    handlerset.Cron,
	})
}
