package app

import (
	"github.com/coachline/coachline-backend/internal/handlers"
	"github.com/coachline/coachline-backend/internal/logger"
)

type Handlers struct {
	Auth    *handlers.AuthHandler
	Webhook *handlers.WebhookHandler
	Admin   *handlers.AdminHandler
	Cron    *handlers.CronHandler
}

func wireHandlers(log *logger.Logger, cfg Config, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Auth:    handlers.NewAuthHandler(serviceset.Auth),
		Webhook: handlers.NewWebhookHandler(serviceset.Training, serviceset.Dispatch),
		Admin:   handlers.NewAdminHandler(serviceset.Dispatch, serviceset.Progress),
		Cron:    handlers.NewCronHandler(serviceset.Dispatch, cfg.CronSecret),
	}
}
