package app

import (
	"strings"
	"time"

	"github.com/coachline/coachline-backend/internal/logger"
	"github.com/coachline/coachline-backend/internal/utils"
)

type Config struct {
	ServiceName       string
	Environment       string
	Version           string
	JWTSecretKey      string
	AdminUsername     string
	AdminPasswordHash string
	AccessTokenTTL    time.Duration
	CronSecret        string
	AllowOrigins      []string
	CatalogDir        string
}

func LoadConfig(log *logger.Logger) Config {
	accessTokenTTLSeconds := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)

	var origins []string
	for _, o := range strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", log), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		ServiceName:       "coachline-backend",
		Environment:       utils.GetEnv("APP_ENV", "development", log),
		Version:           utils.GetEnv("APP_VERSION", "dev", log),
		JWTSecretKey:      utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log),
		AdminUsername:     utils.GetEnv("ADMIN_USERNAME", "admin", log),
		AdminPasswordHash: utils.GetEnv("ADMIN_PASSWORD_HASH", "", log),
		AccessTokenTTL:    time.Duration(accessTokenTTLSeconds) * time.Second,
		CronSecret:        utils.GetEnv("CRON_SECRET", "", log),
		AllowOrigins:      origins,
		CatalogDir:        utils.GetEnv("CATALOG_DIR", "", log),
	}
}
