package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/coachline/coachline-backend/internal/catalog"
	"github.com/coachline/coachline-backend/internal/clients/push"
	redisclient "github.com/coachline/coachline-backend/internal/clients/redis"
	"github.com/coachline/coachline-backend/internal/logger"
	"github.com/coachline/coachline-backend/internal/oracle"
	"github.com/coachline/coachline-backend/internal/services"
	"github.com/coachline/coachline-backend/internal/utils"
)

type Services struct {
	Auth     services.AuthService
	Training services.TrainingService
	Dispatch services.DispatchService
	Progress services.ProgressService

	Catalog  *catalog.Catalog
	Oracle   oracle.Client
	TurnLock redisclient.TurnLock
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	cat, err := catalog.Load(cfg.CatalogDir, log)
	if err != nil {
		return Services{}, fmt.Errorf("load scenario catalog: %w", err)
	}

	grader, err := oracle.NewHTTPClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init oracle client: %w", err)
	}

	// redis is optional: without it the per-trainee turn guard is off
	var turnLock redisclient.TurnLock
	if utils.GetEnv("REDIS_ADDR", "", log) != "" {
		turnLock, err = redisclient.NewTurnLock(log)
		if err != nil {
			return Services{}, fmt.Errorf("init turn lock: %w", err)
		}
	} else {
		log.Warn("REDIS_ADDR not set, per-trainee turn lock disabled")
	}

	var lock services.TurnLock
	if turnLock != nil {
		lock = turnLock
	}

	authService := services.NewAuthService(log, cfg.JWTSecretKey, cfg.AdminUsername, cfg.AdminPasswordHash, cfg.AccessTokenTTL)

	trainingService := services.NewTrainingService(
		db, log, cat, grader,
		reposet.Trainee,
		reposet.TraineeProgress,
		reposet.ConversationTurn,
		reposet.OracleCallLog,
		reposet.TxRunner,
		lock,
	)

	dispatchService := services.NewDispatchService(
		log, cat,
		reposet.Trainee,
		reposet.TraineeProgress,
		reposet.PushRecord,
		reposet.TxRunner,
		push.NewSender(log),
		nil,
	)

	progressService := services.NewProgressService(
		log, cat,
		reposet.Trainee,
		reposet.TraineeProgress,
		reposet.ConversationTurn,
	)

	return Services{
		Auth:     authService,
		Training: trainingService,
		Dispatch: dispatchService,
		Progress: progressService,
		Catalog:  cat,
		Oracle:   grader,
		TurnLock: turnLock,
	}, nil
}
