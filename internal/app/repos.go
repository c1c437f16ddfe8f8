package app

import (
	"gorm.io/gorm"

	"github.com/coachline/coachline-backend/internal/logger"
	"github.com/coachline/coachline-backend/internal/repos"
)

type Repos struct {
	Trainee          repos.TraineeRepo
	TraineeProgress  repos.TraineeProgressRepo
	ConversationTurn repos.ConversationTurnRepo
	PushRecord       repos.PushRecordRepo
	OracleCallLog    repos.OracleCallLogRepo
	TxRunner         repos.TxRunner
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Trainee:          repos.NewTraineeRepo(db, log),
		TraineeProgress:  repos.NewTraineeProgressRepo(db, log),
		ConversationTurn: repos.NewConversationTurnRepo(db, log),
		PushRecord:       repos.NewPushRecordRepo(db, log),
		OracleCallLog:    repos.NewOracleCallLogRepo(db, log),
		TxRunner:         repos.NewTxRunner(db),
	}
}
