package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coachline/coachline-backend/internal/logger"
	"github.com/coachline/coachline-backend/internal/types"
)

type OracleCallLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.OracleCallLog) error
}

type oracleCallLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOracleCallLogRepo(db *gorm.DB, baseLog *logger.Logger) OracleCallLogRepo {
	return &oracleCallLogRepo{db: db, log: baseLog.With("repo", "OracleCallLogRepo")}
}

func (r *oracleCallLogRepo) Create(ctx context.Context, tx *gorm.DB, row *types.OracleCallLog) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return transaction.WithContext(ctx).Create(row).Error
}
