package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coachline/coachline-backend/internal/logger"
	"github.com/coachline/coachline-backend/internal/types"
)

type PushRecordRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.PushRecord) error
	GetByTraineeAndDate(ctx context.Context, tx *gorm.DB, traineeID uuid.UUID, pushDate string) (*types.PushRecord, error)
	MarkResponded(ctx context.Context, tx *gorm.DB, traineeID uuid.UUID, pushDate string) error
	ListUnresponded(ctx context.Context, tx *gorm.DB, since time.Time) ([]*types.PushRecord, error)
}

type pushRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPushRecordRepo(db *gorm.DB, baseLog *logger.Logger) PushRecordRepo {
	return &pushRecordRepo{db: db, log: baseLog.With("repo", "PushRecordRepo")}
}

func (r *pushRecordRepo) Create(ctx context.Context, tx *gorm.DB, row *types.PushRecord) error {
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

func (r *pushRecordRepo) GetByTraineeAndDate(ctx context.Context, tx *gorm.DB, traineeID uuid.UUID, pushDate string) (*types.PushRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.PushRecord
	if err := transaction.WithContext(ctx).
		Where("trainee_id = ? AND push_date = ?", traineeID, pushDate).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *pushRecordRepo) MarkResponded(ctx context.Context, tx *gorm.DB, traineeID uuid.UUID, pushDate string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.PushRecord{}).
		Where("trainee_id = ? AND push_date = ? AND responded = ?", traineeID, pushDate, false).
		Updates(map[string]interface{}{"responded": true, "responded_at": now}).Error
}

func (r *pushRecordRepo) ListUnresponded(ctx context.Context, tx *gorm.DB, since time.Time) ([]*types.PushRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.PushRecord
	if err := transaction.WithContext(ctx).
		Where("responded = ? AND created_at >= ?", false, since).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
