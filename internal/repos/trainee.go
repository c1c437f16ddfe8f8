package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coachline/coachline-backend/internal/logger"
	"github.com/coachline/coachline-backend/internal/types"
)

type TraineeRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.Trainee) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Trainee, error)
	GetByChannelUserID(ctx context.Context, tx *gorm.DB, channelUserID string) (*types.Trainee, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.Trainee, error)
}

type traineeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTraineeRepo(db *gorm.DB, baseLog *logger.Logger) TraineeRepo {
	return &traineeRepo{db: db, log: baseLog.With("repo", "TraineeRepo")}
}

func (r *traineeRepo) Create(ctx context.Context, tx *gorm.DB, row *types.Trainee) error {
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

func (r *traineeRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Trainee, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.Trainee
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *traineeRepo) GetByChannelUserID(ctx context.Context, tx *gorm.DB, channelUserID string) (*types.Trainee, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.Trainee
	if err := transaction.WithContext(ctx).
		Where("channel_user_id = ?", channelUserID).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *traineeRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Trainee, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Trainee
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
