package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coachline/coachline-backend/internal/logger"
	"github.com/coachline/coachline-backend/internal/types"
)

type TraineeProgressRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.TraineeProgress) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.TraineeProgress, error)
	GetActiveByTraineeID(ctx context.Context, tx *gorm.DB, traineeID uuid.UUID) (*types.TraineeProgress, error)
	GetLatestByTraineeID(ctx context.Context, tx *gorm.DB, traineeID uuid.UUID) (*types.TraineeProgress, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, status string) ([]*types.TraineeProgress, error)
	Update(ctx context.Context, tx *gorm.DB, row *types.TraineeProgress) error
}

type traineeProgressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTraineeProgressRepo(db *gorm.DB, baseLog *logger.Logger) TraineeProgressRepo {
	return &traineeProgressRepo{db: db, log: baseLog.With("repo", "TraineeProgressRepo")}
}

func (r *traineeProgressRepo) Create(ctx context.Context, tx *gorm.DB, row *types.TraineeProgress) error {
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

func (r *traineeProgressRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.TraineeProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.TraineeProgress
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *traineeProgressRepo) GetActiveByTraineeID(ctx context.Context, tx *gorm.DB, traineeID uuid.UUID) (*types.TraineeProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.TraineeProgress
	if err := transaction.WithContext(ctx).
		Where("trainee_id = ? AND status = ?", traineeID, types.ProgressStatusActive).
		Order("created_at DESC").
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *traineeProgressRepo) GetLatestByTraineeID(ctx context.Context, tx *gorm.DB, traineeID uuid.UUID) (*types.TraineeProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.TraineeProgress
	if err := transaction.WithContext(ctx).
		Where("trainee_id = ?", traineeID).
		Order("created_at DESC").
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *traineeProgressRepo) ListByStatus(ctx context.Context, tx *gorm.DB, status string) ([]*types.TraineeProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.TraineeProgress
	if err := transaction.WithContext(ctx).
		Where("status = ?", status).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *traineeProgressRepo) Update(ctx context.Context, tx *gorm.DB, row *types.TraineeProgress) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil
	}
	return transaction.WithContext(ctx).Save(row).Error
}
