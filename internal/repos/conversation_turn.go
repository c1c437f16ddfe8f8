package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coachline/coachline-backend/internal/logger"
	"github.com/coachline/coachline-backend/internal/types"
)

// TraineeStats aggregates a trainee's graded turns for the dashboard.
type TraineeStats struct {
	TotalTurns   int64   `json:"total_turns"`
	PassedCount  int64   `json:"passed_count"`
	FailedCount  int64   `json:"failed_count"`
	PassRate     float64 `json:"pass_rate"`
	AverageScore float64 `json:"average_score"`
}

type ConversationTurnRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.ConversationTurn) error
	// ListRecentForAttempt returns the most recent turns for (trainee, day)
	// created at or after the watermark, newest first, capped at limit. A nil
	// watermark means every turn for that day.
	ListRecentForAttempt(ctx context.Context, tx *gorm.DB, traineeID uuid.UUID, day int, since *time.Time, limit int) ([]*types.ConversationTurn, error)
	ListByTrainee(ctx context.Context, tx *gorm.DB, traineeID uuid.UUID, limit, offset int) ([]*types.ConversationTurn, error)
	StatsByTrainee(ctx context.Context, tx *gorm.DB, traineeID uuid.UUID) (*TraineeStats, error)
}

type conversationTurnRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationTurnRepo(db *gorm.DB, baseLog *logger.Logger) ConversationTurnRepo {
	return &conversationTurnRepo{db: db, log: baseLog.With("repo", "ConversationTurnRepo")}
}

func (r *conversationTurnRepo) Create(ctx context.Context, tx *gorm.DB, row *types.ConversationTurn) error {
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

func (r *conversationTurnRepo) ListRecentForAttempt(ctx context.Context, tx *gorm.DB, traineeID uuid.UUID, day int, since *time.Time, limit int) ([]*types.ConversationTurn, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	q := transaction.WithContext(ctx).
		Where("trainee_id = ? AND day_tested = ?", traineeID, day)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}

	var results []*types.ConversationTurn
	if err := q.Order("created_at DESC").Limit(limit).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conversationTurnRepo) ListByTrainee(ctx context.Context, tx *gorm.DB, traineeID uuid.UUID, limit, offset int) ([]*types.ConversationTurn, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	q := transaction.WithContext(ctx).
		Where("trainee_id = ?", traineeID).
		Order("created_at DESC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var results []*types.ConversationTurn
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conversationTurnRepo) StatsByTrainee(ctx context.Context, tx *gorm.DB, traineeID uuid.UUID) (*TraineeStats, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var agg struct {
		Total    int64
		Passed   int64
		AvgScore *float64
	}
	// CASE WHEN instead of FILTER so the query runs on both Postgres and the
	// sqlite dev/test driver.
	err := transaction.WithContext(ctx).
		Model(&types.ConversationTurn{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN passed THEN 1 ELSE 0 END), 0) AS passed, AVG(score) AS avg_score").
		Where("trainee_id = ?", traineeID).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	stats := &TraineeStats{
		TotalTurns:  agg.Total,
		PassedCount: agg.Passed,
		FailedCount: agg.Total - agg.Passed,
	}
	if agg.Total > 0 {
		stats.PassRate = float64(agg.Passed) / float64(agg.Total) * 100
	}
	if agg.AvgScore != nil {
		stats.AverageScore = *agg.AvgScore
	}
	return stats, nil
}
