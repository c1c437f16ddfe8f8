package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coachline/coachline-backend/internal/catalog"
	"github.com/coachline/coachline-backend/internal/logger"
	"github.com/coachline/coachline-backend/internal/repos"
	"github.com/coachline/coachline-backend/internal/types"
)

// ProgressSummary is the admin-facing view of one trainee's course state.
type ProgressSummary struct {
	TraineeID       uuid.UUID `json:"trainee_id"`
	DisplayName     string    `json:"display_name"`
	Edition         string    `json:"edition"`
	Status          string    `json:"status"`
	CurrentDay      int       `json:"current_day"`
	CurrentRound    int       `json:"current_round"`
	Persona         string    `json:"persona"`
	DayUnderTest    *int      `json:"day_under_test,omitempty"`
	DayTitle        string    `json:"day_title,omitempty"`
	ProgressPercent int       `json:"progress_percent"`
	IsCompleted     bool      `json:"is_completed"`
}

type ProgressService interface {
	Summary(ctx context.Context, traineeID uuid.UUID) (*ProgressSummary, error)
	Stats(ctx context.Context, traineeID uuid.UUID) (*repos.TraineeStats, error)
	History(ctx context.Context, traineeID uuid.UUID, limit int) ([]*types.ConversationTurn, error)
	ListTrainees(ctx context.Context) ([]*types.Trainee, error)
}

type progressService struct {
	log      *logger.Logger
	catalog  *catalog.Catalog
	trainees repos.TraineeRepo
	progress repos.TraineeProgressRepo
	turns    repos.ConversationTurnRepo
}

func NewProgressService(
	log *logger.Logger,
	cat *catalog.Catalog,
	trainees repos.TraineeRepo,
	progress repos.TraineeProgressRepo,
	turns repos.ConversationTurnRepo,
) ProgressService {
	return &progressService{
		log:      log.With("service", "ProgressService"),
		catalog:  cat,
		trainees: trainees,
		progress: progress,
		turns:    turns,
	}
}

func (s *progressService) Summary(ctx context.Context, traineeID uuid.UUID) (*ProgressSummary, error) {
	trainee, err := s.trainees.GetByID(ctx, nil, traineeID)
	if err != nil {
		return nil, fmt.Errorf("load trainee: %w", err)
	}
	prog, err := s.progress.GetLatestByTraineeID(ctx, nil, traineeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("load progress: %w", err)
	}

	out := &ProgressSummary{
		TraineeID:    trainee.ID,
		DisplayName:  trainee.DisplayName,
		Edition:      prog.Edition,
		Status:       prog.Status,
		CurrentDay:   prog.CurrentDay,
		CurrentRound: prog.CurrentRound,
		Persona:      prog.Persona,
		DayUnderTest: prog.DayUnderTest,
		IsCompleted:  prog.Status == types.ProgressStatusCompleted,
	}

	maxDay, err := s.catalog.MaxDay(prog.Edition)
	if err == nil && maxDay > 0 {
		pct := prog.CurrentDay * 100 / maxDay
		if out.IsCompleted {
			pct = 100
		}
		if pct > 100 {
			pct = 100
		}
		out.ProgressPercent = pct
	}

	effectiveDay := prog.CurrentDay
	if prog.DayUnderTest != nil {
		effectiveDay = *prog.DayUnderTest
	}
	if day, derr := s.catalog.Lookup(prog.Edition, effectiveDay); derr == nil {
		out.DayTitle = day.Title
	}
	return out, nil
}

func (s *progressService) Stats(ctx context.Context, traineeID uuid.UUID) (*repos.TraineeStats, error) {
	if _, err := s.trainees.GetByID(ctx, nil, traineeID); err != nil {
		return nil, fmt.Errorf("load trainee: %w", err)
	}
	return s.turns.StatsByTrainee(ctx, nil, traineeID)
}

func (s *progressService) History(ctx context.Context, traineeID uuid.UUID, limit int) ([]*types.ConversationTurn, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.turns.ListByTrainee(ctx, nil, traineeID, limit, 0)
}

func (s *progressService) ListTrainees(ctx context.Context) ([]*types.Trainee, error) {
	return s.trainees.List(ctx, nil)
}
