package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/coachline/coachline-backend/internal/catalog"
	"github.com/coachline/coachline-backend/internal/logger"
	"github.com/coachline/coachline-backend/internal/repos"
	"github.com/coachline/coachline-backend/internal/types"
)

var (
	ErrAlreadyEnrolled = errors.New("trainee already has an open course")
	ErrNotEnrolled     = errors.New("trainee has no course progress")
	ErrInvalidTestDay  = errors.New("requested day does not exist in the edition catalog")
	ErrWrongStatus     = errors.New("progress is not in a status that allows this action")
)

// pushConcurrency bounds how many trainees are pushed to at once.
const pushConcurrency = 8

// PushSender delivers an outbound message to a trainee on the messaging
// channel. Implementations must be safe for concurrent use.
type PushSender interface {
	Push(ctx context.Context, channelUserID, text string) error
}

// PersonaFn picks the counterpart persona for a new attempt.
type PersonaFn func() string

// RandomPersona is the default PersonaFn.
func RandomPersona() string {
	if rand.Intn(2) == 0 {
		return types.PersonaA
	}
	return types.PersonaB
}

// PushReport summarizes one daily push batch.
type PushReport struct {
	Pushed  int `json:"pushed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type DispatchService interface {
	// Enroll registers a channel user and opens a pending course for them.
	Enroll(ctx context.Context, channelUserID, displayName, edition string) (*types.Trainee, *types.TraineeProgress, error)

	// StartManualTest points an active course at an out-of-band day. Passing
	// the test clears the override without touching official progress.
	StartManualTest(ctx context.Context, traineeID uuid.UUID, day int) (*types.TraineeProgress, error)

	// StartAttempt opens a fresh attempt on the effective day: activates a
	// pending course, re-rolls the persona, resets the round counter and
	// attempt watermark. Returns the opening text the trainee should receive.
	StartAttempt(ctx context.Context, traineeID uuid.UUID) (*types.TraineeProgress, string, error)

	// RetryCurrentAttempt resets the round counter and attempt watermark for
	// the effective day, re-rolling the persona.
	RetryCurrentAttempt(ctx context.Context, traineeID uuid.UUID) (*types.TraineeProgress, error)

	// PushDaily opens the day for every active trainee that has not been
	// pushed to today: it rolls a fresh attempt and sends the scenario
	// opening. Deduplicated per trainee per calendar date.
	PushDaily(ctx context.Context) (*PushReport, error)

	// MarkResponded flags today's push record for the trainee as answered.
	// Best effort: unknown users and absent records are not errors.
	MarkResponded(ctx context.Context, channelUserID string)

	// ListUnresponded returns pushes from the last days days that the
	// trainee never answered, newest first. days <= 0 uses a week.
	ListUnresponded(ctx context.Context, days int) ([]*types.PushRecord, error)

	Pause(ctx context.Context, traineeID uuid.UUID) (*types.TraineeProgress, error)
	Resume(ctx context.Context, traineeID uuid.UUID) (*types.TraineeProgress, error)
	Restart(ctx context.Context, traineeID uuid.UUID) (*types.TraineeProgress, error)
}

type dispatchService struct {
	log       *logger.Logger
	catalog   *catalog.Catalog
	trainees  repos.TraineeRepo
	progress  repos.TraineeProgressRepo
	pushes    repos.PushRecordRepo
	txRunner  repos.TxRunner
	sender    PushSender
	personaFn PersonaFn
	now       func() time.Time
}

func NewDispatchService(
	log *logger.Logger,
	cat *catalog.Catalog,
	trainees repos.TraineeRepo,
	progress repos.TraineeProgressRepo,
	pushes repos.PushRecordRepo,
	txRunner repos.TxRunner,
	sender PushSender,
	personaFn PersonaFn,
) DispatchService {
	if personaFn == nil {
		personaFn = RandomPersona
	}
	return &dispatchService{
		log:       log.With("service", "DispatchService"),
		catalog:   cat,
		trainees:  trainees,
		progress:  progress,
		pushes:    pushes,
		txRunner:  txRunner,
		sender:    sender,
		personaFn: personaFn,
		now:       time.Now,
	}
}

func (s *dispatchService) Enroll(ctx context.Context, channelUserID, displayName, edition string) (*types.Trainee, *types.TraineeProgress, error) {
	if edition == "" {
		edition = "default"
	}
	if _, err := s.catalog.MaxDay(edition); err != nil {
		return nil, nil, fmt.Errorf("unknown edition %q: %w", edition, err)
	}

	var trainee *types.Trainee
	var prog *types.TraineeProgress
	err := s.txRunner.InTx(ctx, func(tx *gorm.DB) error {
		existing, err := s.trainees.GetByChannelUserID(ctx, tx, channelUserID)
		switch {
		case err == nil:
			trainee = existing
			latest, lerr := s.progress.GetLatestByTraineeID(ctx, tx, trainee.ID)
			if lerr == nil && latest.Status != types.ProgressStatusCompleted {
				return ErrAlreadyEnrolled
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			trainee = &types.Trainee{
				ChannelUserID:       channelUserID,
				DisplayName:         displayName,
				NotificationEnabled: true,
				Active:              true,
			}
			if cerr := s.trainees.Create(ctx, tx, trainee); cerr != nil {
				return fmt.Errorf("create trainee: %w", cerr)
			}
		default:
			return fmt.Errorf("load trainee: %w", err)
		}

		prog = &types.TraineeProgress{
			TraineeID: trainee.ID,
			Edition:   edition,
			Status:    types.ProgressStatusPending,
			Persona:   s.personaFn(),
		}
		if cerr := s.progress.Create(ctx, tx, prog); cerr != nil {
			return fmt.Errorf("create progress: %w", cerr)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("Trainee enrolled",
		"trainee_id", trainee.ID.String(),
		"edition", edition,
	)
	return trainee, prog, nil
}

func (s *dispatchService) StartManualTest(ctx context.Context, traineeID uuid.UUID, day int) (*types.TraineeProgress, error) {
	prog, err := s.loadProgress(ctx, traineeID)
	if err != nil {
		return nil, err
	}
	if prog.Status != types.ProgressStatusActive {
		return nil, ErrWrongStatus
	}
	if !s.catalog.HasDay(prog.Edition, day) {
		return nil, ErrInvalidTestDay
	}

	now := s.now()
	prog.DayUnderTest = &day
	prog.CurrentRound = 0
	prog.AttemptStartedAt = &now
	prog.Persona = s.personaFn()
	if err := s.progress.Update(ctx, nil, prog); err != nil {
		return nil, fmt.Errorf("start manual test: %w", err)
	}

	s.log.Info("Manual test started",
		"trainee_id", traineeID.String(),
		"day", day,
		"persona", prog.Persona,
	)
	return prog, nil
}

func (s *dispatchService) StartAttempt(ctx context.Context, traineeID uuid.UUID) (*types.TraineeProgress, string, error) {
	prog, err := s.loadProgress(ctx, traineeID)
	if err != nil {
		return nil, "", err
	}
	if prog.Status != types.ProgressStatusActive && prog.Status != types.ProgressStatusPending {
		return nil, "", ErrWrongStatus
	}

	effectiveDay := prog.CurrentDay
	if prog.DayUnderTest != nil {
		effectiveDay = *prog.DayUnderTest
	}
	day, err := s.catalog.Lookup(prog.Edition, effectiveDay)
	if err != nil {
		if errors.Is(err, catalog.ErrDayNotFound) {
			// past the last catalog day; nothing left to open
			return nil, "", ErrWrongStatus
		}
		return nil, "", err
	}

	now := s.now()
	prog.CurrentRound = 0
	prog.AttemptStartedAt = &now
	prog.Persona = s.personaFn()
	if prog.Status == types.ProgressStatusPending {
		prog.Status = types.ProgressStatusActive
		prog.StartedAt = &now
	}
	if err := s.progress.Update(ctx, nil, prog); err != nil {
		return nil, "", fmt.Errorf("start attempt: %w", err)
	}

	opening := day.TeachingContent
	if day.Kind != catalog.KindTeaching {
		opening = day.Opening(prog.Persona)
	}

	s.log.Info("Attempt started",
		"trainee_id", traineeID.String(),
		"day", effectiveDay,
		"persona", prog.Persona,
	)
	return prog, opening, nil
}

func (s *dispatchService) RetryCurrentAttempt(ctx context.Context, traineeID uuid.UUID) (*types.TraineeProgress, error) {
	prog, err := s.loadProgress(ctx, traineeID)
	if err != nil {
		return nil, err
	}
	if prog.Status != types.ProgressStatusActive {
		return nil, ErrWrongStatus
	}

	now := s.now()
	prog.CurrentRound = 0
	prog.AttemptStartedAt = &now
	prog.Persona = s.personaFn()
	if err := s.progress.Update(ctx, nil, prog); err != nil {
		return nil, fmt.Errorf("retry attempt: %w", err)
	}
	return prog, nil
}

func (s *dispatchService) PushDaily(ctx context.Context) (*PushReport, error) {
	active, err := s.progress.ListByStatus(ctx, nil, types.ProgressStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active progress: %w", err)
	}
	pending, err := s.progress.ListByStatus(ctx, nil, types.ProgressStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending progress: %w", err)
	}
	all := append(active, pending...)

	var mu sync.Mutex
	report := &PushReport{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pushConcurrency)
	for _, prog := range all {
		prog := prog
		g.Go(func() error {
			pushed, err := s.pushOne(gctx, prog)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				s.log.Warn("Daily push failed",
					"trainee_id", prog.TraineeID.String(),
					"error", err,
				)
			case pushed:
				report.Pushed++
			default:
				report.Skipped++
			}
			// per-trainee failures never abort the batch
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("Daily push finished",
		"pushed", report.Pushed,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

// pushOne opens today's attempt for one trainee. Returns false when the
// trainee was skipped (already pushed today, notifications off, or the
// course just completed).
func (s *dispatchService) pushOne(ctx context.Context, prog *types.TraineeProgress) (bool, error) {
	trainee, err := s.trainees.GetByID(ctx, nil, prog.TraineeID)
	if err != nil {
		return false, fmt.Errorf("load trainee: %w", err)
	}
	if !trainee.Active || !trainee.NotificationEnabled {
		return false, nil
	}

	today := types.PushDateOf(s.now())
	if _, err := s.pushes.GetByTraineeAndDate(ctx, nil, trainee.ID, today); err == nil {
		return false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("check push record: %w", err)
	}

	effectiveDay := prog.CurrentDay
	if prog.DayUnderTest != nil {
		effectiveDay = *prog.DayUnderTest
	}

	day, err := s.catalog.Lookup(prog.Edition, effectiveDay)
	if err != nil {
		if errors.Is(err, catalog.ErrDayNotFound) {
			return false, nil
		}
		return false, err
	}

	now := s.now()
	prog.CurrentRound = 0
	prog.AttemptStartedAt = &now
	prog.Persona = s.personaFn()
	prog.LastPushAt = &now
	if prog.Status == types.ProgressStatusPending {
		prog.Status = types.ProgressStatusActive
		prog.StartedAt = &now
	}

	var text string
	if day.Kind == catalog.KindTeaching {
		text = day.TeachingContent
	} else {
		text = day.Opening(prog.Persona)
	}

	if err := s.sender.Push(ctx, trainee.ChannelUserID, text); err != nil {
		return false, fmt.Errorf("send push: %w", err)
	}

	err = s.txRunner.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.pushes.Create(ctx, tx, &types.PushRecord{
			TraineeID: trainee.ID,
			Day:       effectiveDay,
			PushDate:  today,
		}); err != nil {
			return fmt.Errorf("record push: %w", err)
		}
		if err := s.progress.Update(ctx, tx, prog); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *dispatchService) MarkResponded(ctx context.Context, channelUserID string) {
	trainee, err := s.trainees.GetByChannelUserID(ctx, nil, channelUserID)
	if err != nil {
		return
	}
	today := types.PushDateOf(s.now())
	if err := s.pushes.MarkResponded(ctx, nil, trainee.ID, today); err != nil {
		s.log.Warn("Failed to mark push responded",
			"trainee_id", trainee.ID.String(),
			"error", err,
		)
	}
}

func (s *dispatchService) ListUnresponded(ctx context.Context, days int) ([]*types.PushRecord, error) {
	if days <= 0 {
		days = 7
	}
	since := s.now().AddDate(0, 0, -days)
	records, err := s.pushes.ListUnresponded(ctx, nil, since)
	if err != nil {
		return nil, fmt.Errorf("list unresponded pushes: %w", err)
	}
	return records, nil
}

func (s *dispatchService) Pause(ctx context.Context, traineeID uuid.UUID) (*types.TraineeProgress, error) {
	prog, err := s.loadProgress(ctx, traineeID)
	if err != nil {
		return nil, err
	}
	if prog.Status != types.ProgressStatusActive {
		return nil, ErrWrongStatus
	}
	now := s.now()
	prog.Status = types.ProgressStatusPaused
	prog.PausedAt = &now
	if err := s.progress.Update(ctx, nil, prog); err != nil {
		return nil, fmt.Errorf("pause progress: %w", err)
	}
	return prog, nil
}

func (s *dispatchService) Resume(ctx context.Context, traineeID uuid.UUID) (*types.TraineeProgress, error) {
	prog, err := s.loadProgress(ctx, traineeID)
	if err != nil {
		return nil, err
	}
	if prog.Status != types.ProgressStatusPaused {
		return nil, ErrWrongStatus
	}
	now := s.now()
	prog.Status = types.ProgressStatusActive
	prog.PausedAt = nil
	prog.AttemptStartedAt = &now
	prog.CurrentRound = 0
	if err := s.progress.Update(ctx, nil, prog); err != nil {
		return nil, fmt.Errorf("resume progress: %w", err)
	}
	return prog, nil
}

func (s *dispatchService) Restart(ctx context.Context, traineeID uuid.UUID) (*types.TraineeProgress, error) {
	prog, err := s.loadProgress(ctx, traineeID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	prog.Status = types.ProgressStatusActive
	prog.CurrentDay = 0
	prog.CurrentRound = 0
	prog.DayUnderTest = nil
	prog.Persona = s.personaFn()
	prog.AttemptStartedAt = &now
	prog.StartedAt = &now
	prog.PausedAt = nil
	prog.CompletedAt = nil
	if err := s.progress.Update(ctx, nil, prog); err != nil {
		return nil, fmt.Errorf("restart progress: %w", err)
	}
	s.log.Info("Course restarted", "trainee_id", traineeID.String())
	return prog, nil
}

func (s *dispatchService) loadProgress(ctx context.Context, traineeID uuid.UUID) (*types.TraineeProgress, error) {
	prog, err := s.progress.GetLatestByTraineeID(ctx, nil, traineeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("load progress: %w", err)
	}
	return prog, nil
}
