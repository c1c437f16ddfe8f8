package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/coachline/coachline-backend/internal/catalog"
	"github.com/coachline/coachline-backend/internal/logger"
	"github.com/coachline/coachline-backend/internal/oracle"
	"github.com/coachline/coachline-backend/internal/repos"
	"github.com/coachline/coachline-backend/internal/types"
)

// ErrTraineeBusy means a previous message from the same trainee is still
// being graded. Surfaced as 409 by the transport.
var ErrTraineeBusy = errors.New("a message from this trainee is already being processed")

// contextTurnLimit caps how many prior exchanges are replayed to the oracle.
const contextTurnLimit = 10

const (
	replyNotEnrolled   = "Hi! You are not enrolled in a training course yet. Your coordinator will set you up shortly."
	replyNotStarted    = "Hi! Your training course has not started yet. You will get a message here when day one opens."
	replyPaused        = "Your training is currently paused. Your coordinator can resume it at any time."
	replyAllDone       = "You have already completed every day of this course. Well done!"
	replyCourseDone    = "Congratulations! You have completed every scenario in the course."
	replyTeachingAck   = "Got it, thanks for reading! The next day's scenario will be sent to you soon."
	reasonNotEnrolled  = "trainee not enrolled"
	reasonTeachingPass = "teaching day, no assessment"
	reasonCourseDone   = "course completed"
)

// TrainingResult is what the transport layer renders back to the trainee.
type TrainingResult struct {
	Verdict     *oracle.Verdict `json:"verdict"`
	CurrentDay  int             `json:"current_day"`
	NextDay     int             `json:"next_day"`
	IsCompleted bool            `json:"is_completed"`
	RoundCount  int             `json:"round_count"`
}

// TurnLock serializes message processing per trainee. Release must always be
// called when Acquire succeeds. A nil TurnLock disables the guard.
type TurnLock interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type TrainingService interface {
	// ProcessMessage is the single entry point for an inbound trainee
	// message: it resolves the effective day and persona, grades the
	// exchange, persists the turn, and applies the progression rules.
	ProcessMessage(ctx context.Context, channelUserID, text string) (*TrainingResult, error)
}

type trainingService struct {
	db       *gorm.DB
	log      *logger.Logger
	catalog  *catalog.Catalog
	grader   oracle.Client
	trainees repos.TraineeRepo
	progress repos.TraineeProgressRepo
	turns    repos.ConversationTurnRepo
	callLogs repos.OracleCallLogRepo
	txRunner repos.TxRunner
	lock     TurnLock
}

func NewTrainingService(
	db *gorm.DB,
	log *logger.Logger,
	cat *catalog.Catalog,
	grader oracle.Client,
	trainees repos.TraineeRepo,
	progress repos.TraineeProgressRepo,
	turns repos.ConversationTurnRepo,
	callLogs repos.OracleCallLogRepo,
	txRunner repos.TxRunner,
	lock TurnLock,
) TrainingService {
	return &trainingService{
		db:       db,
		log:      log.With("service", "TrainingService"),
		catalog:  cat,
		grader:   grader,
		trainees: trainees,
		progress: progress,
		turns:    turns,
		callLogs: callLogs,
		txRunner: txRunner,
		lock:     lock,
	}
}

// testTarget is the effective assessment target for one message, resolved
// once so the advance rule is a single branch instead of scattered checks.
// manual means the day comes from the administrator's DayUnderTest override
// and passing it must not move official progress.
type testTarget struct {
	day    int
	manual bool
}

func resolveTarget(p *types.TraineeProgress) testTarget {
	if p.DayUnderTest != nil {
		return testTarget{day: *p.DayUnderTest, manual: *p.DayUnderTest != p.CurrentDay}
	}
	return testTarget{day: p.CurrentDay}
}

func terminalResult(reply, reason string, passed bool, score int) *TrainingResult {
	return &TrainingResult{
		Verdict: &oracle.Verdict{
			Reply:   reply,
			IsFinal: true,
			Passed:  passed,
			Score:   score,
			Reason:  reason,
		},
	}
}

func (s *trainingService) ProcessMessage(ctx context.Context, channelUserID, text string) (*TrainingResult, error) {
	if s.lock != nil {
		release, err := s.lock.Acquire(ctx, channelUserID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	trainee, err := s.trainees.GetByChannelUserID(ctx, nil, channelUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Never enrolled: terminal reply, no state is created.
			return terminalResult(replyNotEnrolled, reasonNotEnrolled, false, 0), nil
		}
		return nil, fmt.Errorf("load trainee: %w", err)
	}

	prog, err := s.progress.GetActiveByTraineeID(ctx, nil, trainee.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load progress: %w", err)
		}
		return s.inactiveResult(ctx, trainee), nil
	}

	target := resolveTarget(prog)

	day, err := s.catalog.Lookup(prog.Edition, target.day)
	if err != nil {
		if errors.Is(err, catalog.ErrDayNotFound) {
			// No scenario past this day: the course is finished. Not an error.
			return s.finishCourse(ctx, prog, target)
		}
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}

	if day.Kind == catalog.KindTeaching {
		return s.processTeaching(ctx, trainee, prog, target, day, text)
	}
	return s.processAssessment(ctx, trainee, prog, target, day, text)
}

// inactiveResult distinguishes "enrolled but not started" from paused and
// completed states. None of these mutate anything.
func (s *trainingService) inactiveResult(ctx context.Context, trainee *types.Trainee) *TrainingResult {
	latest, err := s.progress.GetLatestByTraineeID(ctx, nil, trainee.ID)
	if err != nil {
		return terminalResult(replyNotEnrolled, reasonNotEnrolled, false, 0)
	}
	switch latest.Status {
	case types.ProgressStatusPending:
		return terminalResult(replyNotStarted, reasonNotEnrolled, false, 0)
	case types.ProgressStatusPaused:
		return terminalResult(replyPaused, reasonNotEnrolled, false, 0)
	case types.ProgressStatusCompleted:
		r := terminalResult(replyAllDone, reasonCourseDone, true, 100)
		r.CurrentDay = latest.CurrentDay
		r.NextDay = latest.CurrentDay
		r.IsCompleted = true
		return r
	default:
		return terminalResult(replyNotEnrolled, reasonNotEnrolled, false, 0)
	}
}

func (s *trainingService) finishCourse(ctx context.Context, prog *types.TraineeProgress, target testTarget) (*TrainingResult, error) {
	if target.manual {
		// the override points at a day the catalog no longer has; drop it
		// so the next message lands on the official day again
		prog.DayUnderTest = nil
		prog.CurrentRound = 0
		prog.AttemptStartedAt = nil
		if err := s.progress.Update(ctx, nil, prog); err != nil {
			return nil, fmt.Errorf("clear stale test day: %w", err)
		}
	} else if prog.Status != types.ProgressStatusCompleted {
		now := time.Now()
		prog.Status = types.ProgressStatusCompleted
		prog.CompletedAt = &now
		prog.CurrentRound = 0
		prog.DayUnderTest = nil
		if err := s.progress.Update(ctx, nil, prog); err != nil {
			return nil, fmt.Errorf("complete progress: %w", err)
		}
	}
	r := terminalResult(replyCourseDone, reasonCourseDone, true, 100)
	r.CurrentDay = target.day
	r.NextDay = target.day
	r.IsCompleted = true
	return r, nil
}

func (s *trainingService) processTeaching(ctx context.Context, trainee *types.Trainee, prog *types.TraineeProgress, target testTarget, day *catalog.ScenarioDay, text string) (*TrainingResult, error) {
	verdict := &oracle.Verdict{
		Reply:   replyTeachingAck,
		IsFinal: true,
		Passed:  true,
		Score:   100,
		Reason:  reasonTeachingPass,
	}
	return s.commitTurn(ctx, trainee, prog, target, verdict, text, prog.CurrentRound+1)
}

func (s *trainingService) processAssessment(ctx context.Context, trainee *types.Trainee, prog *types.TraineeProgress, target testTarget, day *catalog.ScenarioDay, text string) (*TrainingResult, error) {
	persona := prog.Persona
	if persona == "" {
		persona = types.PersonaA
	}

	prior, err := s.attemptContext(ctx, trainee, prog, target)
	if err != nil {
		return nil, fmt.Errorf("assemble conversation context: %w", err)
	}

	newRound := prog.CurrentRound + 1
	directive := oracle.BuildDirective(day, persona, prog.CurrentRound)

	// Any oracle failure leaves all state untouched: the turn is not logged
	// and the round is not incremented. The caller converts this into an
	// apology message and the trainee can simply resend.
	res, err := s.grader.Grade(ctx, directive, prior, text)
	s.recordCall(ctx, trainee, target, newRound, directive, res, err)
	if err != nil {
		return nil, fmt.Errorf("grade round %d of day %d: %w", newRound, target.day, err)
	}

	return s.commitTurn(ctx, trainee, prog, target, res.Verdict, text, newRound)
}

// attemptContext loads the turns of the current attempt: same trainee, same
// effective day, created at or after the attempt watermark. A nil watermark
// falls back to every turn for the day (rows that predate attempt tracking).
// Oldest first, capped to the most recent exchanges.
func (s *trainingService) attemptContext(ctx context.Context, trainee *types.Trainee, prog *types.TraineeProgress, target testTarget) ([]oracle.Turn, error) {
	rows, err := s.turns.ListRecentForAttempt(ctx, nil, trainee.ID, target.day, prog.AttemptStartedAt, contextTurnLimit)
	if err != nil {
		return nil, err
	}
	// rows are newest first; replay them in conversation order
	out := make([]oracle.Turn, 0, len(rows)*2)
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out,
			oracle.Turn{Role: oracle.RoleUser, Text: rows[i].UserMessage},
			oracle.Turn{Role: oracle.RoleAssistant, Text: rows[i].AIReply},
		)
	}
	return out, nil
}

// commitTurn persists the exchange and the progress change in one
// transaction, then builds the TrainingResult. The advance rule only fires
// on a final verdict.
func (s *trainingService) commitTurn(ctx context.Context, trainee *types.Trainee, prog *types.TraineeProgress, target testTarget, verdict *oracle.Verdict, text string, newRound int) (*TrainingResult, error) {
	maxDay, err := s.catalog.MaxDay(prog.Edition)
	if err != nil {
		return nil, fmt.Errorf("resolve max day: %w", err)
	}

	nextDay := target.day
	completed := false

	prog.CurrentRound = newRound

	if verdict.IsFinal {
		switch {
		case verdict.Passed && target.manual:
			// Manual test: official progress is untouched.
			prog.DayUnderTest = nil
			prog.CurrentRound = 0
			prog.AttemptStartedAt = nil
		case verdict.Passed && target.day < maxDay:
			nextDay = target.day + 1
			prog.CurrentDay = nextDay
			prog.CurrentRound = 0
			prog.DayUnderTest = nil
			prog.AttemptStartedAt = nil
		case verdict.Passed:
			// Passed the catalog's last day.
			completed = true
			now := time.Now()
			prog.Status = types.ProgressStatusCompleted
			prog.CompletedAt = &now
			prog.CurrentRound = 0
			prog.DayUnderTest = nil
		default:
			// Failed: round resets, the day under test stays pending, and the
			// persona is only re-randomized by an explicit retry.
			prog.CurrentRound = 0
		}
	}

	turn := &types.ConversationTurn{
		TraineeID:   trainee.ID,
		DayTested:   target.day,
		UserMessage: text,
		AIReply:     verdict.Reply,
		Passed:      verdict.Passed,
		Score:       verdict.Score,
		Reason:      verdict.Reason,
		Final:       verdict.IsFinal,
	}

	err = s.txRunner.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.turns.Create(ctx, tx, turn); err != nil {
			return fmt.Errorf("insert conversation turn: %w", err)
		}
		if err := s.progress.Update(ctx, tx, prog); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Turn processed",
		"trainee_id", trainee.ID.String(),
		"day", target.day,
		"manual_test", target.manual,
		"round", newRound,
		"final", verdict.IsFinal,
		"passed", verdict.Passed,
		"next_day", nextDay,
	)

	return &TrainingResult{
		Verdict:     verdict,
		CurrentDay:  target.day,
		NextDay:     nextDay,
		IsCompleted: completed,
		RoundCount:  newRound,
	}, nil
}

// recordCall writes the oracle call log outside the turn transaction;
// failures only warn.
func (s *trainingService) recordCall(ctx context.Context, trainee *types.Trainee, target testTarget, round int, directive string, res *oracle.GradeResult, callErr error) {
	if s.callLogs == nil {
		return
	}
	row := &types.OracleCallLog{
		TraineeID: &trainee.ID,
		Day:       target.day,
		Round:     round,
		Directive: directive,
		Success:   callErr == nil,
	}
	if res != nil {
		row.Model = res.Model
		row.RawOutput = res.Raw
		row.ParserUsed = res.ParserUsed
		row.LatencyMS = res.Latency.Milliseconds()
		if b, err := json.Marshal(res.Verdict); err == nil {
			row.Parsed = datatypes.JSON(b)
		}
	}
	if callErr != nil {
		row.Error = callErr.Error()
	}
	if err := s.callLogs.Create(ctx, nil, row); err != nil {
		s.log.Warn("Failed to record oracle call", "error", err)
	}
}
