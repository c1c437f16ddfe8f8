package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coachline/coachline-backend/internal/catalog"
	"github.com/coachline/coachline-backend/internal/logger"
	"github.com/coachline/coachline-backend/internal/repos"
	"github.com/coachline/coachline-backend/internal/types"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentPush
	failTo string
}

type sentPush struct {
	to   string
	text string
}

func (s *fakeSender) Push(_ context.Context, channelUserID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTo != "" && s.failTo == channelUserID {
		return fmt.Errorf("channel rejected message")
	}
	s.sent = append(s.sent, sentPush{to: channelUserID, text: text})
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type dispatchFixture struct {
	db       *gorm.DB
	log      *logger.Logger
	catalog  *catalog.Catalog
	trainees repos.TraineeRepo
	progress repos.TraineeProgressRepo
	pushes   repos.PushRecordRepo
	sender   *fakeSender
	service  DispatchService
}

func fixedPersona(p string) PersonaFn {
	return func() string { return p }
}

func newDispatchFixture(t *testing.T, personaFn PersonaFn) *dispatchFixture {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)

	gdb := newTestDB(t)
	cat, err := catalog.Load("", log)
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}

	f := &dispatchFixture{
		db:       gdb,
		log:      log,
		catalog:  cat,
		trainees: repos.NewTraineeRepo(gdb, log),
		progress: repos.NewTraineeProgressRepo(gdb, log),
		pushes:   repos.NewPushRecordRepo(gdb, log),
		sender:   &fakeSender{},
	}
	f.service = NewDispatchService(
		log, cat,
		f.trainees, f.progress, f.pushes,
		repos.NewTxRunner(gdb),
		f.sender,
		personaFn,
	)
	return f
}

func (f *dispatchFixture) seedActive(t *testing.T, mutate func(p *types.TraineeProgress)) (*types.Trainee, *types.TraineeProgress) {
	t.Helper()
	ctx := context.Background()
	trainee := &types.Trainee{
		ChannelUserID:       "chan-" + uuid.New().String(),
		DisplayName:         "Dispatch Trainee",
		NotificationEnabled: true,
		Active:              true,
	}
	if err := f.trainees.Create(ctx, nil, trainee); err != nil {
		t.Fatalf("create trainee: %v", err)
	}
	now := time.Now()
	prog := &types.TraineeProgress{
		TraineeID:        trainee.ID,
		Edition:          "default",
		Status:           types.ProgressStatusActive,
		CurrentDay:       1,
		Persona:          types.PersonaA,
		AttemptStartedAt: &now,
		StartedAt:        &now,
	}
	if mutate != nil {
		mutate(prog)
	}
	if err := f.progress.Create(ctx, nil, prog); err != nil {
		t.Fatalf("create progress: %v", err)
	}
	return trainee, prog
}

func TestEnrollCreatesTraineeAndPendingProgress(t *testing.T) {
	f := newDispatchFixture(t, fixedPersona(types.PersonaB))
	ctx := context.Background()

	trainee, prog, err := f.service.Enroll(ctx, "line-u-1", "Alex", "")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if trainee.ChannelUserID != "line-u-1" || !trainee.NotificationEnabled {
		t.Fatalf("trainee: %+v", trainee)
	}
	if prog.Status != types.ProgressStatusPending {
		t.Fatalf("status: want=pending got=%q", prog.Status)
	}
	if prog.Edition != "default" {
		t.Fatalf("edition: got %q", prog.Edition)
	}
	if prog.CurrentDay != 0 || prog.CurrentRound != 0 {
		t.Fatalf("fresh progress should start at day 0: %+v", prog)
	}
	if prog.Persona != types.PersonaB {
		t.Fatalf("persona: got %q", prog.Persona)
	}

	_, _, err = f.service.Enroll(ctx, "line-u-1", "Alex", "")
	if !errors.Is(err, ErrAlreadyEnrolled) {
		t.Fatalf("second enroll: want ErrAlreadyEnrolled, got %v", err)
	}
}

func TestEnrollUnknownEditionFails(t *testing.T) {
	f := newDispatchFixture(t, nil)
	_, _, err := f.service.Enroll(context.Background(), "line-u-2", "Sam", "advanced")
	if err == nil {
		t.Fatalf("Enroll should reject an unknown edition")
	}
}

func TestStartManualTest(t *testing.T) {
	f := newDispatchFixture(t, fixedPersona(types.PersonaB))
	_, prog := f.seedActive(t, func(p *types.TraineeProgress) {
		p.CurrentDay = 2
		p.CurrentRound = 3
		p.Persona = types.PersonaA
	})

	before := time.Now()
	got, err := f.service.StartManualTest(context.Background(), prog.TraineeID, 8)
	if err != nil {
		t.Fatalf("StartManualTest: %v", err)
	}
	if got.DayUnderTest == nil || *got.DayUnderTest != 8 {
		t.Fatalf("day under test: %+v", got.DayUnderTest)
	}
	if got.CurrentRound != 0 {
		t.Fatalf("round should reset, got %d", got.CurrentRound)
	}
	if got.CurrentDay != 2 {
		t.Fatalf("official day must not move, got %d", got.CurrentDay)
	}
	if got.Persona != types.PersonaB {
		t.Fatalf("persona should re-roll, got %q", got.Persona)
	}
	if got.AttemptStartedAt == nil || got.AttemptStartedAt.Before(before.Add(-time.Second)) {
		t.Fatalf("attempt watermark not refreshed: %+v", got.AttemptStartedAt)
	}
}

func TestStartManualTestInvalidDay(t *testing.T) {
	f := newDispatchFixture(t, nil)
	_, prog := f.seedActive(t, nil)

	_, err := f.service.StartManualTest(context.Background(), prog.TraineeID, 99)
	if !errors.Is(err, ErrInvalidTestDay) {
		t.Fatalf("want ErrInvalidTestDay, got %v", err)
	}
}

func TestStartManualTestWrongStatus(t *testing.T) {
	f := newDispatchFixture(t, nil)
	_, prog := f.seedActive(t, func(p *types.TraineeProgress) {
		p.Status = types.ProgressStatusPaused
	})

	_, err := f.service.StartManualTest(context.Background(), prog.TraineeID, 3)
	if !errors.Is(err, ErrWrongStatus) {
		t.Fatalf("want ErrWrongStatus, got %v", err)
	}

	_, err = f.service.StartManualTest(context.Background(), uuid.New(), 3)
	if !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("want ErrNotEnrolled, got %v", err)
	}
}

func TestRetryCurrentAttempt(t *testing.T) {
	f := newDispatchFixture(t, fixedPersona(types.PersonaB))
	day := 6
	old := time.Now().Add(-2 * time.Hour)
	_, prog := f.seedActive(t, func(p *types.TraineeProgress) {
		p.CurrentDay = 4
		p.CurrentRound = 2
		p.DayUnderTest = &day
		p.AttemptStartedAt = &old
		p.Persona = types.PersonaA
	})

	got, err := f.service.RetryCurrentAttempt(context.Background(), prog.TraineeID)
	if err != nil {
		t.Fatalf("RetryCurrentAttempt: %v", err)
	}
	if got.CurrentRound != 0 {
		t.Fatalf("round should reset, got %d", got.CurrentRound)
	}
	if got.DayUnderTest == nil || *got.DayUnderTest != 6 {
		t.Fatalf("retry must keep the day under test: %+v", got.DayUnderTest)
	}
	if got.AttemptStartedAt == nil || !got.AttemptStartedAt.After(old) {
		t.Fatalf("watermark not refreshed: %+v", got.AttemptStartedAt)
	}
	if got.Persona != types.PersonaB {
		t.Fatalf("persona should re-roll, got %q", got.Persona)
	}
}

func TestStartAttemptRollsFreshAttempt(t *testing.T) {
	f := newDispatchFixture(t, fixedPersona(types.PersonaB))
	old := time.Now().Add(-2 * time.Hour)
	_, prog := f.seedActive(t, func(p *types.TraineeProgress) {
		p.CurrentDay = 3
		p.CurrentRound = 2
		p.AttemptStartedAt = &old
		p.Persona = types.PersonaA
	})

	got, opening, err := f.service.StartAttempt(context.Background(), prog.TraineeID)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if got.CurrentRound != 0 {
		t.Fatalf("round should reset, got %d", got.CurrentRound)
	}
	if got.AttemptStartedAt == nil || !got.AttemptStartedAt.After(old) {
		t.Fatalf("watermark not refreshed: %+v", got.AttemptStartedAt)
	}
	if got.Persona != types.PersonaB {
		t.Fatalf("persona should re-roll, got %q", got.Persona)
	}
	day, err := f.catalog.Lookup("default", 3)
	if err != nil {
		t.Fatalf("catalog.Lookup: %v", err)
	}
	if opening != day.Opening(types.PersonaB) {
		t.Fatalf("opening mismatch: %q", opening)
	}
}

func TestStartAttemptActivatesPending(t *testing.T) {
	f := newDispatchFixture(t, fixedPersona(types.PersonaA))
	_, prog := f.seedActive(t, func(p *types.TraineeProgress) {
		p.Status = types.ProgressStatusPending
		p.CurrentDay = 0
		p.StartedAt = nil
		p.AttemptStartedAt = nil
	})

	got, opening, err := f.service.StartAttempt(context.Background(), prog.TraineeID)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if got.Status != types.ProgressStatusActive {
		t.Fatalf("expected active status, got %q", got.Status)
	}
	if got.StartedAt == nil {
		t.Fatal("StartedAt not set on activation")
	}
	day, err := f.catalog.Lookup("default", 0)
	if err != nil {
		t.Fatalf("catalog.Lookup: %v", err)
	}
	if opening != day.TeachingContent {
		t.Fatalf("teaching day should open with teaching content, got %q", opening)
	}
}

func TestStartAttemptWrongStatus(t *testing.T) {
	f := newDispatchFixture(t, nil)
	_, prog := f.seedActive(t, func(p *types.TraineeProgress) {
		p.Status = types.ProgressStatusPaused
	})

	if _, _, err := f.service.StartAttempt(context.Background(), prog.TraineeID); !errors.Is(err, ErrWrongStatus) {
		t.Fatalf("expected ErrWrongStatus, got %v", err)
	}
}

func TestPushDailySendsOpeningAndDedupes(t *testing.T) {
	f := newDispatchFixture(t, fixedPersona(types.PersonaB))
	trainee, prog := f.seedActive(t, func(p *types.TraineeProgress) {
		p.CurrentDay = 1
	})

	report, err := f.service.PushDaily(context.Background())
	if err != nil {
		t.Fatalf("PushDaily: %v", err)
	}
	if report.Pushed != 1 || report.Failed != 0 {
		t.Fatalf("report: %+v", report)
	}
	if f.sender.count() != 1 {
		t.Fatalf("sends: want=1 got=%d", f.sender.count())
	}

	day1, err := f.catalog.Lookup("default", 1)
	if err != nil {
		t.Fatalf("catalog lookup: %v", err)
	}
	if f.sender.sent[0].to != trainee.ChannelUserID {
		t.Fatalf("push target: got %q", f.sender.sent[0].to)
	}
	if f.sender.sent[0].text != day1.OpeningB {
		t.Fatalf("push text: want opening B %q got %q", day1.OpeningB, f.sender.sent[0].text)
	}

	reloaded, err := f.progress.GetByID(context.Background(), nil, prog.ID)
	if err != nil {
		t.Fatalf("reload progress: %v", err)
	}
	if reloaded.Persona != types.PersonaB || reloaded.CurrentRound != 0 {
		t.Fatalf("push should roll a fresh attempt: %+v", reloaded)
	}
	if reloaded.LastPushAt == nil || reloaded.AttemptStartedAt == nil {
		t.Fatalf("push timestamps missing: %+v", reloaded)
	}

	// same calendar day again: dedupe
	report, err = f.service.PushDaily(context.Background())
	if err != nil {
		t.Fatalf("second PushDaily: %v", err)
	}
	if report.Pushed != 0 || report.Skipped != 1 {
		t.Fatalf("dedupe report: %+v", report)
	}
	if f.sender.count() != 1 {
		t.Fatalf("dedupe should not send again, sends=%d", f.sender.count())
	}
}

func TestPushDailyActivatesPendingAndSendsTeaching(t *testing.T) {
	f := newDispatchFixture(t, fixedPersona(types.PersonaA))
	_, prog := f.seedActive(t, func(p *types.TraineeProgress) {
		p.Status = types.ProgressStatusPending
		p.CurrentDay = 0
		p.StartedAt = nil
		p.AttemptStartedAt = nil
	})

	report, err := f.service.PushDaily(context.Background())
	if err != nil {
		t.Fatalf("PushDaily: %v", err)
	}
	if report.Pushed != 1 {
		t.Fatalf("report: %+v", report)
	}

	day0, err := f.catalog.Lookup("default", 0)
	if err != nil {
		t.Fatalf("catalog lookup: %v", err)
	}
	if f.sender.sent[0].text != day0.TeachingContent {
		t.Fatalf("day 0 push should carry teaching content")
	}

	reloaded, err := f.progress.GetByID(context.Background(), nil, prog.ID)
	if err != nil {
		t.Fatalf("reload progress: %v", err)
	}
	if reloaded.Status != types.ProgressStatusActive {
		t.Fatalf("pending course should activate on first push, status=%q", reloaded.Status)
	}
	if reloaded.StartedAt == nil {
		t.Fatalf("started_at not set")
	}
}

func TestPushDailySkipsDisabledAndFinished(t *testing.T) {
	f := newDispatchFixture(t, nil)
	// notifications off
	f.seedActive(t, nil)
	muted, _ := f.seedActive(t, nil)
	if err := f.db.Model(muted).Update("notification_enabled", false).Error; err != nil {
		t.Fatalf("mute trainee: %v", err)
	}
	// past the catalog's last day
	f.seedActive(t, func(p *types.TraineeProgress) {
		p.CurrentDay = 15
	})

	report, err := f.service.PushDaily(context.Background())
	if err != nil {
		t.Fatalf("PushDaily: %v", err)
	}
	if report.Pushed != 1 || report.Skipped != 2 || report.Failed != 0 {
		t.Fatalf("report: %+v", report)
	}
}

func TestPushDailySenderFailureCountsAsFailed(t *testing.T) {
	f := newDispatchFixture(t, nil)
	trainee, _ := f.seedActive(t, nil)
	f.sender.failTo = trainee.ChannelUserID

	report, err := f.service.PushDaily(context.Background())
	if err != nil {
		t.Fatalf("PushDaily: %v", err)
	}
	if report.Failed != 1 || report.Pushed != 0 {
		t.Fatalf("report: %+v", report)
	}

	// no push record written, so the next run tries again
	var n int64
	if err := f.db.Model(&types.PushRecord{}).Count(&n).Error; err != nil {
		t.Fatalf("count push records: %v", err)
	}
	if n != 0 {
		t.Fatalf("failed push must not be recorded, records=%d", n)
	}
}

func TestMarkResponded(t *testing.T) {
	f := newDispatchFixture(t, nil)
	trainee, _ := f.seedActive(t, nil)

	ctx := context.Background()
	if _, err := f.service.PushDaily(ctx); err != nil {
		t.Fatalf("PushDaily: %v", err)
	}

	f.service.MarkResponded(ctx, trainee.ChannelUserID)

	rec, err := f.pushes.GetByTraineeAndDate(ctx, nil, trainee.ID, types.PushDateOf(time.Now()))
	if err != nil {
		t.Fatalf("load push record: %v", err)
	}
	if !rec.Responded || rec.RespondedAt == nil {
		t.Fatalf("push record not marked responded: %+v", rec)
	}

	// unknown users are ignored silently
	f.service.MarkResponded(ctx, "stranger")
}

func TestListUnresponded(t *testing.T) {
	f := newDispatchFixture(t, nil)
	trainee, _ := f.seedActive(t, nil)
	ctx := context.Background()

	now := time.Now()
	seedRecord := func(age time.Duration, responded bool) {
		at := now.Add(-age)
		rec := &types.PushRecord{
			TraineeID: trainee.ID,
			Day:       1,
			PushDate:  types.PushDateOf(at),
			Responded: responded,
			CreatedAt: at,
		}
		if err := f.pushes.Create(ctx, nil, rec); err != nil {
			t.Fatalf("create push record: %v", err)
		}
	}
	seedRecord(0, false)
	seedRecord(24*time.Hour, true)
	seedRecord(10*24*time.Hour, false)

	got, err := f.service.ListUnresponded(ctx, 0)
	if err != nil {
		t.Fatalf("ListUnresponded: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected only the recent unanswered push, got %d records", len(got))
	}
	if got[0].Responded {
		t.Fatalf("responded record leaked into result: %+v", got[0])
	}

	// a wide enough window picks up the old one too
	got, err = f.service.ListUnresponded(ctx, 30)
	if err != nil {
		t.Fatalf("ListUnresponded: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 unanswered pushes in 30 days, got %d", len(got))
	}
}

func TestPauseResumeRestart(t *testing.T) {
	f := newDispatchFixture(t, fixedPersona(types.PersonaA))
	_, prog := f.seedActive(t, func(p *types.TraineeProgress) {
		p.CurrentDay = 5
		p.CurrentRound = 2
	})
	ctx := context.Background()

	paused, err := f.service.Pause(ctx, prog.TraineeID)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.Status != types.ProgressStatusPaused || paused.PausedAt == nil {
		t.Fatalf("pause: %+v", paused)
	}

	if _, err := f.service.Pause(ctx, prog.TraineeID); !errors.Is(err, ErrWrongStatus) {
		t.Fatalf("double pause: want ErrWrongStatus, got %v", err)
	}

	resumed, err := f.service.Resume(ctx, prog.TraineeID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Status != types.ProgressStatusActive || resumed.PausedAt != nil {
		t.Fatalf("resume: %+v", resumed)
	}
	if resumed.CurrentRound != 0 {
		t.Fatalf("resume should reset the round, got %d", resumed.CurrentRound)
	}
	if resumed.CurrentDay != 5 {
		t.Fatalf("resume must keep the day, got %d", resumed.CurrentDay)
	}

	restarted, err := f.service.Restart(ctx, prog.TraineeID)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if restarted.CurrentDay != 0 || restarted.CurrentRound != 0 || restarted.Status != types.ProgressStatusActive {
		t.Fatalf("restart: %+v", restarted)
	}
	if restarted.DayUnderTest != nil || restarted.CompletedAt != nil {
		t.Fatalf("restart should clear overrides: %+v", restarted)
	}
}
