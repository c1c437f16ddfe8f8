package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ProgressStatusPending   = "pending"
	ProgressStatusActive    = "active"
	ProgressStatusPaused    = "paused"
	ProgressStatusCompleted = "completed"
)

const (
	PersonaA = "A"
	PersonaB = "B"
)

// TraineeProgress is the durable progression state for one trainee in one
// course edition. DayUnderTest and AttemptStartedAt are the administrator
// override fields: a non-nil DayUnderTest that differs from CurrentDay marks
// the ongoing exchange as a manual test, which must never move CurrentDay.
// AttemptStartedAt is the watermark that scopes which conversation turns
// belong to the current attempt.
type TraineeProgress struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TraineeID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"trainee_id"`
	Trainee          *Trainee       `gorm:"constraint:OnDelete:CASCADE;foreignKey:TraineeID;references:ID" json:"trainee,omitempty"`
	Edition          string         `gorm:"column:edition;not null;default:'default'" json:"edition"`
	Status           string         `gorm:"column:status;not null;default:'pending'" json:"status"`
	CurrentDay       int            `gorm:"column:current_day;not null;default:0" json:"current_day"`
	CurrentRound     int            `gorm:"column:current_round;not null;default:0" json:"current_round"`
	Persona          string         `gorm:"column:persona" json:"persona,omitempty"`
	DayUnderTest     *int           `gorm:"column:day_under_test" json:"day_under_test,omitempty"`
	AttemptStartedAt *time.Time     `gorm:"column:attempt_started_at" json:"attempt_started_at,omitempty"`
	StartedAt        *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	PausedAt         *time.Time     `gorm:"column:paused_at" json:"paused_at,omitempty"`
	CompletedAt      *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	LastPushAt       *time.Time     `gorm:"column:last_push_at" json:"last_push_at,omitempty"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (TraineeProgress) TableName() string { return "trainee_progress" }

func (p *TraineeProgress) IsActive() bool {
	return p != nil && p.Status == ProgressStatusActive
}

// ManualTestFor reports whether the given effective day is an administrator
// manual test rather than official progress.
func (p *TraineeProgress) ManualTestFor(day int) bool {
	return p != nil && p.DayUnderTest != nil && *p.DayUnderTest == day && day != p.CurrentDay
}
