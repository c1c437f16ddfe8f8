package types

import (
	"time"

	"github.com/google/uuid"
)

// ConversationTurn is one (user message, AI reply, verdict) triple. Rows are
// append-only: the engine inserts them and nothing ever updates or deletes
// them, so the log stays a faithful record of every attempt.
type ConversationTurn struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TraineeID   uuid.UUID `gorm:"type:uuid;not null;index:idx_turn_trainee_day" json:"trainee_id"`
	Trainee     *Trainee  `gorm:"constraint:OnDelete:CASCADE;foreignKey:TraineeID;references:ID" json:"trainee,omitempty"`
	DayTested   int       `gorm:"column:day_tested;not null;index:idx_turn_trainee_day" json:"day_tested"`
	UserMessage string    `gorm:"column:user_message;not null" json:"user_message"`
	AIReply     string    `gorm:"column:ai_reply;not null" json:"ai_reply"`
	Passed      bool      `gorm:"column:passed;not null;default:false" json:"passed"`
	Score       int       `gorm:"column:score;not null;default:0" json:"score"`
	Reason      string    `gorm:"column:reason" json:"reason,omitempty"`
	Final       bool      `gorm:"column:final;not null;default:false" json:"final"`
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
}

func (ConversationTurn) TableName() string { return "conversation_turn" }
