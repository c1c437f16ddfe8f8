package types

import (
	"time"

	"github.com/google/uuid"
)

// PushRecord dedupes the daily opening-line push: at most one row per
// trainee per calendar date.
type PushRecord struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TraineeID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_push_trainee_date,unique" json:"trainee_id"`
	Trainee     *Trainee   `gorm:"constraint:OnDelete:CASCADE;foreignKey:TraineeID;references:ID" json:"trainee,omitempty"`
	Day         int        `gorm:"column:day;not null" json:"day"`
	PushDate    string     `gorm:"column:push_date;not null;index:idx_push_trainee_date,unique" json:"push_date"`
	Responded   bool       `gorm:"column:responded;not null;default:false" json:"responded"`
	RespondedAt *time.Time `gorm:"column:responded_at" json:"responded_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (PushRecord) TableName() string { return "push_record" }

// PushDateOf formats t the way PushRecord.PushDate stores it.
func PushDateOf(t time.Time) string {
	return t.Format("2006-01-02")
}
