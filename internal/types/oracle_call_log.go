package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// OracleCallLog records every grading call for audit and prompt debugging.
// Written best-effort outside the turn transaction.
type OracleCallLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TraineeID  *uuid.UUID     `gorm:"type:uuid;index" json:"trainee_id,omitempty"`
	Day        int            `gorm:"column:day;not null" json:"day"`
	Round      int            `gorm:"column:round;not null" json:"round"`
	Model      string         `gorm:"column:model;not null" json:"model"`
	Directive  string         `gorm:"column:directive" json:"directive"`
	RawOutput  string         `gorm:"column:raw_output" json:"raw_output"`
	Parsed     datatypes.JSON `gorm:"type:jsonb;column:parsed" json:"parsed"`
	ParserUsed string         `gorm:"column:parser_used" json:"parser_used"`
	Success    bool           `gorm:"column:success;not null" json:"success"`
	Error      string         `gorm:"column:error" json:"error,omitempty"`
	LatencyMS  int64          `gorm:"column:latency_ms;not null;default:0" json:"latency_ms"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (OracleCallLog) TableName() string { return "oracle_call_log" }
