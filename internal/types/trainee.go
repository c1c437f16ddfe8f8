package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Trainee struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ChannelUserID       string         `gorm:"column:channel_user_id;uniqueIndex;not null" json:"channel_user_id"`
	DisplayName         string         `gorm:"column:display_name" json:"display_name"`
	RealName            string         `gorm:"column:real_name" json:"real_name,omitempty"`
	NotificationEnabled bool           `gorm:"column:notification_enabled;not null;default:true" json:"notification_enabled"`
	Active              bool           `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt           time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Trainee) TableName() string { return "trainee" }
