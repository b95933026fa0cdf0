package types

import (
	"time"

	"github.com/google/uuid"
)

// CourseProgress is fully derived: the aggregator rewrites it from the
// lesson rows whenever one of them changes completion state. It is never
// edited directly.
type CourseProgress struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID            uuid.UUID  `gorm:"type:uuid;not null;index:idx_user_course,unique" json:"user_id"`
	User              *User      `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	CourseID          uuid.UUID  `gorm:"type:uuid;not null;index:idx_user_course,unique" json:"course_id"`
	Course            *Course    `gorm:"constraint:OnDelete:CASCADE;foreignKey:CourseID;references:ID" json:"course,omitempty"`
	CompletionPercent float64    `gorm:"column:completion_percent;not null;default:0" json:"completion_percent"`
	IsCompleted       bool       `gorm:"column:is_completed;not null;default:false" json:"is_completed"`
	CompletedAt       *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt         time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (CourseProgress) TableName() string { return "course_progress" }
