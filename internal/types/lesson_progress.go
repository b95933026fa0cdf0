package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ViolationReasonSeek = "seek"
	ViolationReasonRate = "rate"
	ViolationReasonBoth = "both"
)

// LessonProgress is the per-(user, lesson) tracking row, created lazily on
// first interaction. watched_seconds is monotonic non-decreasing; the only
// thing that ever rewinds it is a violation reset. While violated_at is set
// the row is frozen: no telemetry is accepted until an explicit reset.
type LessonProgress struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;index:idx_user_lesson,unique" json:"user_id"`
	User            *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	LessonID        uuid.UUID      `gorm:"type:uuid;not null;index:idx_user_lesson,unique" json:"lesson_id"`
	Lesson          *Lesson        `gorm:"constraint:OnDelete:CASCADE;foreignKey:LessonID;references:ID" json:"lesson,omitempty"`
	WatchedSeconds  int            `gorm:"column:watched_seconds;not null;default:0" json:"watched_seconds"`
	LastPositionSec int            `gorm:"column:last_position_sec;not null;default:0" json:"last_position_sec"`
	CoverageJSON    datatypes.JSON `gorm:"column:coverage_json;type:jsonb" json:"coverage_json,omitempty"`
	Completed       bool           `gorm:"column:completed;not null;default:false" json:"completed"`
	CompletedAt     *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ViolatedAt      *time.Time     `gorm:"column:violated_at" json:"violated_at,omitempty"`
	ViolationReason string         `gorm:"column:violation_reason" json:"violation_reason,omitempty"`
	PDFCurrentPage  int            `gorm:"column:pdf_current_page;not null;default:1" json:"pdf_current_page"`
	PDFCompleted    int            `gorm:"column:pdf_completed_pages;not null;default:0" json:"pdf_completed_pages"`
	PDFTotalPages   int            `gorm:"column:pdf_total_pages;not null;default:0" json:"pdf_total_pages"`
	LastSeenAt      *time.Time     `gorm:"column:last_seen_at" json:"last_seen_at,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (LessonProgress) TableName() string { return "lesson_progress" }

func (p *LessonProgress) Violated() bool { return p.ViolatedAt != nil }
