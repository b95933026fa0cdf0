package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	LessonTypeVideo = "video"
	LessonTypePDF   = "pdf"
	LessonTypeSlide = "slide"
	LessonTypeText  = "text"
)

type Lesson struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CourseID        uuid.UUID `gorm:"type:uuid;not null;index:idx_course_order,unique" json:"course_id"`
	Course          *Course   `gorm:"constraint:OnDelete:CASCADE;foreignKey:CourseID;references:ID" json:"course,omitempty"`
	Title           string    `gorm:"column:title;not null" json:"title"`
	Type            string    `gorm:"column:type;not null;default:'video'" json:"type"`
	DurationSeconds int       `gorm:"column:duration_seconds;not null;default:0" json:"duration_seconds"`
	IsMandatory     bool      `gorm:"column:is_mandatory;not null;default:true" json:"is_mandatory"`
	OrderIndex      int       `gorm:"column:order_index;not null;index:idx_course_order,unique" json:"order_index"`
	VideoURL        string    `gorm:"column:video_url" json:"video_url,omitempty"`
	PDFURL          string    `gorm:"column:pdf_url" json:"pdf_url,omitempty"`
	SlideURL        string    `gorm:"column:slide_url" json:"slide_url,omitempty"`
	TextContent     string    `gorm:"column:text_content" json:"text_content,omitempty"`
	CreatedAt       time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Lesson) TableName() string { return "lesson" }

func ValidLessonType(t string) bool {
	switch t {
	case LessonTypeVideo, LessonTypePDF, LessonTypeSlide, LessonTypeText:
		return true
	}
	return false
}

// IsVideo distinguishes the time-tracked kind from the page-tracked kinds.
func (l *Lesson) IsVideo() bool { return l.Type == LessonTypeVideo }
