package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Course struct {
	ID           uuid.UUID                    `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Title        string                       `gorm:"column:title;not null" json:"title"`
	Description  string                       `gorm:"column:description" json:"description"`
	Category     string                       `gorm:"column:category" json:"category"`
	Level        string                       `gorm:"column:level" json:"level"`
	IsRequired   bool                         `gorm:"column:is_required;not null;default:false" json:"is_required"`
	IsPublished  bool                         `gorm:"column:is_published;not null;default:false" json:"is_published"`
	AllowedRoles datatypes.JSONSlice[string]  `gorm:"column:allowed_roles;type:jsonb" json:"allowed_roles"`
	CreatedBy    uuid.UUID                    `gorm:"type:uuid;column:created_by" json:"created_by"`
	Lessons      []Lesson                     `gorm:"constraint:OnDelete:CASCADE;foreignKey:CourseID;references:ID" json:"lessons,omitempty"`
	CreatedAt    time.Time                    `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time                    `gorm:"not null;default:now()" json:"updated_at"`
}

func (Course) TableName() string { return "course" }

// RoleAllowed reports whether role may access the course. Admins always may.
func (c *Course) RoleAllowed(role string) bool {
	if role == RoleAdmin {
		return true
	}
	for _, allowed := range c.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}
