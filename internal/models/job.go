package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobStatusOpen     JobStatus = "open"
	JobStatusArchived JobStatus = "archived"
	JobStatusDeleted  JobStatus = "deleted"
	JobStatusHired    JobStatus = "hired"
)

type Job struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	BuyerID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"buyer_id"`
	Title       string         `gorm:"not null" json:"title"`
	Description string         `gorm:"type:text;not null" json:"description"`
	Budget      float64        `gorm:"not null" json:"budget"`
	Category    string         `gorm:"not null;index" json:"category"`
	Attachments datatypes.JSON `json:"attachments"`
	Status      JobStatus      `gorm:"type:varchar(20);default:'open';index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Buyer *User `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
}
