package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusAccepted ApplicationStatus = "accepted"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

type JobApplication struct {
	ID          uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	JobID       uuid.UUID         `gorm:"type:uuid;not null;index" json:"job_id"`
	SellerID    uuid.UUID         `gorm:"type:uuid;not null;index" json:"seller_id"`
	CoverLetter string            `gorm:"type:text;not null" json:"cover_letter"`
	Attachments datatypes.JSON    `json:"attachments"`
	Status      ApplicationStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Job    *Job  `gorm:"foreignKey:JobID" json:"job,omitempty"`
	Seller *User `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
}
