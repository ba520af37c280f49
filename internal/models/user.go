package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Role string

const (
	RoleStudent Role = "student" // buyer
	RoleTeacher Role = "teacher" // seller
)

type User struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Username string    `gorm:"uniqueIndex;not null" json:"username"`
	Email    string    `gorm:"uniqueIndex;not null" json:"email"`
	Password string    `gorm:"not null" json:"-"`
	Role     Role      `gorm:"type:varchar(20);not null;index" json:"role"`

	IsVerified     bool   `gorm:"default:false" json:"is_verified"`
	ProfilePicture string `gorm:"type:text" json:"profile_picture"`

	// Order and payment tracking
	OrdersCompleted  int     `gorm:"default:0" json:"orders_completed"`
	PaymentsMade     float64 `gorm:"default:0" json:"payments_made"`
	PaymentsReceived float64 `gorm:"default:0" json:"payments_received"`
	EarnedBalance    float64 `gorm:"default:0" json:"earned_balance"`

	// Rating aggregate. Sum and count live next to the average so the
	// recompute on review submission is a single UPDATE.
	AverageRating float64 `gorm:"default:0" json:"average_rating"`
	RatingSum     int64   `gorm:"default:0" json:"-"`
	RatingCount   int64   `gorm:"default:0" json:"-"`

	// Seller-specific info
	Education        string         `gorm:"type:text" json:"education"`
	JobExperience    string         `gorm:"type:text" json:"job_experience"`
	PersonalProjects datatypes.JSON `json:"personal_projects"`
	Keywords         datatypes.JSON `json:"keywords"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
