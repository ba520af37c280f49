package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PlatformFeeRate is the flat cut kept on every completed order. The
// remaining share is credited to the seller regardless of currency.
const PlatformFeeRate = 0.2

type Order struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	JobID    uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`
	SellerID uuid.UUID `gorm:"type:uuid;not null;index" json:"seller_id"`
	BuyerID  uuid.UUID `gorm:"type:uuid;not null;index" json:"buyer_id"`

	Price    float64 `gorm:"not null" json:"price"`
	Currency string  `gorm:"type:varchar(3);not null" json:"currency"`

	PaymentLinkID string `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_link_id"`
	PaymentID     string `gorm:"type:varchar(64)" json:"payment_id"`

	OrderStatus   OrderStatus   `gorm:"type:varchar(20);default:'pending';index" json:"order_status"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);default:'pending'" json:"payment_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Job    *Job  `gorm:"foreignKey:JobID" json:"job,omitempty"`
	Seller *User `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
	Buyer  *User `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
}

// SellerEarnings returns the seller's share of the order price after the
// platform fee.
func (o *Order) SellerEarnings() float64 {
	return o.Price * (1 - PlatformFeeRate)
}

// IsTerminal reports whether the order status can no longer move.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// ValidCurrency reports whether the given currency is supported.
func ValidCurrency(c string) bool {
	return c == "USD" || c == "EUR"
}
